package rules

import (
	"context"
	"fmt"

	"aquabot/internal/record"
)

// NoShow reports attendance -1 on a live record.
type NoShow struct{ base }

func NewNoShow(d Deps) *NoShow { return &NoShow{base: newBase("no_show", d)} }

func (r *NoShow) Handle(ctx context.Context, d *record.Delivery) {
	ev := d.Event
	if !ev.IsRecord() || !ev.IsNoShow() || !r.adminReady() {
		return
	}
	key := fmt.Sprintf("no_show:%d:%s", ev.CompanyID, ev.DedupID())
	if r.suppressed(ctx, key, r.cfg.NoShowTTL) {
		return
	}
	_ = r.notifyAdmin(ctx, noShowText(ev))
}
