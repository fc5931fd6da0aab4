package rules

import (
	"context"
	"fmt"

	"aquabot/internal/record"
)

// Canceled reports a freed slot immediately.
type Canceled struct{ base }

func NewCanceled(d Deps) *Canceled { return &Canceled{base: newBase("record_canceled", d)} }

func (r *Canceled) Handle(ctx context.Context, d *record.Delivery) {
	ev := d.Event
	if !ev.IsRecord() || !ev.IsCanceled() || !r.adminReady() {
		return
	}
	key := fmt.Sprintf("record_canceled:%d:%s", ev.CompanyID, ev.DedupID())
	if r.suppressed(ctx, key, r.cfg.CanceledTTL) {
		return
	}
	_ = r.notifyAdmin(ctx, canceledText(ev))
}
