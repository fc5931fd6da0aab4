package rules

import (
	"context"
	"fmt"

	"aquabot/internal/debounce"
	"aquabot/internal/record"
	logx "aquabot/pkg/logx"
)

// ChatLookup resolves a phone to a linked client chat.
type ChatLookup interface {
	LinkedChat(ctx context.Context, companyID int64, phone string) (int64, bool, error)
}

// NotLinked asks staff to onboard clients who have a phone but no bot link.
// The engine calls it only for such deliveries.
type NotLinked struct {
	base
	lookup  ChatLookup
	pending *debounce.Scheduler[record.Delivery]
}

// NewNotLinked builds the rule; lookup may be nil, otherwise the link is
// re-checked when the debounce fires.
func NewNotLinked(d Deps, lookup ChatLookup) *NotLinked {
	r := &NotLinked{base: newBase("not_linked", d), lookup: lookup}
	r.pending = debounce.New[record.Delivery](r.fire)
	return r
}

func (r *NotLinked) Handle(_ context.Context, d *record.Delivery) {
	ev := d.Event
	if !ev.IsRecord() || d.Phone == "" || !r.adminReady() {
		return
	}
	key := fmt.Sprintf("not_linked:%d:%s:%s", ev.CompanyID, ev.DedupID(), d.Phone)
	r.pending.Schedule(key, r.cfg.Debounce, *d)
}

func (r *NotLinked) fire(key string, d record.Delivery) {
	defer r.catch("not_linked.fire")
	ctx, cancel := fireContext()
	defer cancel()

	if r.lookup != nil {
		_, linked, err := r.lookup.LinkedChat(ctx, d.Event.CompanyID.Int64(), d.Phone)
		if err != nil {
			r.log.Warn("link recheck failed", logx.Err(err))
		} else if linked {
			return
		}
	}
	if r.suppressed(ctx, key, r.cfg.NotLinkedTTL) {
		return
	}
	_ = r.notifyAdmin(ctx, notLinkedText(d.Event, d.Phone))
}

func (r *NotLinked) Reset() { r.pending.Reset() }
func (r *NotLinked) Stop()  { r.pending.Stop() }
