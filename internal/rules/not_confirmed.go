package rules

import (
	"context"
	"fmt"

	"aquabot/internal/debounce"
	"aquabot/internal/record"
)

// NotConfirmed reports records left unconfirmed once edits settle.
type NotConfirmed struct {
	base
	pending *debounce.Scheduler[record.Event]
}

func NewNotConfirmed(d Deps) *NotConfirmed {
	r := &NotConfirmed{base: newBase("not_confirmed", d)}
	r.pending = debounce.New[record.Event](r.fire)
	return r
}

func (r *NotConfirmed) Handle(_ context.Context, d *record.Delivery) {
	ev := d.Event
	if !ev.IsRecord() || !ev.IsCreateOrUpdate() || ev.Data == nil || !r.adminReady() {
		return
	}
	key := fmt.Sprintf("not_confirmed:%d:%s", ev.CompanyID, ev.DedupID())
	if ev.Data.Confirmed.IsTrue() || ev.IsCanceled() {
		r.pending.Cancel(key)
		return
	}
	r.pending.Schedule(key, r.cfg.Debounce, ev)
}

// fire checks dedup here, not at schedule time, so the alert describes the
// final state of the burst.
func (r *NotConfirmed) fire(key string, ev record.Event) {
	defer r.catch("not_confirmed.fire")
	if ev.Data.Confirmed.IsTrue() || ev.IsCanceled() {
		return
	}
	ctx, cancel := fireContext()
	defer cancel()
	if r.suppressed(ctx, key, r.cfg.NotConfirmedTTL) {
		return
	}
	_ = r.notifyAdmin(ctx, notConfirmedText(ev))
}

func (r *NotConfirmed) Reset() { r.pending.Reset() }
func (r *NotConfirmed) Stop()  { r.pending.Stop() }
