package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aquabot/internal/debounce"
	"aquabot/internal/record"
	logx "aquabot/pkg/logx"
)

// OpenIssue marks a record whose missing phone was reported and not yet fixed.
type OpenIssue struct {
	Key      string
	OpenedAt time.Time
	RecordID int64
}

// MissingPhone alerts once per record created without a client phone and
// reports the fix when a phone shows up.
type MissingPhone struct {
	base
	pending *debounce.Scheduler[record.Event]

	mu     sync.Mutex
	issues map[string]OpenIssue
}

func NewMissingPhone(d Deps) *MissingPhone {
	r := &MissingPhone{base: newBase("missing_phone", d), issues: make(map[string]OpenIssue)}
	r.pending = debounce.New[record.Event](r.fire)
	return r
}

// Issue keys always use the record id; api_id is not stable across the
// create/update pair this rule watches.
func missingPhoneKey(ev record.Event) string {
	return fmt.Sprintf("missing_phone:%d:%d", ev.CompanyID, ev.RecordID())
}

func (r *MissingPhone) Handle(ctx context.Context, d *record.Delivery) {
	ev := d.Event
	if !ev.IsRecord() || ev.Data == nil || !ev.IsCreateOrUpdate() || !r.adminReady() {
		return
	}
	key := missingPhoneKey(ev)

	if ev.Data.Phone() == "" {
		r.pending.Schedule(key, r.cfg.Debounce, ev)
		return
	}

	r.pending.Cancel(key)
	issue, ok := r.closeIssue(key)
	if !ok {
		return
	}
	if r.suppressed(ctx, "resolved:"+key, r.cfg.ResolvedTTL) {
		return
	}
	if err := r.notifyAdmin(ctx, phoneResolvedText(ev)); err == nil {
		r.outcome("resolved")
		r.log.Info("missing phone resolved", logx.Int64("record_id", issue.RecordID), logx.Duration("open_for", time.Since(issue.OpenedAt)))
	}
}

func (r *MissingPhone) fire(key string, ev record.Event) {
	defer r.catch("missing_phone.fire")
	if ev.Data.Phone() != "" {
		return
	}
	ctx, cancel := fireContext()
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, open := r.issues[key]; open {
		return
	}
	if err := r.notifyAdmin(ctx, missingPhoneText(ev)); err != nil {
		return
	}
	r.issues[key] = OpenIssue{Key: key, OpenedAt: time.Now(), RecordID: ev.RecordID()}
	r.log.Info("missing phone alert sent", logx.Int64("record_id", ev.RecordID()))
}

// closeIssue removes and returns the open issue for key, at most once.
func (r *MissingPhone) closeIssue(key string) (OpenIssue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[key]
	if ok {
		delete(r.issues, key)
	}
	return issue, ok
}

// OpenIssues returns a copy of the unresolved issues.
func (r *MissingPhone) OpenIssues() []OpenIssue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OpenIssue, 0, len(r.issues))
	for _, is := range r.issues {
		out = append(out, is)
	}
	return out
}

func (r *MissingPhone) Reset() {
	r.pending.Reset()
	r.mu.Lock()
	r.issues = make(map[string]OpenIssue)
	r.mu.Unlock()
}

func (r *MissingPhone) Stop() { r.pending.Stop() }
