package clientnotify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"aquabot/internal/dedup"
	"aquabot/internal/record"
	kit "aquabot/internal/transport"
	logx "aquabot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (f *fakeSender) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	f.sent = append(f.sent, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) all() []kit.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.Notification(nil), f.sent...)
}

func newTestDispatcher(s *fakeSender, opts ...Option) *Dispatcher {
	cfg := Config{ChangedDebounce: 20 * time.Millisecond}
	return New(cfg, dedup.NewMemory(), record.NewTracker(0, 0, nil), s, logx.Nop(), opts...)
}

func deliver(t *testing.T, d *Dispatcher, body string) {
	t.Helper()
	ev, err := record.Decode([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d.Handle(context.Background(), &record.Delivery{Event: ev, Phone: ev.Data.Phone(), ChatID: 555})
}

func TestCreateMessageWithConfirmButton(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()

	deliver(t, d, `{"resource":"record","status":"create","company_id":42,"resource_id":1001,
		"data":{"client":{"phone":"+79990000000"},"services":[{"title":"Wash"}],"date":"2024-05-01 10:00:00","confirmed":0}}`)

	sent := s.all()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	n := sent[0]
	for _, want := range []string{"Wash", "2024-05-01", "10:00", "https://yclients.com/record/42/1001", "Все верно?"} {
		if !strings.Contains(n.Text, want) {
			t.Fatalf("create text misses %q:\n%s", want, n.Text)
		}
	}
	if n.Target.ChatID != 555 || n.Options.ParseMode != "HTML" {
		t.Fatalf("target/options = %+v %+v", n.Target, n.Options)
	}
	kb := n.Options.Inline
	if len(kb) != 1 || kb[0][0].Data != "rec:confirm:42:1001" || kb[0][0].Text != ConfirmButtonText {
		t.Fatalf("keyboard = %+v", kb)
	}
}

func TestConfirmedTransitionOnce(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()
	base := `{"resource":"record","status":"update","company_id":1,"resource_id":2,"data":{"date":"2024-05-01 10:00:00","confirmed":%s}}`

	deliver(t, d, strings.Replace(base, "%s", "0", 1))
	deliver(t, d, strings.Replace(base, "%s", "1", 1))
	time.Sleep(60 * time.Millisecond)

	var confirmed int
	for _, n := range s.all() {
		if strings.HasPrefix(n.Text, titleConfirmed) {
			confirmed++
		}
	}
	if confirmed != 1 {
		t.Fatalf("confirmed messages = %d, want 1", confirmed)
	}
}

func TestConfirmedFirstSightingSendsOnce(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()
	body := `{"resource":"record","status":"update","company_id":1,"resource_id":3,"data":{"confirmed":true}}`
	deliver(t, d, body)
	deliver(t, d, body)
	time.Sleep(60 * time.Millisecond)

	sent := s.all()
	if len(sent) != 1 || !strings.HasPrefix(sent[0].Text, titleConfirmed) {
		t.Fatalf("messages = %+v, want one confirmation", sent)
	}
}

func TestCancelWinsOverOtherBranches(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()

	deliver(t, d, `{"resource":"record","status":"update","company_id":1,"resource_id":4,"data":{"date":"2024-05-01 10:00:00","confirmed":0}}`)
	deliver(t, d, `{"resource":"record","status":"deleted","company_id":1,"resource_id":4,"data":{"date":"2024-05-02 12:00:00","confirmed":1}}`)
	time.Sleep(60 * time.Millisecond)

	sent := s.all()
	if len(sent) != 1 || !strings.HasPrefix(sent[0].Text, titleCanceled) {
		t.Fatalf("messages = %+v", sent)
	}
	st, ok := d.tracker.Get("rec:1:4")
	if !ok || !st.Deleted {
		t.Fatalf("tracker state = %+v %v", st, ok)
	}
}

func TestChangedDebouncedToLatest(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()
	tmpl := `{"resource":"record","status":"update","company_id":1,"resource_id":5,"data":{"date":"2024-05-01 %s:00:00","confirmed":0}}`

	deliver(t, d, strings.Replace(tmpl, "%s", "10", 1))
	for _, h := range []string{"11", "12", "13"} {
		deliver(t, d, strings.Replace(tmpl, "%s", h, 1))
	}
	time.Sleep(120 * time.Millisecond)

	sent := s.all()
	if len(sent) != 1 {
		t.Fatalf("sent %d, want 1: %+v", len(sent), sent)
	}
	if !strings.HasPrefix(sent[0].Text, titleChanged) || !strings.Contains(sent[0].Text, "13:00") {
		t.Fatalf("changed text:\n%s", sent[0].Text)
	}
}

func TestUpdateInsideCreateWindowIsCreate(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	now := time.Date(2024, 5, 1, 10, 1, 0, 0, time.UTC)
	d := newTestDispatcher(s, WithClock(func() time.Time { return now }))
	defer d.Stop()

	deliver(t, d, `{"resource":"record","status":"update","company_id":1,"resource_id":6,
		"data":{"create_date":"2024-05-01T10:00:00+00:00","services":[{"title":"Wash"}]}}`)
	sent := s.all()
	if len(sent) != 1 || len(sent[0].Options.Inline) != 1 {
		t.Fatalf("expected create message with button, got %+v", sent)
	}
}

func TestNoChatNoMessage(t *testing.T) {
	t.Parallel()
	s := &fakeSender{}
	d := newTestDispatcher(s)
	defer d.Stop()
	ev, _ := record.Decode([]byte(`{"resource":"record","status":"create","company_id":1,"resource_id":7,"data":{}}`))
	d.Handle(context.Background(), &record.Delivery{Event: ev})
	if len(s.all()) != 0 {
		t.Fatal("sent without chat")
	}
}

func TestRestoreAfterCancel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		restoreDate string
		wantChanged bool
	}{
		{"same data as before cancel", "2024-05-01 10:00:00", false},
		{"moved while canceled", "2024-05-03 15:00:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &fakeSender{}
			d := newTestDispatcher(s)
			defer d.Stop()

			deliver(t, d, `{"resource":"record","status":"update","company_id":1,"resource_id":9,"data":{"date":"2024-05-01 10:00:00","confirmed":0}}`)
			deliver(t, d, `{"resource":"record","status":"deleted","company_id":1,"resource_id":9,"data":{"date":"2024-05-02 12:00:00","confirmed":0}}`)
			deliver(t, d, `{"resource":"record","status":"update","company_id":1,"resource_id":9,"data":{"date":"`+tt.restoreDate+`","confirmed":0}}`)
			time.Sleep(80 * time.Millisecond)

			var changed int
			for _, n := range s.all() {
				if strings.HasPrefix(n.Text, titleChanged) {
					changed++
				}
			}
			if got := changed == 1; got != tt.wantChanged || changed > 1 {
				t.Fatalf("changed messages = %d, want changed=%v", changed, tt.wantChanged)
			}
			st, ok := d.tracker.Get("rec:1:9")
			if !ok || st.Deleted {
				t.Fatalf("tracker state after restore = %+v %v", st, ok)
			}
		})
	}
}
