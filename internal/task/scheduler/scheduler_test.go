package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "aquabot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		duration time.Duration
	}{
		{name: "cron", raw: "*/2 * * * *", kind: SpecCron},
		{name: "descriptor", raw: "@hourly", kind: SpecCron},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron},
		{name: "duration", raw: "120s", kind: SpecInterval, duration: 2 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "00:75"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestAddScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	if err := s.AddSchedule("x", "99 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid cron")
	}
	if err := s.AddSchedule("", "1m", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestRunNowSkipsOverlapAndRecordsErrors(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop())
	release := make(chan struct{})
	var calls atomic.Int32
	err := s.AddSchedule("recheck", "1h", time.Second, func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if s.RunNow("recheck") {
		t.Fatal("RunNow before Start must be refused")
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	if !s.RunNow("recheck") {
		t.Fatal("RunNow refused")
	}
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.RunNow("recheck")
	time.Sleep(30 * time.Millisecond)
	close(release)

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if len(snap.Schedules) == 1 && snap.Schedules[0].Runs == 1 {
			if snap.Schedules[0].Skipped != 1 || snap.Schedules[0].LastErr != "boom" {
				t.Fatalf("info = %+v", snap.Schedules[0])
			}
			if calls.Load() != 1 {
				t.Fatalf("calls = %d, want 1", calls.Load())
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run was not recorded")
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.AddSchedule("a", "1m", 0, func(context.Context) error { return nil })
	if !s.Remove("a") || s.Remove("a") {
		t.Fatal("Remove should succeed exactly once")
	}
	if n := len(s.Snapshot().Schedules); n != 0 {
		t.Fatalf("schedules = %d", n)
	}
}

func TestIntervalScheduleOffsetsFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	every := 2 * time.Minute

	a := intervalSchedule(every, now, "links.recheck")
	b := intervalSchedule(every, now, "links.recheck")
	first := a.Next(now)
	if !first.Equal(b.Next(now)) {
		t.Fatalf("same name gave different first runs")
	}
	if first.Before(now.Add(every)) || !first.Before(now.Add(every+maxFirstRunOffset)) {
		t.Fatalf("first run %v outside [%v, %v)", first, now.Add(every), now.Add(every+maxFirstRunOffset))
	}
	if next := a.Next(first); !next.Equal(first.Add(every)) {
		t.Fatalf("second run = %v, want %v", next, first.Add(every))
	}
}
