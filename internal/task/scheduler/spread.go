package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

// maxFirstRunOffset caps how far past one interval the first run may land.
const maxFirstRunOffset = 30 * time.Second

// delayedStart runs its first trigger at first, then follows every.
type delayedStart struct {
	every cron.ConstantDelaySchedule
	first time.Time
}

func (s delayedStart) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// intervalSchedule spaces out interval jobs that were registered together.
// The offset is derived from name, so a job keeps its slot across restarts.
func intervalSchedule(every time.Duration, now time.Time, name string) cron.Schedule {
	base := cron.Every(every)
	window := min(every, maxFirstRunOffset)
	if window <= 0 {
		return base
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	offset := time.Duration(h.Sum64() % uint64(window)).Truncate(time.Second)
	return delayedStart{every: base, first: now.Add(every + offset)}
}
