package dedup

import (
	"context"
	"sync"
	"time"
)

const DefaultSweepThreshold = 5000

// Memory keeps entries in process. Expired entries are swept once the map
// grows past the threshold. After a sweep the next one waits until the map
// doubles what survived, so live entries never make every call O(n).
type Memory struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	threshold int
	nextSweep int
	sweeps    int
	now       func() time.Time
}

type memEntry struct {
	sentAt time.Time
	ttl    time.Duration
}

type MemoryOption func(*Memory)

func WithSweepThreshold(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.threshold = n
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:   make(map[string]memEntry),
		threshold: DefaultSweepThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.nextSweep = m.threshold
	return m
}

func (m *Memory) ShouldSuppress(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Sub(e.sentAt) < ttl {
		return true, nil
	}
	m.entries[key] = memEntry{sentAt: now, ttl: ttl}
	if len(m.entries) > m.nextSweep {
		m.sweepLocked(now)
	}
	return false, nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if now.Sub(e.sentAt) >= e.ttl {
			delete(m.entries, k)
		}
	}
	m.sweeps++
	m.nextSweep = max(m.threshold, 2*len(m.entries))
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset drops every entry.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.nextSweep = m.threshold
	m.mu.Unlock()
}
