package record

import (
	"sync"
	"time"
)

// State is the last observation of one record.
type State struct {
	SnapshotHash string
	Confirmed    Confirmed
	Deleted      bool
	SeenAt       time.Time
}

const (
	DefaultTrackerTTL       = 7 * 24 * time.Hour
	DefaultTrackerThreshold = 10000
)

// Tracker maps record keys to their last State. Entries idle longer than the
// TTL are dropped in a sweep once the map passes the threshold.
type Tracker struct {
	mu        sync.Mutex
	states    map[string]State
	ttl       time.Duration
	threshold int
	nextSweep int
	now       func() time.Time
}

func NewTracker(ttl time.Duration, threshold int, now func() time.Time) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTrackerTTL
	}
	if threshold <= 0 {
		threshold = DefaultTrackerThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{states: make(map[string]State), ttl: ttl, threshold: threshold, nextSweep: threshold, now: now}
}

func (t *Tracker) Get(key string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[key]
	return s, ok
}

func (t *Tracker) Set(key string, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	s.SeenAt = now
	t.states[key] = s
	if len(t.states) > t.nextSweep {
		for k, v := range t.states {
			if now.Sub(v.SeenAt) > t.ttl {
				delete(t.states, k)
			}
		}
		t.nextSweep = max(t.threshold, 2*len(t.states))
	}
}

// MarkDeleted flags key as deleted, keeping the rest of its last state.
func (t *Tracker) MarkDeleted(key string) {
	t.mu.Lock()
	s := t.states[key]
	t.mu.Unlock()
	s.Deleted = true
	t.Set(key, s)
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.states = make(map[string]State)
	t.nextSweep = t.threshold
	t.mu.Unlock()
}
