// Package debounce coalesces bursts of events per key into one delayed call
// that sees only the latest payload.
package debounce

import (
	"sync"
	"time"
)

// FireFunc runs on the timer goroutine once the key has been quiet for its delay.
type FireFunc[T any] func(key string, payload T)

// Scheduler holds at most one live timer per key.
type Scheduler[T any] struct {
	mu      sync.Mutex
	fire    FireFunc[T]
	seq     uint64
	pending map[string]*slot[T]
	stopped bool
}

type slot[T any] struct {
	id      uint64
	timer   *time.Timer
	payload T
}

func New[T any](fire FireFunc[T]) *Scheduler[T] {
	return &Scheduler[T]{fire: fire, pending: make(map[string]*slot[T])}
}

// Schedule cancels any pending call for key and installs a new one carrying payload.
func (s *Scheduler[T]) Schedule(key string, delay time.Duration, payload T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
	}
	s.seq++
	id := s.seq
	sl := &slot[T]{id: id, payload: payload}
	sl.timer = time.AfterFunc(delay, func() { s.run(key, id) })
	s.pending[key] = sl
}

func (s *Scheduler[T]) run(key string, id uint64) {
	s.mu.Lock()
	sl, ok := s.pending[key]
	// A replaced timer may still fire if Stop raced with expiry.
	if !ok || sl.id != id {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	s.fire(key, sl.payload)
}

// Cancel drops the pending call for key, reporting whether one existed.
func (s *Scheduler[T]) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.pending[key]
	if !ok {
		return false
	}
	sl.timer.Stop()
	delete(s.pending, key)
	return true
}

// Pending returns the payload waiting on key.
func (s *Scheduler[T]) Pending(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.pending[key]
	if !ok {
		var zero T
		return zero, false
	}
	return sl.payload, true
}

func (s *Scheduler[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Reset cancels every pending call and keeps the scheduler usable.
func (s *Scheduler[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sl := range s.pending {
		sl.timer.Stop()
		delete(s.pending, k)
	}
}

// Stop cancels every pending call; later Schedule calls are ignored.
func (s *Scheduler[T]) Stop() {
	s.Reset()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
