package dedup

import (
	"context"
	"time"
)

// Claimer is the storage hook behind SQL: Claim inserts key or refreshes an
// expired row and reports whether this call won it.
type Claimer interface {
	ClaimDedup(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
}

type SQL struct {
	c   Claimer
	now func() time.Time
}

func NewSQL(c Claimer) *SQL { return &SQL{c: c, now: time.Now} }

func (s *SQL) ShouldSuppress(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	won, err := s.c.ClaimDedup(ctx, key, s.now(), ttl)
	if err != nil {
		return false, err
	}
	return !won, nil
}
