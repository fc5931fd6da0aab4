// Package dedup suppresses repeat sends of one notification class within a TTL.
package dedup

import (
	"context"
	"time"
)

// Store is a check-and-set ledger. ShouldSuppress reports true when key was
// marked within ttl; otherwise it marks key as sent now and reports false.
// Both steps happen as one operation.
type Store interface {
	ShouldSuppress(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Prefixed namespaces every key with ns + ":".
func Prefixed(s Store, ns string) Store {
	if ns == "" {
		return s
	}
	return prefixed{s: s, ns: ns + ":"}
}

type prefixed struct {
	s  Store
	ns string
}

func (p prefixed) ShouldSuppress(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return p.s.ShouldSuppress(ctx, p.ns+key, ttl)
}
