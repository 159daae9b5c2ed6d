// Package seen tracks place identifiers already harvested inside a rolling
// window, so repeated scrape runs skip listings they fetched recently.
package seen

import (
	"context"
	"fmt"
	"time"
)

// store is the consumer interface for seen-window operations (ISP).
type store interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store remembers seen place IDs with a TTL window.
type Store struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a seen store. prefix namespaces all keys, e.g. "leadex:".
func New(s store, prefix string, ttl time.Duration) *Store {
	return &Store{store: s, prefix: prefix, ttl: ttl}
}

func (s *Store) key(placeID string) string {
	return s.prefix + "seen:" + placeID
}

// Mark records placeID as seen and reports whether it was new within the window.
func (s *Store) Mark(ctx context.Context, placeID string) (bool, error) {
	exists, err := s.store.Exists(ctx, s.key(placeID))
	if err != nil {
		return false, fmt.Errorf("seen EXISTS %s: %w", placeID, err)
	}
	if exists {
		return false, nil
	}
	if err := s.store.SetWithTTL(ctx, s.key(placeID), []byte("1"), s.ttl); err != nil {
		return false, fmt.Errorf("seen SET %s: %w", placeID, err)
	}
	return true, nil
}
