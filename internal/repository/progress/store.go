// Package progress persists per-listing classification results so that an
// interrupted run resumes where it stopped instead of re-spending LLM quota.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/northquay/leadex/internal/db"
	"github.com/northquay/leadex/internal/domain/record"
)

// store is the consumer interface for progress operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Store keeps classification results keyed by canonical listing reference.
type Store struct {
	store  store
	prefix string
}

// New creates a progress store. prefix namespaces all keys, e.g. "leadex:".
func New(s store, prefix string) *Store {
	return &Store{store: s, prefix: prefix}
}

func (s *Store) key(ref string) string {
	return s.prefix + "classify:" + ref
}

// Get returns the stored classification for ref, or ok=false when none exists.
func (s *Store) Get(ctx context.Context, ref string) (record.Classification, bool, error) {
	data, err := s.store.Get(ctx, s.key(ref))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return record.Classification{}, false, nil
		}
		return record.Classification{}, false, fmt.Errorf("progress GET %s: %w", ref, err)
	}

	var cls record.Classification
	if err := json.Unmarshal(data, &cls); err != nil {
		return record.Classification{}, false, fmt.Errorf("progress GET %s decode: %w", ref, err)
	}
	return cls, true, nil
}

// Put stores the classification for ref.
func (s *Store) Put(ctx context.Context, ref string, cls record.Classification) error {
	data, err := json.Marshal(cls)
	if err != nil {
		return fmt.Errorf("progress PUT %s encode: %w", ref, err)
	}
	if err := s.store.Set(ctx, s.key(ref), data); err != nil {
		return fmt.Errorf("progress PUT %s: %w", ref, err)
	}
	return nil
}

// Refs lists all references with a stored classification.
func (s *Store) Refs(ctx context.Context) ([]string, error) {
	keys, err := s.store.Scan(ctx, s.prefix+"classify:*")
	if err != nil {
		return nil, fmt.Errorf("progress SCAN: %w", err)
	}
	refs := make([]string, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, strings.TrimPrefix(k, s.prefix+"classify:"))
	}
	return refs, nil
}

// Clear removes all stored classifications, starting the run from scratch.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.store.Scan(ctx, s.prefix+"classify:*")
	if err != nil {
		return fmt.Errorf("progress SCAN: %w", err)
	}
	for _, k := range keys {
		if err := s.store.Del(ctx, k); err != nil {
			return fmt.Errorf("progress DEL %s: %w", k, err)
		}
	}
	return nil
}
