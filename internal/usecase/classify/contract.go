package classify

import (
	"context"

	"github.com/northquay/leadex/internal/domain/record"
)

// Classifier scores one canonical listing.
type Classifier interface {
	Classify(ctx context.Context, can record.Canonical) (record.Classification, error)
}

// ProgressStore persists per-listing results so interrupted runs resume.
type ProgressStore interface {
	Get(ctx context.Context, ref string) (record.Classification, bool, error)
	Put(ctx context.Context, ref string, cls record.Classification) error
}
