package scrape

import (
	"context"

	"github.com/northquay/leadex/internal/domain/record"
)

// Query is one text search biased around a circle.
type Query struct {
	Text     string
	Lat      float64
	Lng      float64
	RadiusKm float64
	Country  string
}

// Searcher performs a paginated place search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]record.Record, error)
}

// SeenStore reports whether a place ID is new within the dedup window.
type SeenStore interface {
	Mark(ctx context.Context, placeID string) (bool, error)
}
