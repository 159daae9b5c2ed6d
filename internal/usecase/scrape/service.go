// Package scrape walks the configured search plan and harvests raw listings.
package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
	"github.com/northquay/leadex/internal/metrics"
)

// Location is one search center of a country plan.
type Location struct {
	Name     string
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// CountryPlan groups the localized queries and target cities of one market.
type CountryPlan struct {
	Name      string
	Queries   []string
	Locations []Location
}

// Service runs every query of every location of every country in plan order.
type Service struct {
	searcher Searcher
	seen     SeenStore // nil disables the cross-run dedup window
	plan     []CountryPlan
	logger   *zap.Logger

	// Progress, when set, is called after each completed query.
	Progress func(country string, harvested int)
}

// New creates a scrape service. seen may be nil.
func New(searcher Searcher, seen SeenStore, plan []CountryPlan, logger *zap.Logger) (*Service, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required: %w", domain.ErrInvalidConfig)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty search plan: %w", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, seen: seen, plan: plan, logger: logger}, nil
}

// Run harvests the full plan. Rate-limit and quota errors abort the run;
// listings collected so far are returned alongside the error. Other provider
// failures skip the failing query and continue.
func (s *Service) Run(ctx context.Context) ([]record.Record, error) {
	var results []record.Record
	inRun := make(map[string]bool)

	for _, country := range s.plan {
		s.logger.Info("scraping country",
			zap.String("country", country.Name),
			zap.Int("locations", len(country.Locations)),
			zap.Int("queries", len(country.Queries)))

		for _, loc := range country.Locations {
			for _, text := range country.Queries {
				if err := ctx.Err(); err != nil {
					return results, err
				}

				q := Query{
					Text:     text,
					Lat:      loc.Lat,
					Lng:      loc.Lng,
					RadiusKm: loc.RadiusKm,
					Country:  country.Name,
				}
				found, err := s.searcher.Search(ctx, q)
				if err != nil {
					if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrQuotaExceeded) {
						results = s.absorb(ctx, results, found, inRun, country.Name)
						return results, fmt.Errorf("scrape aborted at %s/%s: %w", country.Name, loc.Name, err)
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return results, err
					}
					s.logger.Warn("query failed, continuing",
						zap.String("country", country.Name),
						zap.String("location", loc.Name),
						zap.String("query", text),
						zap.Error(err))
					continue
				}

				results = s.absorb(ctx, results, found, inRun, country.Name)
				if s.Progress != nil {
					s.Progress(country.Name, len(results))
				}
			}
		}
	}

	s.logger.Info("scrape finished", zap.Int("listings", len(results)))
	return results, nil
}

// absorb appends found listings, dropping in-run repeats and, when the seen
// store is attached, listings harvested within the rolling window.
func (s *Service) absorb(ctx context.Context, results, found []record.Record, inRun map[string]bool, country string) []record.Record {
	for _, r := range found {
		if r.PlaceID != "" {
			if inRun[r.PlaceID] {
				continue
			}
			inRun[r.PlaceID] = true

			if s.seen != nil {
				fresh, err := s.seen.Mark(ctx, r.PlaceID)
				if err != nil {
					s.logger.Warn("seen store unavailable, keeping listing",
						zap.String("place_id", r.PlaceID), zap.Error(err))
				} else if !fresh {
					metrics.ScrapeListingsTotal.WithLabelValues(country, "seen").Inc()
					continue
				}
			}
		}
		metrics.ScrapeListingsTotal.WithLabelValues(country, "fresh").Inc()
		results = append(results, r)
	}
	return results
}
