// Package classify runs LLM prioritisation over canonical listings with
// resume support and rate limiting.
package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/northquay/leadex/internal/domain"
	"github.com/northquay/leadex/internal/domain/record"
)

const rateLimitRetries = 3

// Config holds classification run settings.
type Config struct {
	RequestsPerMin float64
	SaveEvery      int
}

// Service classifies canonical listings one by one.
type Service struct {
	classifier Classifier
	progress   ProgressStore // nil disables resume
	limiter    *rate.Limiter
	saveEvery  int
	backoff    time.Duration
	logger     *zap.Logger

	// Progress, when set, is called after each classified listing.
	Progress func(done int)
}

// New creates a classification service. progress may be nil.
func New(classifier Classifier, progress ProgressStore, cfg Config, logger *zap.Logger) (*Service, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required: %w", domain.ErrInvalidConfig)
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 3
	}
	saveEvery := cfg.SaveEvery
	if saveEvery <= 0 {
		saveEvery = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		classifier: classifier,
		progress:   progress,
		limiter:    rate.NewLimiter(rate.Limit(rpm/60), 1),
		saveEvery:  saveEvery,
		backoff:    10 * time.Second,
		logger:     logger,
	}, nil
}

// Run annotates every listing in place. Already-stored results are reused
// instead of re-spending quota. A quota error stops the run; listings
// classified so far keep their annotations and the error is returned.
func (s *Service) Run(ctx context.Context, cans []record.Canonical) error {
	done := 0
	for i := range cans {
		ref := cans[i].Ref()

		if s.progress != nil {
			cls, ok, err := s.progress.Get(ctx, ref)
			if err != nil {
				s.logger.Warn("progress lookup failed", zap.String("ref", ref), zap.Error(err))
			} else if ok {
				cans[i].Classification = &cls
				done++
				continue
			}
		}

		cls, err := s.classifyWithRetry(ctx, cans[i])
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return fmt.Errorf("classification stopped after %d listings: %w", done, err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Warn("classification failed, skipping listing",
				zap.String("ref", ref), zap.Error(err))
			continue
		}

		cans[i].Classification = &cls
		done++

		if s.progress != nil {
			if err := s.progress.Put(ctx, ref, cls); err != nil {
				s.logger.Warn("progress save failed", zap.String("ref", ref), zap.Error(err))
			}
		}
		if s.Progress != nil {
			s.Progress(done)
		}
		if done%s.saveEvery == 0 {
			s.logger.Info("classification checkpoint",
				zap.Int("done", done), zap.Int("total", len(cans)))
		}
	}

	s.logger.Info("classification finished",
		zap.Int("classified", done), zap.Int("total", len(cans)))
	return nil
}

// classifyWithRetry waits for the limiter and backs off on 429 responses.
func (s *Service) classifyWithRetry(ctx context.Context, can record.Canonical) (record.Classification, error) {
	var lastErr error
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return record.Classification{}, err
		}

		cls, err := s.classifier.Classify(ctx, can)
		if err == nil {
			return cls, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrRateLimited) {
			return record.Classification{}, err
		}

		backoff := time.Duration(attempt+1) * s.backoff
		s.logger.Warn("rate limited, backing off",
			zap.String("ref", can.Ref()),
			zap.Duration("backoff", backoff),
			zap.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return record.Classification{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return record.Classification{}, lastErr
}
