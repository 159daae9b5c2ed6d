package domain

import "errors"

var (
	// ErrInvalidConfig signals an invalid engine or pipeline configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrRateLimited signals a rate limit hit on an external API.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted external API quota.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProviderError signals an external provider failure.
	ErrProviderError = errors.New("provider error")
)
