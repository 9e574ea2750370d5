package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiterConfig sizes the client-side request budget
type RateLimiterConfig struct {
	Burst     int     // requests allowed back to back (default 5)
	PerSecond float64 // sustained request rate (default 2)
}

// DefaultRateLimiterConfig fits a handful of parallel workers under typical
// provider quotas
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{Burst: 5, PerSecond: 2}
}

// RateLimiter is a token bucket shared by every worker of a client so that
// parallel extraction does not trip the provider's 429 limits
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.PerSecond <= 0 {
		config.PerSecond = def.PerSecond
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(config.PerSecond), config.Burst)}
}

// Wait blocks until a request may be sent or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
