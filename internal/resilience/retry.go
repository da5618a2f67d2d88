// Package resilience retries transient failures of external lookups with
// jittered exponential backoff.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/config"
)

// Policy controls how an operation is retried.
type Policy struct {
	// Name identifies the operation in retry logs.
	Name string

	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int

	// Backoff is the delay before the first retry; it doubles per attempt
	// up to MaxBackoff. Defaults: 500ms and 30s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter is the random spread as a fraction of the delay (0.25 = ±25%).
	Jitter float64

	// Retryable reports whether err is worth another attempt. Nil means
	// IsTransient.
	Retryable func(err error) bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:       name,
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		Jitter:     0.25,
	}
}

// FromConfig builds a policy from config values, keeping defaults for
// anything unset.
func FromConfig(name string, c config.RetryConfig) Policy {
	p := DefaultPolicy(name)
	if c.Attempts > 0 {
		p.Attempts = c.Attempts
	}
	if c.BackoffMs > 0 {
		p.Backoff = time.Duration(c.BackoffMs) * time.Millisecond
	}
	return p
}

// Run calls fn until it succeeds, returns an error that is not retryable,
// runs out of attempts, or ctx is done. The last error is returned.
func Run[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = withDefaults(p)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == p.Attempts-1 {
			break
		}

		zap.L().Warn("resilience: retrying",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func withDefaults(p Policy) Policy {
	d := DefaultPolicy(p.Name)
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = d.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
