package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
)

// RetryPolicy bounds a retried operation.
//
// With Multiplier at 0 or 1 the delay between attempts is fixed; above 1 it
// grows exponentially up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Sleep waits between attempts. Nil uses a context-aware timer; tests
	// replace it to run without real time passing.
	Sleep func(ctx context.Context, d time.Duration) error
}

// PolicyFromConfig builds the fixed-delay publish policy.
func PolicyFromConfig(cfg config.MQTTPublishConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.RetryDelay,
		Multiplier:  1,
	}
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx ends.
// between, if not nil, runs after every failed attempt that will be retried.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, between func(attempt int, err error)) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt, err
		}
		if attempt == attempts {
			break
		}

		if between != nil {
			between(attempt, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, err
		}
		delay = p.next(delay)
	}
	return attempts, lastErr
}

func (p RetryPolicy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	d = time.Duration(float64(d) * p.Multiplier)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
