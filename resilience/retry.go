package resilience

import (
	"context"
	"time"
)

// MaxRetryDelay caps the exponential backoff between attempts.
const MaxRetryDelay = 5 * time.Second

// Retrier runs operations with bounded retry and exponential backoff.
type Retrier struct {
	MaxAttempts  int
	InitialDelay time.Duration

	sleep func(context.Context, time.Duration) error // injected for tests
}

// NewRetrier creates a Retrier with the given attempt budget and initial
// backoff delay. The delay doubles per attempt, capped at MaxRetryDelay.
func NewRetrier(maxAttempts int, initialDelay time.Duration) *Retrier {
	return &Retrier{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		sleep:        sleepCtx,
	}
}

// Do invokes op until it succeeds or the attempt budget is exhausted,
// returning the final error. Context cancellation aborts between
// attempts.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	delay := r.InitialDelay
	var err error

	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= r.MaxAttempts {
			return err
		}
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
		if delay > MaxRetryDelay {
			delay = MaxRetryDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
