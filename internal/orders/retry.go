package orders

import (
	"context"
	"time"
)

// RetryPolicy is a bounded fixed-delay retry used for protective stop updates.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn until it succeeds, MaxAttempts is reached, or ctx is done.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return i, nil
		}
		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return i, ctx.Err()
		case <-time.After(p.Delay):
		}
	}

	return attempts, err
}
