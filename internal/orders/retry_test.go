package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Do(t *testing.T) {
	errFail := errors.New("boom")

	tests := []struct {
		name         string
		failures     int
		maxAttempts  int
		wantAttempts int
		wantErr      bool
	}{
		{name: "first-try", failures: 0, maxAttempts: 3, wantAttempts: 1},
		{name: "second-try", failures: 1, maxAttempts: 3, wantAttempts: 2},
		{name: "exhausted", failures: 5, maxAttempts: 3, wantAttempts: 3, wantErr: true},
		{name: "zero-attempts-runs-once", failures: 5, maxAttempts: 0, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := RetryPolicy{MaxAttempts: tt.maxAttempts, Delay: time.Millisecond}

			attempts, err := p.Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errFail
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			if tt.wantErr {
				require.ErrorIs(t, err, errFail)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, Delay: time.Hour}

	attempts, err := p.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("boom")
	})

	assert.Equal(t, 1, attempts)
	require.ErrorIs(t, err, context.Canceled)
}
