package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		Name:              "test",
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	attempts := 0
	err := rm.Reconnect(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, time.Millisecond, rm.currentBackoff, "backoff resets after success")
}

func TestReconnect_BackoffGrowthAndCap(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	tests := []struct {
		name string
		want time.Duration
	}{
		{name: "first-growth", want: 200 * time.Millisecond},
		{name: "capped", want: 300 * time.Millisecond},
		{name: "stays-capped", want: 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm.incrementBackoff()
			assert.Equal(t, tt.want, rm.currentBackoff)
		})
	}
}

func TestReconnect_Jitter(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		JitterPercent: 0.2,
	}, zaptest.NewLogger(t))

	for i := 0; i < 50; i++ {
		b := rm.nextBackoff()
		assert.GreaterOrEqual(t, b, 100*time.Millisecond)
		assert.LessOrEqual(t, b, 120*time.Millisecond)
	}
}

func TestReconnect_ContextCancellation(t *testing.T) {
	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      time.Hour,
		MaxDelay:          time.Hour,
		BackoffMultiplier: 2.0,
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rm.Reconnect(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
