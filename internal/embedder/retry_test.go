package embedder

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
)

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, attempts, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset")
			}
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns last error when attempts run out", func(t *testing.T) {
		_, attempts, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			return 0, errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 3, attempts)
	})

	t.Run("client errors fail fast", func(t *testing.T) {
		_, attempts, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			return 0, &openai.Error{StatusCode: http.StatusUnauthorized}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("rate limits are retried", func(t *testing.T) {
		_, attempts, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			return 0, &openai.Error{StatusCode: http.StatusTooManyRequests}
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		_, attempts, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			cancel()
			return 0, errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}
