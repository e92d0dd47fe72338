package embedder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
)

// RetryConfig bounds retries of remote embedding calls
type RetryConfig struct {
	Attempts   int           // total calls, including the first
	BaseDelay  time.Duration // wait after the first failure
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig retries a remote call three times over about a second
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:   3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 3,
	}
}

// retryable reports whether a remote failure may succeed when repeated:
// rate limits, server errors and transport errors. Other API errors
// (bad key, unknown model, oversized input) fail fast.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, ErrEmptyText)
}

// retryWithBackoff calls fn until it succeeds, returns a non-retryable
// error, ctx ends or the attempts run out. It reports how many calls were made.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, int, error) {
	var zero T
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, attempt, nil
		}
		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}
		if attempt >= cfg.Attempts || !retryable(err) {
			return zero, attempt, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}
}
