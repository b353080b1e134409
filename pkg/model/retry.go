package model

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for upstream requests.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// transientMarkers are message fragments that identify a transient upstream
// failure. Matched case-insensitively against the full error chain text.
var transientMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
	"temporary failure",
}

// IsTransient reports whether an error is worth retrying. Typed APIErrors
// carry their own classification; everything else falls back to message
// inspection. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// BackoffFor returns the delay before retry attempt n (1-based). A
// Retry-After carried by the previous error takes precedence over the
// exponential schedule; both are capped at MaxInterval.
func (rc RetryConfig) BackoffFor(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > rc.MaxInterval {
			return rc.MaxInterval
		}
		return apiErr.RetryAfter
	}

	if attempt <= 1 {
		return rc.InitialInterval
	}

	delay := float64(rc.InitialInterval)
	for i := 1; i < attempt; i++ {
		delay *= rc.Multiplier
	}
	if delay > float64(rc.MaxInterval) {
		delay = float64(rc.MaxInterval)
	}
	return time.Duration(delay)
}

// sleepBackoff waits out the computed backoff or returns early with the
// context's error.
func sleepBackoff(ctx context.Context, rc RetryConfig, attempt int, lastErr error) error {
	delay := rc.BackoffFor(attempt, lastErr)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
