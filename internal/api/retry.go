package api

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls how failed issuer calls are retried. The zero value
// never retries.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps every wait, including one requested by Retry-After.
	MaxDelay time.Duration
	// Multiplier scales the wait after each retry.
	Multiplier float64
	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64
	// RetryableOn reports whether a response status is worth retrying.
	// Nil retries only network errors.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryConfig retries timeouts, rate limiting and gateway failures
// three times, starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
		RetryableOn: retryableStatus,
	}
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ShouldRetry reports whether attempt (zero-based) may be followed by
// another one after a response with statusCode.
func (r *RetryConfig) ShouldRetry(attempt int, statusCode int) bool {
	return attempt < r.MaxRetries && r.RetryableOn != nil && r.RetryableOn(statusCode)
}

// Delay returns the wait after attempt.
func (r *RetryConfig) Delay(attempt int) time.Duration {
	d := r.BaseDelay
	for i := 0; i < attempt && (r.MaxDelay <= 0 || d < r.MaxDelay); i++ {
		d = time.Duration(float64(d) * r.Multiplier)
	}
	if r.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * r.Jitter * float64(d))
	}
	return r.clamp(d)
}

func (r *RetryConfig) clamp(d time.Duration) time.Duration {
	if r.MaxDelay > 0 && d > r.MaxDelay {
		return r.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks for Delay(attempt) or until ctx is done.
func (r *RetryConfig) Wait(ctx context.Context, attempt int) error {
	return sleep(ctx, r.Delay(attempt))
}

// waitFor is Wait, except that a Retry-After response header in seconds
// replaces the computed delay.
func (r *RetryConfig) waitFor(ctx context.Context, attempt int, resp *http.Response) error {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			return sleep(ctx, r.clamp(time.Duration(secs)*time.Second))
		}
	}
	return r.Wait(ctx, attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
