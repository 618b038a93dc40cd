// Package retry wraps idempotent API reads in exponential backoff.
// Creation calls that assign numbers must never go through here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds configuration for exponential backoff retry.
type Config struct {
	MaxRetries  int           // Maximum number of retry attempts (default: 4)
	BaseDelay   time.Duration // Initial delay before first retry (default: 1s)
	MaxDelay    time.Duration // Maximum delay cap (default: 30s)
	JitterRatio float64       // Jitter as fraction of delay, 0.0-1.0 (default: 0.25)
}

// DefaultConfig returns the defaults used for GitLab and GitHub reads.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  4,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		JitterRatio: 0.25,
	}
}

// StatusError carries the HTTP status of a failed call so the retry policy
// can tell transient failures from permanent ones.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a transient error (429 / 5xx / network).
// Client errors other than 429 are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.StatusCode == http.StatusTooManyRequests || (serr.StatusCode >= 500 && serr.StatusCode < 600)
	}

	var coder interface{ HTTPStatus() int }
	if errors.As(err, &coder) {
		code := coder.HTTPStatus()
		return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}

	return false
}

// Do runs fn until it succeeds, fails permanently, or retries run out.
// classify decides which errors are worth retrying; nil means IsRetryable.
func Do[T any](ctx context.Context, cfg Config, operation string, classify func(error) bool, fn func() (T, error)) (T, error) {
	if classify == nil {
		classify = IsRetryable
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.RandomizationFactor = cfg.JitterRatio
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(bo, uint64(max(cfg.MaxRetries, 0)))
	policy = backoff.WithContext(policy, ctx)

	var result T
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		var err error
		result, err = fn()
		if err == nil {
			return nil
		}
		if !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctxErr)
		}
		if attempts > cfg.MaxRetries && classify(err) {
			return zero, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, err)
		}
		return zero, err
	}
	return result, nil
}
