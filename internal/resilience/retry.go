// Package resilience classifies transient failures and retries them.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the retry loop. The zero value performs a single
// attempt; construct via FixedDelay or fill the fields explicitly.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// Delay is the pause between attempts.
	Delay time.Duration

	// RetryAll retries every error instead of only transient ones. The
	// routing service is retried unconditionally: a malformed response is
	// as likely to clear on the next attempt as a timeout.
	RetryAll bool

	// OnRetry is called before each retry sleep with the attempt number
	// (1-based) and the error that triggered it.
	OnRetry func(attempt int, err error)
}

// FixedDelay returns a config that retries every error with a constant
// pause between attempts.
func FixedDelay(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, Delay: delay, RetryAll: true}
}

// DoVal runs fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. Unless RetryAll is set, only errors classified
// transient by IsTransient are retried.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !cfg.RetryAll && !IsTransient(lastErr) {
			return zero, lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
