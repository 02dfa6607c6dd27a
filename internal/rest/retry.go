package rest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sawpanic/ingestd/internal/model"
)

// RetryPolicy tunes the exponential-backoff-with-jitter loop, mirroring
// config.RetryConfig.
type RetryPolicy struct {
	Attempts   int
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// delay returns the backoff for the given zero-indexed attempt, clamped to
// Max and jittered by up to ±25%.
func (p RetryPolicy) delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	jitter := 1 + (rand.Float64()*0.5 - 0.25)
	return time.Duration(d * jitter)
}

// withRetry runs fn, classifying errors per the error taxonomy (§7):
// NetworkError/Timeout/ServerError retry with exponential backoff, counting
// against p.Attempts; RateLimited honors an explicit Retry-After and does
// NOT count against the attempt budget (§4.1) — the server told us exactly
// how long to wait, so that wait is not a wasted attempt, only ctx expiring
// bounds it; ExchangeError (non-429) and ParseError abort immediately
// without retrying.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < p.Attempts; {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}

		var ce *model.CollectorError
		retryAfter := time.Duration(0)
		rateLimited := false
		if errors.As(err, &ce) {
			if !ce.Retryable() {
				return zero, err
			}
			if ce.Kind == model.KindRateLim && ce.RetryAfter > 0 {
				retryAfter = time.Duration(ce.RetryAfter) * time.Second
				rateLimited = true
			}
		} else {
			// unclassified error: treat conservatively as retryable network failure
		}

		if !rateLimited {
			attempt++
			if attempt >= p.Attempts {
				break
			}
		}

		select {
		case <-time.After(p.delay(attempt, retryAfter)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
