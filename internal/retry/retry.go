// Package retry re-runs operations that fail for transient reasons.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"closet-web/internal/telemetry"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls a retried call. The zero MaxRetries means a single attempt.
type Policy struct {
	// MaxRetries is the maximum number of invocations, the first one included.
	MaxRetries         int
	Delay              time.Duration
	ExponentialBackoff bool
	// OnRetry runs before each wait with the 1-based retry number.
	OnRetry func(attempt, maxRetries int)
	// Retryable overrides Transient.
	Retryable func(error) bool
	Logger    *telemetry.Logger
}

// DefaultPolicy is three attempts, one second apart, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		Delay:              time.Second,
		ExponentialBackoff: true,
	}
}

type coder interface {
	ErrorCode() string
}

// Transient reports whether err may succeed on a later attempt: uncoded
// errors, and codes that name a network or timeout condition.
func Transient(err error) bool {
	var c coder
	if !errors.As(err, &c) || c.ErrorCode() == "" {
		return true
	}
	code := c.ErrorCode()
	return strings.Contains(code, "network") || strings.Contains(code, "timeout")
}

// Do runs op until it succeeds, fails with a non-transient error, or runs out
// of attempts. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxTries := p.MaxRetries
	if maxTries < 1 {
		maxTries = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	operation := func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		if p.OnRetry != nil {
			p.OnRetry(attempt, maxTries)
		}
		p.Logger.Warn(ctx, fmt.Sprintf("Retry attempt %d/%d", attempt, maxTries),
			"delay_ms", next.Milliseconds(),
			"error", err.Error(),
		)
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff(maxTries)),
		backoff.WithMaxTries(uint(maxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)

	// at the try limit the permanent wrapper comes back as is
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}

func (p Policy) backOff(maxTries int) backoff.BackOff {
	if !p.ExponentialBackoff {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Delay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Delay << uint(maxTries),
	}
	b.Reset()
	return b
}
