package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeErr string

func (c codeErr) Error() string     { return "failed: " + string(c) }
func (c codeErr) ErrorCode() string { return string(c) }

func fastPolicy(max int) Policy {
	return Policy{MaxRetries: max, Delay: time.Millisecond, ExponentialBackoff: true}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt, max int) {
		retries = append(retries, attempt)
		assert.Equal(t, 3, max)
	}

	v, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, codeErr("auth/network-request-failed")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt, _ int) { retries = append(retries, attempt) }

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, codeErr("auth/timeout")
	})
	assert.Equal(t, codeErr("auth/timeout"), err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries, "no retry callback after the last attempt")
}

func TestDo_NonTransientFailsFast(t *testing.T) {
	calls := 0
	retried := false
	p := fastPolicy(3)
	p.OnRetry = func(int, int) { retried = true }

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, codeErr("auth/wrong-password")
	})
	assert.Equal(t, codeErr("auth/wrong-password"), err)
	assert.Equal(t, 1, calls)
	assert.False(t, retried)
}

func TestDo_NonTransientOnLastAttemptIsUnwrapped(t *testing.T) {
	_, err := Do(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
		return 0, codeErr("auth/user-not-found")
	})
	assert.Equal(t, codeErr("auth/user-not-found"), err)
}

func TestDo_UncodedErrorsAreRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("socket closed")
	})
	assert.EqualError(t, err, "socket closed")
	assert.Equal(t, 2, calls)
}

func TestDo_ExponentialDelays(t *testing.T) {
	p := Policy{MaxRetries: 3, Delay: 20 * time.Millisecond, ExponentialBackoff: true}
	var stamps []time.Time
	_, _ = Do(context.Background(), p, func(context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("flaky")
	})
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestDo_ZeroMaxRetriesIsOneAttempt(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 5, Delay: time.Hour}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("flaky")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.Delay)
	assert.True(t, p.ExponentialBackoff)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(errors.New("plain")))
	assert.True(t, Transient(codeErr("auth/network-error")))
	assert.False(t, Transient(codeErr("auth/internal-error")))
}
