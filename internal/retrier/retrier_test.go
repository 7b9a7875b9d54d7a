package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type tempError struct{}

func (tempError) Error() string   { return "try again" }
func (tempError) Temporary() bool { return true }

func newTestRetrier(t *testing.T, attempts int) *Retrier {
	t.Helper()
	r, err := NewRetrier(attempts, time.Millisecond, 10*time.Millisecond, 2, 0, ExponentialBackoff, nil)
	require.NoError(t, err)
	return r
}

func TestRunSucceedsAfterTemporaryFailures(t *testing.T) {
	r := newTestRetrier(t, 3)

	calls := 0
	err := r.Run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return tempError{}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRunStopsOnPermanentError(t *testing.T) {
	r := newTestRetrier(t, 5)

	permanent := errors.New("bad request")
	calls := 0
	err := r.Run(context.Background(), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRunExhaustsAttempts(t *testing.T) {
	r := newTestRetrier(t, 2)

	err := r.Run(context.Background(), func() error {
		return tempError{}
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "max retry attempts")
}

func TestRunHonorsContextCancellation(t *testing.T) {
	r, err := NewRetrier(3, 50*time.Millisecond, time.Second, 2, 0, ExponentialBackoff, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Run(ctx, func() error { return tempError{} })
	require.ErrorIs(t, err, context.Canceled)
}

func TestTempErrorFuncOverridesClassification(t *testing.T) {
	r := newTestRetrier(t, 3)
	r.TempErrorFunc = func(error) bool { return true }

	calls := 0
	err := r.Run(context.Background(), func() error {
		calls++
		return errors.New("usually permanent")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestNewRetrierValidation(t *testing.T) {
	_, err := NewRetrier(0, time.Millisecond, time.Second, 2, 0, ExponentialBackoff, nil)
	require.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewRetrier(1, 0, time.Second, 2, 0, ExponentialBackoff, nil)
	require.ErrorIs(t, err, ErrInvalidBaseDelay)

	_, err = NewRetrier(1, time.Millisecond, time.Second, 0.5, 0, ExponentialBackoff, nil)
	require.ErrorIs(t, err, ErrInvalidFactor)

	_, err = NewRetrier(1, time.Millisecond, time.Second, 2, 1.5, ExponentialBackoff, nil)
	require.ErrorIs(t, err, ErrInvalidJitter)
}
