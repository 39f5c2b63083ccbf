package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDo_Success(t *testing.T) {
	t.Parallel()

	result, err := Do(context.Background(), &NoopRetrier{}, func() (string, int, error) {
		return "success", 200, nil
	})

	require.NoError(t, err)
	require.Equal(t, "success", result)
}

func TestDo_NilRetrier(t *testing.T) {
	t.Parallel()

	result, err := Do[string](context.Background(), nil, func() (string, int, error) {
		return "", 500, errors.New("server error")
	})

	require.Error(t, err)
	require.Equal(t, "", result)
}

func TestDo_RetryOn5xx(t *testing.T) {
	t.Parallel()

	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(10 * time.Millisecond).
		WithoutJitter()

	attempts := 0
	result, err := Do(context.Background(), retrier, func() (string, int, error) {
		attempts++
		if attempts < 3 {
			return "", 503, errors.New("server error")
		}
		return "success", 200, nil
	})

	require.NoError(t, err)
	require.Equal(t, "success", result)
	require.Equal(t, 3, attempts)
}

func TestDo_MaxAttemptsReached(t *testing.T) {
	t.Parallel()

	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(10 * time.Millisecond).
		WithoutJitter()

	attempts := 0
	_, err := Do(context.Background(), retrier, func() (string, int, error) {
		attempts++
		return "", 503, errors.New("server error")
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "max retry attempts (3) reached")
	require.Equal(t, 3, attempts)
}

func TestDo_NoRetryOn4xx(t *testing.T) {
	t.Parallel()

	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(10 * time.Millisecond)

	attempts := 0
	_, err := Do(context.Background(), retrier, func() (string, int, error) {
		attempts++
		return "", 422, errors.New("unprocessable")
	})

	require.Error(t, err)
	require.Equal(t, "unprocessable", err.Error())
	require.Equal(t, 1, attempts)
}

func TestDo_ContextCancelledBeforeCall(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(100 * time.Millisecond)
	cancel()

	attempts := 0
	_, err := Do(ctx, retrier, func() (string, int, error) {
		attempts++
		return "", 0, context.Canceled
	})

	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, attempts)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(100 * time.Millisecond)

	attempts := 0
	_, err := Do(ctx, retrier, func() (string, int, error) {
		attempts++
		if attempts == 1 {
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			return "", 503, errors.New("server error")
		}
		return "success", 200, nil
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "context cancelled")
	require.Equal(t, 1, attempts)
}

func TestDoVoid(t *testing.T) {
	t.Parallel()

	retrier := NewExponentialBackoffRetrier().
		WithMaxAttempts(3).
		WithInitialDelay(10 * time.Millisecond).
		WithoutJitter()

	attempts := 0
	err := DoVoid(context.Background(), retrier, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 503, errors.New("server error")
		}
		return 200, nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestExponentialBackoffRetrier_ZeroAndNegativeMaxAttempts(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, (&ExponentialBackoffRetrier{MaxAttemptsValue: 0}).MaxAttempts())
	require.Equal(t, 3, (&ExponentialBackoffRetrier{MaxAttemptsValue: -1}).MaxAttempts())
}

func TestFromContextOrNoop(t *testing.T) {
	t.Parallel()

	retrier := FromContextOrNoop(context.Background())
	require.IsType(t, &NoopRetrier{}, retrier)

	ctx := ToContext(context.Background(), NewExponentialBackoffRetrier())
	retrier = FromContextOrNoop(ctx)
	require.IsType(t, &ExponentialBackoffRetrier{}, retrier)
}
