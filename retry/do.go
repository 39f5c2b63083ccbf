package retry

import (
	"context"
	"fmt"
)

// Do runs fn, retrying per retrier's policy until it succeeds, the retrier
// declines to retry, or MaxAttempts is exhausted. fn reports the HTTP
// status code it observed (0 if none) alongside its error so ShouldRetry
// can exclude 4xx responses. A nil retrier behaves like NoopRetrier.
func Do[T any](ctx context.Context, retrier Retrier, fn func() (T, int, error)) (T, error) {
	if retrier == nil {
		retrier = &NoopRetrier{}
	}

	var zero T
	var lastErr error

	for attempt := 1; ; attempt++ {
		result, statusCode, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if maxAttempts := retrier.MaxAttempts(); maxAttempts > 0 && attempt >= maxAttempts {
			return zero, fmt.Errorf("max retry attempts (%d) reached: %w", maxAttempts, lastErr)
		}

		if !retrier.ShouldRetry(statusCode, err, attempt) {
			return zero, err
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			return zero, fmt.Errorf("context cancelled while waiting to retry: %w", waitErr)
		}
	}
}

// DoVoid is Do for operations with no result value beyond status/error.
func DoVoid(ctx context.Context, retrier Retrier, fn func() (int, error)) error {
	_, err := Do(ctx, retrier, func() (struct{}, int, error) {
		statusCode, err := fn()
		return struct{}{}, statusCode, err
	})
	return err
}
