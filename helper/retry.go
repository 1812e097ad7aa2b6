package helper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op until it succeeds, returns an error that retryable rejects,
// or maxRetries retries are used up. Waits grow exponentially from 500ms and
// stop early when ctx is done.
func Retry(ctx context.Context, maxRetries int, retryable func(error) bool, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(maxRetries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
