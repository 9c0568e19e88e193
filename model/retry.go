package model

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries of a flaky call. Retryable decides which
// errors are worth another attempt; nil means every error except a
// cancelled or expired context.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Retryable       func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx is done.
func Retry(ctx context.Context, p RetryPolicy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return true }
	}

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}

// IsTransient reports whether err was marked as a transient failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
