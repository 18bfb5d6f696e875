package utils

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"vibeconnect/errs"
)

// Retrier runs storage operations under a hard deadline, retrying transient
// failures with exponential backoff.
type Retrier struct {
	timeout time.Duration
	retries int
	logger  *zap.Logger
}

func NewRetrier(timeout time.Duration, retries int, logger *zap.Logger) *Retrier {
	return &Retrier{timeout: timeout, retries: retries, logger: logger}
}

func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.retries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil || !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		r.logger.Warn("transient storage error", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Internal("storage deadline exceeded", err)
	case errs.IsTransient(err):
		if ctx.Err() != nil {
			return errs.Internal("storage deadline exceeded", err)
		}
		return errs.Internal("storage unavailable", err)
	}
	return err
}
