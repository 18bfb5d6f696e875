package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"vibeconnect/errs"
)

func TestRetrierRetriesTransientErrors(t *testing.T) {
	r := NewRetrier(time.Second, 3, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.Transient(errors.New("deadlock"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierStopsOnPermanentErrors(t *testing.T) {
	r := NewRetrier(time.Second, 3, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.NotFound("user not found")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestRetrierGivesUpAfterMaxRetries(t *testing.T) {
	r := NewRetrier(time.Second, 2, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errs.Transient(errors.New("connection reset"))
	})

	assert.Equal(t, 3, calls)
	assert.True(t, errs.Is(err, errs.KindInternal))
	assert.Equal(t, "storage unavailable", errs.MessageOf(err))
}

func TestRetrierDeadline(t *testing.T) {
	r := NewRetrier(20*time.Millisecond, 1, zap.NewNop())

	err := r.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, errs.Is(err, errs.KindInternal))
	assert.Equal(t, "storage deadline exceeded", errs.MessageOf(err))
}
