package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"vibeconnect/database/memory"
	"vibeconnect/errs"
	"vibeconnect/utils"
)

func newService() *Service {
	return NewService(memory.New(), utils.NewRetrier(time.Second, 1, zap.NewNop()), zap.NewNop())
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	created, err := svc.Save(ctx, "u1", ProfileInput{Username: " alice ", Bio: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "alice", created.DisplayName)

	first := created.CreatedAt
	svc.now = func() time.Time { return first.Add(time.Hour) }
	updated, err := svc.Save(ctx, "u1", ProfileInput{Username: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.DisplayName)
	assert.True(t, updated.CreatedAt.Equal(first))

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Empty(t, got.Bio)
}

func TestSaveRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	_, err := svc.Save(ctx, "u1", ProfileInput{Username: "alice"})
	require.NoError(t, err)

	_, err = svc.Save(ctx, "u2", ProfileInput{Username: "alice"})
	assert.True(t, errs.Is(err, errs.KindConflict))
}

func TestSaveValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tests := []struct {
		name string
		in   ProfileInput
	}{
		{"blank username", ProfileInput{Username: "   "}},
		{"whitespace", ProfileInput{Username: "al ice"}},
		{"too long", ProfileInput{Username: "abcdefghijklmnopqrstuvwxyz0123456789"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, "u1", tt.in)
			assert.True(t, errs.Is(err, errs.KindInvalidInput), "got %v", err)
		})
	}
}

func TestGetMissing(t *testing.T) {
	_, err := newService().Get(context.Background(), "ghost")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
