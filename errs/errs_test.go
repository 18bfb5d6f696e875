package errs

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid input", InvalidInput("content is required"), KindInvalidInput},
		{"not found", NotFound("user not found"), KindNotFound},
		{"conflict", Conflict("already friends"), KindConflict},
		{"invalid state", InvalidState("no request to accept"), KindInvalidState},
		{"forbidden", Forbidden("not your comment"), KindForbidden},
		{"unauthenticated", Unauthenticated("missing token"), KindUnauthenticated},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("post not found")), KindNotFound},
		{"plain", fmt.Errorf("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "post not found", MessageOf(NotFound("post not found")))
	assert.Equal(t, "internal server error", MessageOf(fmt.Errorf("dial tcp: refused")))
}

func TestTransient(t *testing.T) {
	base := fmt.Errorf("deadlock")
	assert.True(t, IsTransient(Transient(base)))
	assert.True(t, IsTransient(pkgerrors.Wrap(Transient(base), "insert message")))
	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient(nil))
}
