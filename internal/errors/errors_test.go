package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := NotFound("get user", ErrUserNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, ErrUserNotFound))
	assert.Equal(t, "get user: user not found", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestOutermostKindWins(t *testing.T) {
	inner := Conflict("settle visit", ErrVisitAlreadySettled)
	outer := Consistency("checkout", fmt.Errorf("%w: %w", ErrRewardGrantFailed, inner))

	assert.Equal(t, KindConsistency, KindOf(outer))
	assert.True(t, Is(outer, ErrRewardGrantFailed))
	assert.True(t, Is(outer, ErrVisitAlreadySettled))

	var e *Error
	assert.True(t, As(outer, &e))
	assert.Equal(t, "checkout", e.Op)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "concurrency", KindConcurrency.String())
	assert.Equal(t, "internal", KindUnknown.String())
}
