package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsAreDistinguishable(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewConnectionError("dial-failed", "failed to reach bridge", cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)

	assert.ErrorIs(t, NewTimeoutError("call-timeout", "no answer"), ErrTimeout)
	assert.ErrorIs(t, NewAbortedError("setup", "cancelled", nil), ErrAborted)
	assert.ErrorIs(t, NewInitializationError("listen-failed", "bind failed", nil), ErrInitialization)
}

func TestErrorMessageIncludesCodeAndCause(t *testing.T) {
	err := NewConnectionError("dial-failed", "failed to reach bridge", errors.New("refused"))
	assert.Contains(t, err.Error(), "dial-failed")
	assert.Contains(t, err.Error(), "refused")

	bare := NewTimeoutError("call-timeout", "no answer")
	assert.Contains(t, bare.Error(), "call-timeout")
}

func TestErrorAsRecoversTypedError(t *testing.T) {
	var typed *Error
	require.ErrorAs(t, NewAbortedError("setup", "cancelled", nil), &typed)
	assert.Equal(t, "setup", typed.Code)
}
