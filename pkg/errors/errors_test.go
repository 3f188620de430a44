package errors

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterrupted_MatchesBothCauses(t *testing.T) {
	err := Interrupted("acquiring read lock", context.Canceled)
	assert.ErrorIs(t, err, ErrInterruptedWait)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "acquiring read lock")
}

func TestIOFailure(t *testing.T) {
	assert.NoError(t, IOFailure("op", nil))
	err := IOFailure("opening x", os.ErrNotExist)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAppError(t *testing.T) {
	err := Newf(ErrOwnershipViolation, "unlock by %d", 7)
	assert.ErrorIs(t, err, ErrOwnershipViolation)
	assert.Equal(t, "lock ownership violation: unlock by 7", err.Error())

	var appErr *AppError
	assert.True(t, As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, "unlock by 7", appErr.Message)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{New(ErrInvalidInput, "bad flag"), ExitInvalidArgs},
		{IOFailure("write", os.ErrPermission), ExitIO},
		{Interrupted("wait", context.Canceled), ExitInterrupted},
		{ErrTaskFailed, ExitInternal},
		{Join(IOFailure("write", os.ErrPermission), Interrupted("wait", context.Canceled)), ExitInterrupted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
