package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrOwnershipViolation = errors.New("lock ownership violation")
	ErrInterruptedWait    = errors.New("interrupted while waiting")
	ErrNotHeld            = errors.New("lock not held")
	ErrTaskFailed         = errors.New("task execution failed")
	ErrIO                 = errors.New("i/o failure")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)

// Exit codes returned by the CLI for each error class.
const (
	ExitOK          = 0
	ExitInternal    = 1
	ExitInvalidArgs = 2
	ExitIO          = 3
	ExitInterrupted = 130
)

type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Interrupted wraps a context error so that both errors.Is(err,
// ErrInterruptedWait) and errors.Is(err, context.Canceled) hold.
func Interrupted(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInterruptedWait, cause)
}

// IOFailure wraps a collaborator error as ErrIO, keeping the cause.
func IOFailure(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIO, cause)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, ErrInterruptedWait),
		errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidArgs
	case errors.Is(err, ErrIO):
		return ExitIO
	default:
		return ExitInternal
	}
}

// Is, As and Join re-export the standard helpers so callers need only this package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
