// Package errors defines the sentinel errors shared by the indexing and query
// pipelines and an AppError wrapper that carries the offending path.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIO                     = errors.New("io error")
	ErrDecode                 = errors.New("decode error")
	ErrIncompatibleFormat     = errors.New("incompatible index format")
	ErrUnsupportedRankingMode = errors.New("unsupported ranking mode")
	ErrTermNotFound           = errors.New("term not found")
	ErrInvalidConfig          = errors.New("invalid configuration")
	ErrNoGeneration           = errors.New("generation not found")
)

type AppError struct {
	Err     error
	Message string
	Path    string
}

func (e *AppError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Err.Error(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, path string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Path:    path,
	}
}

func Newf(sentinel error, path string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	}
}

// Wrap attaches sentinel to cause so that both errors.Is(err, sentinel) and
// errors.Is(err, cause) hold.
func Wrap(sentinel error, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", sentinel, path, cause)
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// ExitCode maps an error to a process exit status for the command line.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidConfig):
		return 2
	case errors.Is(err, ErrIncompatibleFormat):
		return 3
	case errors.Is(err, ErrNoGeneration):
		return 4
	case errors.Is(err, ErrUnsupportedRankingMode):
		return 5
	case errors.Is(err, ErrIO), errors.Is(err, ErrDecode):
		return 6
	default:
		return 1
	}
}
