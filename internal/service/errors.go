package service

import (
	"errors"
	"fmt"
	"strings"

	"corruption-report-service/internal/model"
	"corruption-report-service/internal/repository"
	"corruption-report-service/internal/store"
)

// Error classes surfaced to callers. Every error returned by this package
// matches at most one of them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrUnavailable      = errors.New("store unavailable")
)

var (
	errImageTooLarge  = fmt.Errorf("larger than %d bytes", model.MaxImageBytes)
	errMalformedImage = errors.New("not a base64 image")
)

// ValidationError is returned before any write is issued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PartialWriteError reports a multi-step operation that stopped after some
// of its writes were applied. Completed writes are not rolled back.
type PartialWriteError struct {
	Op        string
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %s failed after [%s]: %v", e.Op, e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

func denied(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// classify maps repository and store failures onto the package error classes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrValidation), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, repository.ErrReportNotFound),
		errors.Is(err, repository.ErrCommentNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
