package chathub

import (
	"errors"
	"fmt"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
)

// Error taxonomy of the realtime core. Operations wrap one of these so that
// callers can classify with errors.Is.
var (
	// ErrTransientIO: a storage or object-store call failed. Reported to the
	// initiator only, never broadcast.
	ErrTransientIO = errors.New("transient io failure")
	// ErrUnauthorized: unauthenticated write or acting on someone else's resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound: the target vanished. Mutations treat it as a no-op success.
	ErrNotFound = errors.New("not found")
	// ErrValidation: malformed input, rejected before touching storage.
	ErrValidation = errors.New("validation failed")
)

// Wire error codes.
const (
	CodeTransientIO  = "transient_io"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeValidation   = "validation"
	CodeInternal     = "internal"
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// transient classifies a collaborator failure. storage.ErrNotFound is mapped
// to ErrNotFound instead.
func transient(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransientIO, op, err)
}

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTransientIO):
		return CodeTransientIO
	default:
		return CodeInternal
	}
}

// errorPayload renders err for its initiator. Transient and internal
// failures do not leak collaborator details.
func errorPayload(err error) *models.ErrorPayload {
	code := ErrorCode(err)
	msg := err.Error()
	switch code {
	case CodeTransientIO:
		msg = "temporary failure, please retry"
	case CodeInternal:
		msg = "internal error"
	}
	return &models.ErrorPayload{Code: code, Message: msg}
}
