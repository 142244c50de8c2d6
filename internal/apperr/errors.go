// README: Error taxonomy shared by the state machine, resolver and dispatch coordinator.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrValidation is missing or invalid input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition is an illegal state machine edge.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrConflict means the caller lost a race (staff double-booked, request already claimed).
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized means the acting role may not perform the action.
	ErrUnauthorized = errors.New("not authorized")
	// ErrTransient is a retryable infrastructure failure.
	ErrTransient = errors.New("transient error")
	ErrNotFound  = errors.New("not found")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return wrap(ErrInvalidTransition, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return wrap(ErrUnauthorized, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// FromStore marks connection-level failures as transient so callers may retry
// them. Query errors reported by the server pass through unchanged.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// Retryable reports whether the calling layer may retry err with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
