package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Error kinds. Every failure surfaced by the store, analyzer, codec and
// backends wraps exactly one of these.
var (
	ErrDuplicateIdentity       = errors.New("duplicate identity")
	ErrIncomparableMeasurement = errors.New("incomparable measurement")
	ErrMalformedDocument       = errors.New("malformed document")
	ErrStorageUnavailable      = errors.New("storage unavailable")
	ErrInvalidRecord           = errors.New("invalid record")
)

// Error carries the kind of failure together with the operation and the
// subject (suite, record or document path) it concerns.
type Error struct {
	Kind    error
	Op      string
	Subject string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New creates an Error of the given kind.
func New(kind error, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Newf creates an Error whose cause is a formatted message.
func Newf(kind error, op, subject, format string, args ...any) *Error {
	return New(kind, op, subject, fmt.Errorf(format, args...))
}

// Storage wraps an I/O failure as StorageUnavailable. A nil err stays nil and
// errors that already carry a kind are returned unchanged.
func Storage(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(ErrStorageUnavailable, op, subject, err)
}

// IsRetryable reports whether the orchestration layer may retry the failed
// operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. The delay grows linearly.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := delay * time.Duration(i+1)
		slog.Warn("retrying after storage failure", "attempt", i+1, "max", attempts, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("max retries reached: %w", err)
}
