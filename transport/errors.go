package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindNetworkFailure: the backend could not be reached.
	KindNetworkFailure Kind = iota + 1
	// KindBackendError: the backend answered with an error.
	KindBackendError
	// KindTimeout: the fetch exceeded its deadline.
	KindTimeout
	// KindCanceled: the caller canceled the fetch.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNetworkFailure:
		return "network failure"
	case KindBackendError:
		return "backend error"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors matching each Kind with errors.Is.
var (
	ErrNetworkFailure = errors.New("network failure")
	ErrBackendError   = errors.New("backend error")
	ErrTimeout        = errors.New("timeout")
	ErrCanceled       = errors.New("canceled")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNetworkFailure:
		return ErrNetworkFailure
	case KindBackendError:
		return ErrBackendError
	case KindTimeout:
		return ErrTimeout
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	// Op names the failing step ("http", "flight", "sql", "decode", ...).
	Op  string
	Err error
}

// NewError creates a classified error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of a transport error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// Classify wraps an arbitrary error as *Error.
// Context and net timeouts become KindTimeout, cancellation KindCanceled,
// other net errors KindNetworkFailure and everything else KindBackendError.
// Errors that already are *Error are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return NewError(KindCanceled, op, err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return NewError(KindTimeout, op, err)
		}
		return NewError(KindNetworkFailure, op, err)
	}
	return NewError(KindBackendError, op, err)
}
