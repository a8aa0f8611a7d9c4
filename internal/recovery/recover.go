// Package recovery provides panic recovery for user-provided hooks and transports.
// Ensures a panicking hook cannot break the fetch lifecycle.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrPanic matches errors produced from a recovered panic.
var ErrPanic = errors.New("panic recovered")

// PanicError is returned when a wrapped function panics.
type PanicError struct {
	Operation string
	Value     any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Operation, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrPanic
}

// RecoverToError wraps a function call with panic recovery.
// If the function panics, the panic is logged with its stack and returned as *PanicError.
//
// Example:
//
//	err := recovery.RecoverToError(logger, "PreProcess", func() error {
//	    return hooks.PreProcess(ctx, req)
//	})
func RecoverToError(logger *slog.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, operation, r)
			err = &PanicError{Operation: operation, Value: r}
		}
	}()

	return fn()
}

// RecoverToValue wraps a function that returns a value and error.
// If the function panics, returns zero value and *PanicError.
//
// Example:
//
//	res, err := recovery.RecoverToValue(logger, "Fetch", func() (*transport.Result, error) {
//	    return t.Fetch(ctx, q)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, operation, r)
			var zero T
			result = zero
			err = &PanicError{Operation: operation, Value: r}
		}
	}()

	return fn()
}

// Recover wraps a void function with panic recovery.
// Logs the panic but doesn't return an error.
// Use for listener callbacks where errors can't be returned.
func Recover(logger *slog.Logger, operation string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, operation, r)
		}
	}()

	fn()
}

func logPanic(logger *slog.Logger, operation string, r any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("Panic recovered",
		"operation", operation,
		"panic", r,
		"stack", string(debug.Stack()),
	)
}
