// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package interceptor

import (
	"errors"
	"fmt"

	"github.com/tomtom215/crashguard/internal/models"
)

// ErrUnhandledFault matches every *UnhandledFaultError.
var ErrUnhandledFault = errors.New("unhandled fault")

// errHandlerPanicked is reported to a handler's circuit breaker.
var errHandlerPanicked = errors.New("crash handler panicked")

// UnhandledFaultError is returned by Guard when no handler resolved a fault.
type UnhandledFaultError struct {
	Fault models.FaultContext
}

func (e *UnhandledFaultError) Error() string {
	return fmt.Sprintf("unhandled fault %s at %s: %s", e.Fault.ID, e.Fault.Location, e.Fault.Message)
}

// Unwrap exposes both ErrUnhandledFault and the original cause.
func (e *UnhandledFaultError) Unwrap() []error {
	if e.Fault.Cause == nil {
		return []error{ErrUnhandledFault}
	}
	return []error{ErrUnhandledFault, e.Fault.Cause}
}

// PanicError is the cause of a fault raised by a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
