// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package reload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReloadInProgress is returned when a reload is requested while
	// another transaction is running.
	ErrReloadInProgress = errors.New("reload already in progress")

	// ErrHotReloadDisabled is returned when the hot_reload feature is off,
	// whether by configuration, a compatibility layer or safe mode.
	ErrHotReloadDisabled = errors.New("hot reload is disabled")

	// ErrReloadVetoed matches every *VetoError.
	ErrReloadVetoed = errors.New("reload vetoed")

	// ErrFreezeTimeout is returned when host work could not be paused
	// within the freeze budget. Nothing was changed.
	ErrFreezeTimeout = errors.New("host could not be frozen in time")
)

// VetoError lists the clients whose compatibility layer refused a reload.
type VetoError struct {
	Clients []string
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("reload vetoed by %s", strings.Join(e.Clients, ", "))
}

// Is reports whether target is ErrReloadVetoed.
func (e *VetoError) Is(target error) bool {
	return target == ErrReloadVetoed
}
