// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package config

import (
	"fmt"
	"sort"

	"github.com/tomtom215/crashguard/internal/validation"
)

// Validate checks struct tags, then the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateServer,
		c.validateSave,
		c.validateLoadOrder,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server.enabled is true")
	}
	return nil
}

// validateSave requires a path for on-disk stores and a write timeout that
// fits in the shutdown budget, so the final flush can complete.
func (c *Config) validateSave() error {
	if !c.Save.InMemory && c.Save.Path == "" {
		return fmt.Errorf("save.path is required unless save.in_memory is true")
	}
	if c.Save.WriteTimeout > c.Supervisor.ShutdownTimeout {
		return fmt.Errorf("save.write_timeout (%v) must not exceed supervisor.shutdown_timeout (%v)",
			c.Save.WriteTimeout, c.Supervisor.ShutdownTimeout)
	}
	return nil
}

// validateLoadOrder rejects self-dependencies and direct cycles.
func (c *Config) validateLoadOrder() error {
	deps := c.LoadOrder.SoftDependencies
	clients := make([]string, 0, len(deps))
	for client := range deps {
		clients = append(clients, client)
	}
	sort.Strings(clients)

	for _, client := range clients {
		for _, dep := range deps[client] {
			if dep == client {
				return fmt.Errorf("load_order.soft_dependencies: %s depends on itself", client)
			}
			for _, back := range deps[dep] {
				if back == client {
					return fmt.Errorf("load_order.soft_dependencies: %s and %s depend on each other", client, dep)
				}
			}
		}
	}
	return nil
}
