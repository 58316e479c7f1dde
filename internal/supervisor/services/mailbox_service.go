// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package services

import (
	"context"
	"fmt"

	"github.com/thejerf/suture/v4"
)

// MailboxRunner is satisfied by *messaging.Mailbox.
type MailboxRunner interface {
	Run(ctx context.Context) error
}

// MailboxService runs the inbound message loop.
//
// Run returns nil only after the mailbox was closed and drained. That is a
// permanent stop, reported to suture as ErrDoNotRestart.
type MailboxService struct {
	mailbox MailboxRunner
	name    string
}

// NewMailboxService creates a new mailbox service wrapper.
func NewMailboxService(mailbox MailboxRunner) *MailboxService {
	return &MailboxService{mailbox: mailbox, name: "mailbox"}
}

// Serve implements suture.Service.
func (s *MailboxService) Serve(ctx context.Context) error {
	err := s.mailbox.Run(ctx)
	switch {
	case err == nil:
		return suture.ErrDoNotRestart
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("mailbox loop failed: %w", err)
	}
}

// String implements fmt.Stringer for logging.
func (s *MailboxService) String() string {
	return s.name
}
