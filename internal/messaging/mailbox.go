// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/metrics"
	"github.com/tomtom215/crashguard/internal/models"
)

// Mailbox errors. Send never blocks; these are informational and the
// message has already been dropped when they are returned.
var (
	ErrMailboxClosed  = errors.New("mailbox is closed")
	ErrMailboxFull    = errors.New("mailbox is full")
	ErrInvalidMessage = errors.New("invalid mailbox message")
)

// Message kinds.
const (
	KindRegisterCrashHandler = "register_crash_handler"
	KindRegisterCompatLayer  = "register_compat_layer"
	KindRequestEmergencySave = "request_emergency_save"
	KindCheckCompatibility   = "check_compatibility"
)

// Message is one inbound fire-and-forget request. The set of
// implementations is closed.
type Message interface {
	Kind() string
	isMessage()
}

// RegisterCrashHandler asks the supervisor to register a crash handler.
type RegisterCrashHandler struct {
	ClientID string
	Handler  models.CrashHandler
}

// RegisterCompatLayer asks the supervisor to register a compatibility layer.
type RegisterCompatLayer struct {
	ClientID string
	Layer    models.CompatibilityLayer
}

// RequestEmergencySave asks for an emergency save.
type RequestEmergencySave struct {
	Reason string
}

// CheckCompatibility asks for a compatibility report on one client. The
// result is logged.
type CheckCompatibility struct {
	ClientID string
}

func (RegisterCrashHandler) Kind() string { return KindRegisterCrashHandler }
func (RegisterCompatLayer) Kind() string  { return KindRegisterCompatLayer }
func (RequestEmergencySave) Kind() string { return KindRequestEmergencySave }
func (CheckCompatibility) Kind() string   { return KindCheckCompatibility }

func (RegisterCrashHandler) isMessage() {}
func (RegisterCompatLayer) isMessage()  {}
func (RequestEmergencySave) isMessage() {}
func (CheckCompatibility) isMessage()   {}

// Dispatcher executes mailbox messages.
type Dispatcher interface {
	RegisterCrashHandler(clientID string, handler models.CrashHandler) error
	RegisterCompatibilityLayer(ctx context.Context, clientID string, layer models.CompatibilityLayer) error
	RequestEmergencySave(reason string)
	CheckCompatibility(ctx context.Context, clientID string)
}

// Mailbox is a bounded inbound queue drained by one goroutine.
type Mailbox struct {
	ch         chan Message
	dispatcher Dispatcher

	mu     sync.RWMutex
	closed bool
}

// NewMailbox creates a mailbox with the given buffer size.
func NewMailbox(buffer int, dispatcher Dispatcher) *Mailbox {
	if buffer <= 0 {
		buffer = 1
	}
	return &Mailbox{
		ch:         make(chan Message, buffer),
		dispatcher: dispatcher,
	}
}

// Send enqueues msg without blocking. Pointer forms of the four message
// types are accepted and queued by value. A nil pointer, a full or a closed
// mailbox drops the message with a warning.
func (m *Mailbox) Send(msg Message) error {
	if msg == nil {
		return nil
	}
	msg, kind, ok := normalize(msg)
	if !ok {
		metrics.MailboxDropped.WithLabelValues(kind).Inc()
		logging.Warn().Str("kind", kind).Msg("Invalid mailbox message dropped")
		return ErrInvalidMessage
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		metrics.MailboxDropped.WithLabelValues(msg.Kind()).Inc()
		logging.Warn().Str("kind", msg.Kind()).Msg("Mailbox closed, message dropped")
		return ErrMailboxClosed
	}

	select {
	case m.ch <- msg:
		return nil
	default:
		metrics.MailboxDropped.WithLabelValues(msg.Kind()).Inc()
		logging.Warn().Str("kind", msg.Kind()).Int("buffer", cap(m.ch)).Msg("Mailbox full, message dropped")
		return ErrMailboxFull
	}
}

// Run dispatches messages until ctx is done or the mailbox is closed.
// After Close, Run drains what is already queued and returns nil.
func (m *Mailbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-m.ch:
			if !ok {
				return nil
			}
			m.dispatch(ctx, msg)
		}
	}
}

// Close stops accepting messages. Safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

func (m *Mailbox) dispatch(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("kind", msg.Kind()).Str("panic", fmt.Sprint(r)).Msg("Mailbox dispatch panicked")
		}
	}()

	metrics.MailboxMessages.WithLabelValues(msg.Kind()).Inc()

	var err error
	switch v := msg.(type) {
	case RegisterCrashHandler:
		err = m.dispatcher.RegisterCrashHandler(v.ClientID, v.Handler)
	case RegisterCompatLayer:
		err = m.dispatcher.RegisterCompatibilityLayer(ctx, v.ClientID, v.Layer)
	case RequestEmergencySave:
		m.dispatcher.RequestEmergencySave(v.Reason)
	case CheckCompatibility:
		m.dispatcher.CheckCompatibility(ctx, v.ClientID)
	default:
		metrics.MailboxDropped.WithLabelValues(msg.Kind()).Inc()
		logging.Warn().Str("kind", msg.Kind()).Str("type", fmt.Sprintf("%T", msg)).Msg("Unknown mailbox message dropped")
		return
	}
	if err != nil {
		logging.Warn().Err(err).Str("kind", msg.Kind()).Msg("Mailbox message rejected")
	}
}

// normalize dereferences pointer messages so dispatch only sees values.
// It reports false for nil pointers, whose Kind cannot be called.
func normalize(msg Message) (Message, string, bool) {
	switch v := msg.(type) {
	case *RegisterCrashHandler:
		if v == nil {
			return nil, KindRegisterCrashHandler, false
		}
		return *v, KindRegisterCrashHandler, true
	case *RegisterCompatLayer:
		if v == nil {
			return nil, KindRegisterCompatLayer, false
		}
		return *v, KindRegisterCompatLayer, true
	case *RequestEmergencySave:
		if v == nil {
			return nil, KindRequestEmergencySave, false
		}
		return *v, KindRequestEmergencySave, true
	case *CheckCompatibility:
		if v == nil {
			return nil, KindCheckCompatibility, false
		}
		return *v, KindCheckCompatibility, true
	default:
		return msg, msg.Kind(), true
	}
}
