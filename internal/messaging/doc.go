// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

/*
Package messaging carries messages into and out of the supervisor.

Inbound, Mailbox accepts four fire-and-forget request kinds from clients
that cannot call the supervisor directly:

	mb.Send(messaging.RequestEmergencySave{Reason: "client shutdown"})

Send never blocks. A full or closed mailbox drops the message, logs a
warning and counts the drop. Messages are dispatched one at a time on the
mailbox goroutine, which runs under the supervisor tree.

Outbound, EventBus publishes lifecycle events as JSON watermill messages on
an in-process gochannel:

	msgs, _ := bus.Subscribe(ctx, messaging.TopicSafeModeEntered)
	for msg := range msgs {
		var ev messaging.SafeModeEvent
		_ = messaging.DecodePayload(msg, &ev)
		msg.Ack()
	}

Topics: fault.unhandled, safe_mode.entered, safe_mode.reset,
reload.completed, reload.vetoed, save.failed, save.completed.
*/
package messaging
