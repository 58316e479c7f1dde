// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/crashguard/internal/logging"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscribe(ctx, TopicFaultUnhandled)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pubCtx := logging.ContextWithCorrelationID(context.Background(), "corr-123")
	event := FaultEvent{FaultID: "f-1", Location: "tick", OriginClientID: "modA", Message: "boom", Panicked: true}
	if err := bus.Publish(pubCtx, TopicFaultUnhandled, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		msg.Ack()
		var got FaultEvent
		if err := DecodePayload(msg, &got); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if got.FaultID != "f-1" || got.OriginClientID != "modA" || !got.Panicked {
			t.Errorf("decoded event = %+v", got)
		}
		if msg.Metadata.Get(MetadataCorrelationID) != "corr-123" {
			t.Errorf("correlation id = %q", msg.Metadata.Get(MetadataCorrelationID))
		}
		if msg.Metadata.Get(MetadataTopic) != TopicFaultUnhandled {
			t.Errorf("topic metadata = %q", msg.Metadata.Get(MetadataTopic))
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestEventBusWithoutSubscribers(t *testing.T) {
	bus := NewEventBus(EventBusConfig{}, nil)
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		bus.Emit(context.Background(), TopicSaveCompleted, SaveEvent{RecordID: "r-1", Kind: "emergency"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked without subscribers")
	}
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := bus.Publish(context.Background(), TopicReloadVetoed, ReloadEvent{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish after Close = %v, want ErrBusClosed", err)
	}
	if _, err := bus.Subscribe(context.Background(), TopicReloadVetoed); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrBusClosed", err)
	}
	// Emit swallows the closed error
	bus.Emit(context.Background(), TopicReloadVetoed, ReloadEvent{})
}
