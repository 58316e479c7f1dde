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

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/metrics"
)

// Metadata keys set on every lifecycle message.
const (
	MetadataTopic         = "topic"
	MetadataCorrelationID = "correlation_id"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// EventBusConfig configures the in-process event bus.
type EventBusConfig struct {
	// OutputBuffer is the per-subscriber channel buffer.
	OutputBuffer int64
}

// DefaultEventBusConfig returns production defaults.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{OutputBuffer: 64}
}

// EventBus publishes lifecycle events as JSON watermill messages.
type EventBus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewEventBus creates an event bus backed by a watermill gochannel.
// Publishing never waits for subscribers to acknowledge.
func NewEventBus(cfg EventBusConfig, logger watermill.LoggerAdapter) *EventBus {
	if logger == nil {
		logger = logging.NewWatermillAdapter()
	}
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = DefaultEventBusConfig().OutputBuffer
	}
	return &EventBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.OutputBuffer,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
		logger: logger,
	}
}

// Publish serializes payload and publishes it on topic.
func (b *EventBus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", topic, err)
	}

	msg := message.NewMessage(uuid.New().String(), data)
	msg.Metadata.Set(MetadataTopic, topic)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetadataCorrelationID, id)
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Emit publishes and logs failures instead of returning them.
func (b *EventBus) Emit(ctx context.Context, topic string, payload any) {
	if err := b.Publish(ctx, topic, payload); err != nil && !errors.Is(err, ErrBusClosed) {
		b.logger.Error("Failed to publish lifecycle event", err, watermill.LogFields{"topic": topic})
	}
}

// Subscribe returns a channel of messages published on topic from now on.
// Subscribers must Ack each message.
func (b *EventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	return b.pubsub.Subscribe(ctx, topic)
}

// Publisher exposes the underlying watermill publisher.
func (b *EventBus) Publisher() message.Publisher {
	return b.pubsub
}

// Close stops the bus and closes every subscriber channel.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// DecodePayload unmarshals a lifecycle message into v.
func DecodePayload(msg *message.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decode %s event: %w", msg.Metadata.Get(MetadataTopic), err)
	}
	return nil
}
