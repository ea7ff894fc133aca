// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docmill/docmill/lib/clock"
)

// fakeBroker records publishes and injects failures.
type fakeBroker struct {
	dialErr    error
	publishErr error
	dialCount  int

	declaredExchange string
	declaredKind     string
	declaredDurable  bool

	published []publishedMessage
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

func (b *fakeBroker) dial(url string) (amqpConnection, error) {
	b.dialCount++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	return &fakeConnection{broker: b}, nil
}

type fakeConnection struct{ broker *fakeBroker }

func (c *fakeConnection) Channel() (amqpChannel, error) { return &fakeChannel{broker: c.broker}, nil }
func (c *fakeConnection) Close() error                  { return nil }

type fakeChannel struct{ broker *fakeBroker }

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.broker.declaredExchange = name
	c.broker.declaredKind = kind
	c.broker.declaredDurable = durable
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.broker.publishErr != nil {
		return c.broker.publishErr
	}
	c.broker.published = append(c.broker.published, publishedMessage{
		exchange:   exchange,
		routingKey: key,
		msg:        msg,
	})
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func newTestPublisher(t *testing.T, broker *fakeBroker, fake *clock.Fake) *AMQPPublisher {
	t.Helper()
	publisher, err := NewAMQPPublisher(AMQPPublisherConfig{
		URL:      "amqp://localhost:5672/",
		Exchange: "docmill.events",
		Clock:    fake,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial:     broker.dial,
	})
	if err != nil {
		t.Fatalf("NewAMQPPublisher: %v", err)
	}
	t.Cleanup(func() { publisher.Close() })
	return publisher
}

func TestPublishDeclaresAndDelivers(t *testing.T) {
	broker := &fakeBroker{}
	publisher := newTestPublisher(t, broker, clock.NewFake())

	event := Event{
		RoutingKey:    RouteOperationCompleted,
		OperationID:   "op-1",
		OperationKind: "watermark",
		Outcome:       "completed",
		FileID:        "file-2",
		Timestamp:     time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if broker.declaredExchange != "docmill.events" || broker.declaredKind != "topic" || !broker.declaredDurable {
		t.Fatalf("exchange declared as (%q, %q, durable=%v)",
			broker.declaredExchange, broker.declaredKind, broker.declaredDurable)
	}

	if len(broker.published) != 1 {
		t.Fatalf("published %d messages", len(broker.published))
	}
	got := broker.published[0]
	if got.exchange != "docmill.events" || got.routingKey != RouteOperationCompleted {
		t.Fatalf("published to (%q, %q)", got.exchange, got.routingKey)
	}
	if got.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("delivery mode = %d, want persistent", got.msg.DeliveryMode)
	}
	if got.msg.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.msg.ContentType)
	}

	var decoded Event
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.OperationID != "op-1" || decoded.Outcome != "completed" ||
		decoded.RoutingKey != RouteOperationCompleted || decoded.FileID != "file-2" {
		t.Fatalf("decoded event = %+v", decoded)
	}
}

func TestPublishReusesConnection(t *testing.T) {
	broker := &fakeBroker{}
	publisher := newTestPublisher(t, broker, clock.NewFake())

	for range 3 {
		if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if broker.dialCount != 1 {
		t.Fatalf("dial count = %d, want 1", broker.dialCount)
	}
}

func TestPublishBackoff(t *testing.T) {
	broker := &fakeBroker{dialErr: errors.New("connection refused")}
	fake := clock.NewFake()
	publisher := newTestPublisher(t, broker, fake)

	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err == nil {
		t.Fatal("Publish succeeded against a dead broker")
	}
	if broker.dialCount != 1 {
		t.Fatalf("dial count = %d", broker.dialCount)
	}

	// Within the backoff window, publishes fail fast without dialing.
	err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded})
	if err == nil || !strings.Contains(err.Error(), "retrying") {
		t.Fatalf("publish during backoff = %v", err)
	}
	if broker.dialCount != 1 {
		t.Fatalf("dial count during backoff = %d", broker.dialCount)
	}

	// After the window a new dial is attempted; the broker is back.
	fake.Advance(2 * time.Second)
	broker.dialErr = nil
	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err != nil {
		t.Fatalf("Publish after recovery: %v", err)
	}
	if broker.dialCount != 2 {
		t.Fatalf("dial count after recovery = %d", broker.dialCount)
	}
	if len(broker.published) != 1 {
		t.Fatalf("published %d messages", len(broker.published))
	}
}

func TestPublishErrorInvalidatesConnection(t *testing.T) {
	broker := &fakeBroker{}
	fake := clock.NewFake()
	publisher := newTestPublisher(t, broker, fake)

	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	broker.publishErr = errors.New("channel closed")
	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err == nil {
		t.Fatal("Publish succeeded through a broken channel")
	}

	// The next publish re-dials rather than reusing the dead channel.
	broker.publishErr = nil
	fake.Advance(time.Minute)
	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err != nil {
		t.Fatalf("Publish after reconnect: %v", err)
	}
	if broker.dialCount != 2 {
		t.Fatalf("dial count = %d, want 2", broker.dialCount)
	}
}

func TestPublishAfterClose(t *testing.T) {
	broker := &fakeBroker{}
	publisher := newTestPublisher(t, broker, clock.NewFake())

	if err := publisher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := publisher.Publish(context.Background(), Event{RoutingKey: RouteFileUploaded}); err == nil {
		t.Fatal("Publish succeeded after Close")
	}
}
