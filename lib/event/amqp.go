// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/docmill/docmill/lib/clock"
)

const (
	initialRedialDelay = time.Second
	maxRedialDelay     = 30 * time.Second
)

// AMQPPublisherConfig holds the parameters for connecting to the
// broker.
type AMQPPublisherConfig struct {
	// URL is the amqp:// broker URL. Required.
	URL string

	// Exchange is the topic exchange name, declared durable on first
	// connect. Required.
	Exchange string

	// Clock paces reconnect backoff. Nil means the real clock.
	Clock clock.Clock

	// Logger receives connection and publish diagnostics. Required.
	Logger *slog.Logger

	// dial overrides the AMQP dialer in tests.
	dial func(url string) (amqpConnection, error)
}

// amqpConnection is the slice of *amqp.Connection the publisher uses,
// extracted so tests can substitute a fake broker.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// realConnection adapts *amqp.Connection to amqpConnection.
type realConnection struct{ conn *amqp.Connection }

func (c realConnection) Channel() (amqpChannel, error) { return c.conn.Channel() }
func (c realConnection) Close() error                  { return c.conn.Close() }

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return realConnection{conn: conn}, nil
}

// AMQPPublisher publishes events to a durable topic exchange. The
// connection is dialed lazily on first publish and re-dialed after
// failures with capped exponential backoff; while the broker is down,
// publishes fail fast instead of queueing.
type AMQPPublisher struct {
	url      string
	exchange string
	clock    clock.Clock
	logger   *slog.Logger
	dial     func(url string) (amqpConnection, error)

	mu         sync.Mutex
	conn       amqpConnection
	channel    amqpChannel
	closed     bool
	redialWait time.Duration
	nextDialAt time.Time
}

// NewAMQPPublisher creates the publisher. No connection is attempted
// until the first Publish.
func NewAMQPPublisher(cfg AMQPPublisherConfig) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("event: URL is required")
	}
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("event: Exchange is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("event: Logger is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	dial := cfg.dial
	if dial == nil {
		dial = dialAMQP
	}

	return &AMQPPublisher{
		url:        cfg.URL,
		exchange:   cfg.Exchange,
		clock:      clk,
		logger:     cfg.Logger,
		dial:       dial,
		redialWait: initialRedialDelay,
	}, nil
}

// Publish sends event as a persistent JSON message. The event's
// routing key selects consumers via the topic exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("event: publisher closed")
	}

	channel, err := p.ensureChannelLocked()
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx, p.exchange, event.RoutingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		})
	if err != nil {
		// The channel is suspect after any publish error. Drop it so
		// the next publish re-dials.
		p.invalidateLocked()
		return fmt.Errorf("event: publish %s: %w", event.RoutingKey, err)
	}
	return nil
}

// ensureChannelLocked returns a usable channel, dialing if needed.
// Caller holds p.mu.
func (p *AMQPPublisher) ensureChannelLocked() (amqpChannel, error) {
	if p.channel != nil {
		return p.channel, nil
	}

	now := p.clock.Now()
	if now.Before(p.nextDialAt) {
		return nil, fmt.Errorf("event: broker unavailable, retrying after %s",
			p.nextDialAt.Sub(now).Round(time.Millisecond))
	}

	conn, err := p.dial(p.url)
	if err != nil {
		p.backoffLocked()
		return nil, fmt.Errorf("event: dialing broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		p.backoffLocked()
		return nil, fmt.Errorf("event: opening channel: %w", err)
	}

	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		p.backoffLocked()
		return nil, fmt.Errorf("event: declaring exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = channel
	p.redialWait = initialRedialDelay
	p.nextDialAt = time.Time{}
	p.logger.Info("event broker connected", "exchange", p.exchange)
	return channel, nil
}

// backoffLocked schedules the next dial attempt. Caller holds p.mu.
func (p *AMQPPublisher) backoffLocked() {
	p.nextDialAt = p.clock.Now().Add(p.redialWait)
	p.redialWait *= 2
	if p.redialWait > maxRedialDelay {
		p.redialWait = maxRedialDelay
	}
}

// invalidateLocked drops the current connection. Caller holds p.mu.
func (p *AMQPPublisher) invalidateLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close tears down the broker connection. Subsequent publishes fail.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.invalidateLocked()
	return nil
}
