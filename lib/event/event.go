// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package event publishes pipeline notifications to an AMQP topic
// exchange. Publishing is strictly best-effort: the pipeline's
// correctness never depends on a broker, so publish failures are
// logged and swallowed rather than surfaced to callers.
package event

import (
	"context"
	"time"
)

// Routing keys for the docmill.events topic exchange. Consumers bind
// with patterns like "file.*" or "file.operation.#".
const (
	RouteFileUploaded       = "file.uploaded"
	RouteOperationCompleted = "file.operation.completed"
	RouteOperationFailed    = "file.operation.failed"
)

// Event is the JSON message body published to the exchange.
type Event struct {
	// RoutingKey duplicates the AMQP routing key in the body so
	// consumers reading from a shared queue can still dispatch.
	RoutingKey string `json:"routing_key"`

	// OperationID identifies the operation, or the upload's file id
	// for file.uploaded events.
	OperationID string `json:"operation_id,omitempty"`

	OperationKind string `json:"operation_type,omitempty"`

	// Outcome is "completed" or "failed" for operation events, empty
	// for uploads.
	Outcome string `json:"outcome,omitempty"`

	// FileID is the uploaded or produced artifact id, when one exists.
	FileID string `json:"file_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for
// concurrent use and must never block indefinitely: respect ctx.
type Publisher interface {
	// Publish sends one event. An error means the event was dropped;
	// callers log it and move on.
	Publish(ctx context.Context, event Event) error

	// Close releases broker resources.
	Close() error
}

// NopPublisher discards all events. Used when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }
