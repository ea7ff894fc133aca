// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline orchestrates document operations end to end:
// request validation, operation bookkeeping, artifact fetch,
// transformation, result persistence, and event notification. The
// coordinator owns the lifecycle and consistency guarantees; the
// actual document work lives behind the transform registry.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docmill/docmill/lib/artifact"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/clock"
	"github.com/docmill/docmill/lib/codec"
	"github.com/docmill/docmill/lib/event"
	"github.com/docmill/docmill/lib/transform"
)

// resultObjectName is the object path component for operation
// results: "<operation_id>/processed.pdf".
const resultObjectName = "processed.pdf"

// Transformer is the slice of the transform registry the coordinator
// needs. *transform.Registry satisfies it.
type Transformer interface {
	Lookup(kind transform.Kind) (transform.Descriptor, bool)
	ParseOptions(kind transform.Kind, raw json.RawMessage) (any, error)
	Apply(kind transform.Kind, inputs [][]byte, options any) ([]byte, error)
}

// CoordinatorConfig holds the coordinator's collaborators.
type CoordinatorConfig struct {
	// Store holds artifact blobs. Required.
	Store artifact.Store

	// Catalog records files and operations. Required.
	Catalog catalog.Catalog

	// Registry is the transformation table. Required.
	Registry Transformer

	// Publisher receives lifecycle events. Nil means events are
	// discarded.
	Publisher event.Publisher

	// Container is the artifact store container for results and
	// uploads. Required.
	Container string

	// MaxUploadBytes bounds ingested documents. Zero means no limit.
	MaxUploadBytes int64

	// Clock provides event timestamps. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// NewID overrides id generation in tests.
	NewID func() string
}

// Coordinator runs operations. Safe for concurrent use; operations on
// the same artifact run independently (artifacts are immutable, so
// there is nothing to serialize).
type Coordinator struct {
	store          artifact.Store
	catalog        catalog.Catalog
	registry       Transformer
	publisher      event.Publisher
	container      string
	maxUploadBytes int64
	clock          clock.Clock
	logger         *slog.Logger
	newID          func() string
}

// NewCoordinator builds a coordinator, panicking on missing required
// collaborators (wiring bugs, not runtime conditions).
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Store == nil {
		panic("pipeline: CoordinatorConfig.Store is required")
	}
	if cfg.Catalog == nil {
		panic("pipeline: CoordinatorConfig.Catalog is required")
	}
	if cfg.Registry == nil {
		panic("pipeline: CoordinatorConfig.Registry is required")
	}
	if cfg.Container == "" {
		panic("pipeline: CoordinatorConfig.Container is required")
	}
	if cfg.Clock == nil {
		panic("pipeline: CoordinatorConfig.Clock is required")
	}
	if cfg.Logger == nil {
		panic("pipeline: CoordinatorConfig.Logger is required")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Coordinator{
		store:          cfg.Store,
		catalog:        cfg.Catalog,
		registry:       cfg.Registry,
		publisher:      publisher,
		container:      cfg.Container,
		maxUploadBytes: cfg.MaxUploadBytes,
		clock:          cfg.Clock,
		logger:         cfg.Logger,
		newID:          newID,
	}
}

// OperationRequest describes one transformation request.
type OperationRequest struct {
	// SourceArtifactIDs are the input artifacts. All kinds except
	// merge take exactly one.
	SourceArtifactIDs []string

	// Kind names the transformation.
	Kind transform.Kind

	// Options is the raw JSON options payload.
	Options json.RawMessage

	// RequestedBy is the caller identity, recorded on the operation.
	RequestedBy string
}

// Run executes one operation synchronously: validate, record, fetch,
// transform, persist, notify. On return the operation record is in a
// terminal state (or was never created, for validation failures).
//
// Error contract: *ValidationError and *NotFoundError mean no record
// was created. *TransformationError means the returned record is
// failed and queryable. *DependencyError means infrastructure broke;
// the record was driven to failed on a best-effort basis.
func (c *Coordinator) Run(ctx context.Context, req OperationRequest) (catalog.OperationRecord, error) {
	// Step 1: validate the request fully before any bookkeeping, so
	// rejected requests leave no trace.
	descriptor, ok := c.registry.Lookup(req.Kind)
	if !ok {
		return catalog.OperationRecord{}, &ValidationError{
			Message: fmt.Sprintf("unknown operation kind %q", req.Kind),
		}
	}
	if len(req.SourceArtifactIDs) < descriptor.MinSources ||
		(descriptor.MaxSources > 0 && len(req.SourceArtifactIDs) > descriptor.MaxSources) {
		return catalog.OperationRecord{}, &ValidationError{
			Message: fmt.Sprintf("%s takes at least %d source artifact(s), got %d",
				req.Kind, descriptor.MinSources, len(req.SourceArtifactIDs)),
		}
	}

	options, err := c.registry.ParseOptions(req.Kind, req.Options)
	if err != nil {
		return catalog.OperationRecord{}, &ValidationError{Message: err.Error()}
	}

	sources := make([]catalog.FileRecord, len(req.SourceArtifactIDs))
	for i, id := range req.SourceArtifactIDs {
		record, err := c.catalog.FindFile(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.OperationRecord{}, &NotFoundError{Resource: "file", ID: id}
		}
		if err != nil {
			return catalog.OperationRecord{}, &DependencyError{Op: "looking up source artifact", Err: err}
		}
		sources[i] = record
	}

	optionsBlob, err := codec.Marshal(options)
	if err != nil {
		return catalog.OperationRecord{}, &DependencyError{Op: "encoding options", Err: err}
	}

	// Step 2: insert the pending record. From here on the operation
	// is externally visible and must reach a terminal state.
	operationID := c.newID()
	record := catalog.OperationRecord{
		OperationID:      operationID,
		SourceArtifactID: req.SourceArtifactIDs[0],
		Kind:             string(req.Kind),
		Options:          optionsBlob,
		Status:           catalog.StatusPending,
		RequestedBy:      req.RequestedBy,
	}
	if err := c.catalog.InsertOperation(ctx, record); err != nil {
		return catalog.OperationRecord{}, &DependencyError{Op: "recording operation", Err: err}
	}

	c.logger.Info("operation accepted",
		"operation_id", operationID,
		"kind", string(req.Kind),
		"source_artifact_id", record.SourceArtifactID,
	)

	// Step 3: move to processing before any heavy work, so a crash
	// mid-transform leaves a record that is visibly in flight, not
	// falsely pending.
	record, err = c.catalog.UpdateOperation(ctx, operationID, catalog.OperationUpdate{
		Status: catalog.StatusProcessing,
	})
	if err != nil {
		return record, &DependencyError{Op: "starting operation", Err: err}
	}

	// Step 4: fetch the source bytes.
	inputs := make([][]byte, len(sources))
	for i, source := range sources {
		data, err := c.store.Get(ctx, artifact.Locator{
			Container:  source.Container,
			ObjectPath: source.ObjectPath,
		})
		if errors.Is(err, artifact.ErrNotFound) {
			// The catalog references a blob that is gone. The record
			// fails; there is nothing to retry.
			return c.fail(ctx, operationID, req.Kind, FailureProcessing,
				fmt.Sprintf("source artifact %s has no stored content", source.FileID))
		}
		if err != nil {
			failed, _ := c.tryFail(ctx, operationID, req.Kind, "storage failure fetching source")
			return failed, &DependencyError{Op: "fetching source artifact", Err: err}
		}
		inputs[i] = data
	}

	// Step 5: transform.
	output, err := c.registry.Apply(req.Kind, inputs, options)
	if err != nil {
		failureKind := FailureProcessing
		if transform.WrongPassword(err) {
			failureKind = FailureWrongPassword
		}
		return c.fail(ctx, operationID, req.Kind, failureKind, err.Error())
	}

	// Step 6: persist the result as a new immutable artifact with
	// lineage back to the primary source.
	resultID := c.newID()
	locator := artifact.Locator{
		Container:  c.container,
		ObjectPath: operationID + "/" + resultObjectName,
	}
	if err := c.store.Put(ctx, locator, output, "application/pdf"); err != nil {
		failed, _ := c.tryFail(ctx, operationID, req.Kind, "storage failure persisting result")
		return failed, &DependencyError{Op: "persisting result artifact", Err: err}
	}

	resultRecord := catalog.FileRecord{
		FileID:           resultID,
		OwnerID:          req.RequestedBy,
		OriginalFilename: operationID + ".pdf",
		MimeType:         "application/pdf",
		SizeBytes:        int64(len(output)),
		Container:        locator.Container,
		ObjectPath:       locator.ObjectPath,
		Checksum:         contentChecksum(output),
		LineageParentID:  sources[0].FileID,
		OperationID:      operationID,
		PageCount:        bestEffortPageCount(output),
	}
	if err := c.catalog.InsertFile(ctx, resultRecord); err != nil {
		failed, _ := c.tryFail(ctx, operationID, req.Kind, "catalog failure recording result")
		return failed, &DependencyError{Op: "recording result artifact", Err: err}
	}

	record, err = c.catalog.UpdateOperation(ctx, operationID, catalog.OperationUpdate{
		Status:           catalog.StatusCompleted,
		ResultArtifactID: resultID,
	})
	if err != nil {
		return record, &DependencyError{Op: "completing operation", Err: err}
	}

	// Step 7: notify. Best-effort by contract: the operation is
	// already durably completed.
	c.publish(ctx, event.Event{
		RoutingKey:    event.RouteOperationCompleted,
		OperationID:   operationID,
		OperationKind: string(req.Kind),
		Outcome:       "completed",
		FileID:        resultID,
		Timestamp:     c.clock.Now(),
	})

	c.logger.Info("operation completed",
		"operation_id", operationID,
		"kind", string(req.Kind),
		"result_artifact_id", resultID,
		"result_bytes", len(output),
	)
	return record, nil
}

// fail drives the record to failed, publishes the failure event, and
// returns the record with a TransformationError.
func (c *Coordinator) fail(ctx context.Context, operationID string, kind transform.Kind, failureKind, message string) (catalog.OperationRecord, error) {
	record, err := c.catalog.UpdateOperation(ctx, operationID, catalog.OperationUpdate{
		Status: catalog.StatusFailed,
		Error:  message,
	})
	if err != nil {
		return record, &DependencyError{Op: "recording operation failure", Err: err}
	}

	c.publish(ctx, event.Event{
		RoutingKey:    event.RouteOperationFailed,
		OperationID:   operationID,
		OperationKind: string(kind),
		Outcome:       "failed",
		Timestamp:     c.clock.Now(),
	})

	c.logger.Warn("operation failed",
		"operation_id", operationID,
		"kind", string(kind),
		"failure_kind", failureKind,
		"error", message,
	)
	return record, &TransformationError{
		OperationID: operationID,
		FailureKind: failureKind,
		Message:     message,
	}
}

// tryFail attempts to drive the record to failed after an
// infrastructure error. The original error wins; a second failure
// here is only logged.
func (c *Coordinator) tryFail(ctx context.Context, operationID string, kind transform.Kind, message string) (catalog.OperationRecord, error) {
	record, err := c.catalog.UpdateOperation(ctx, operationID, catalog.OperationUpdate{
		Status: catalog.StatusFailed,
		Error:  message,
	})
	if err != nil {
		c.logger.Error("could not record operation failure",
			"operation_id", operationID,
			"error", err,
		)
		return record, err
	}
	c.publish(ctx, event.Event{
		RoutingKey:    event.RouteOperationFailed,
		OperationID:   operationID,
		OperationKind: string(kind),
		Outcome:       "failed",
		Timestamp:     c.clock.Now(),
	})
	return record, nil
}

// publish sends an event, logging and swallowing failures. Event
// delivery is never load-bearing.
func (c *Coordinator) publish(ctx context.Context, e event.Event) {
	if err := c.publisher.Publish(ctx, e); err != nil {
		c.logger.Warn("event publish failed",
			"routing_key", e.RoutingKey,
			"operation_id", e.OperationID,
			"error", err,
		)
	}
}

// Status returns the operation record.
func (c *Coordinator) Status(ctx context.Context, operationID string) (catalog.OperationRecord, error) {
	record, err := c.catalog.FindOperation(ctx, operationID)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.OperationRecord{}, &NotFoundError{Resource: "operation", ID: operationID}
	}
	if err != nil {
		return catalog.OperationRecord{}, &DependencyError{Op: "looking up operation", Err: err}
	}
	return record, nil
}

// DownloadResult holds a fetched operation result.
type DownloadResult struct {
	Data     []byte
	Filename string
	MimeType string
}

// Download returns the result artifact of a completed operation. The
// download filename is "<operation_id>.pdf" regardless of source
// names.
func (c *Coordinator) Download(ctx context.Context, operationID string) (DownloadResult, error) {
	record, err := c.Status(ctx, operationID)
	if err != nil {
		return DownloadResult{}, err
	}
	if record.Status != catalog.StatusCompleted {
		return DownloadResult{}, &NotReadyError{OperationID: operationID, Status: record.Status}
	}

	result, err := c.catalog.FindFile(ctx, record.ResultArtifactID)
	if err != nil {
		return DownloadResult{}, &DependencyError{Op: "looking up result artifact", Err: err}
	}

	data, err := c.store.Get(ctx, artifact.Locator{
		Container:  result.Container,
		ObjectPath: result.ObjectPath,
	})
	if err != nil {
		return DownloadResult{}, &DependencyError{Op: "fetching result artifact", Err: err}
	}

	return DownloadResult{
		Data:     data,
		Filename: operationID + ".pdf",
		MimeType: result.MimeType,
	}, nil
}

// File returns the catalog record for a stored artifact.
func (c *Coordinator) File(ctx context.Context, fileID string) (catalog.FileRecord, error) {
	record, err := c.catalog.FindFile(ctx, fileID)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.FileRecord{}, &NotFoundError{Resource: "file", ID: fileID}
	}
	if err != nil {
		return catalog.FileRecord{}, &DependencyError{Op: "looking up file", Err: err}
	}
	return record, nil
}

// FileContent returns a stored artifact's bytes along with its
// record.
func (c *Coordinator) FileContent(ctx context.Context, fileID string) (catalog.FileRecord, []byte, error) {
	record, err := c.File(ctx, fileID)
	if err != nil {
		return catalog.FileRecord{}, nil, err
	}
	data, err := c.store.Get(ctx, artifact.Locator{
		Container:  record.Container,
		ObjectPath: record.ObjectPath,
	})
	if err != nil {
		return catalog.FileRecord{}, nil, &DependencyError{Op: "fetching file content", Err: err}
	}
	return record, data, nil
}

// ListFiles returns stored artifact records, newest first.
func (c *Coordinator) ListFiles(ctx context.Context, ownerID string, offset, limit int) ([]catalog.FileRecord, error) {
	records, err := c.catalog.ListFiles(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, &DependencyError{Op: "listing files", Err: err}
	}
	return records, nil
}
