// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog records artifact lineage and operation lifecycle.
// The file table is append-only (artifacts are immutable); the
// operation table is append-plus-monotonic-update, enforcing the
// pending → processing → completed/failed state machine at the
// storage boundary so no caller can rewrite history.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for the given id.
var ErrNotFound = errors.New("catalog: not found")

// TransitionError reports a rejected operation status update. The
// record is left untouched.
type TransitionError struct {
	OperationID string
	From        OperationStatus
	To          OperationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("catalog: operation %s: illegal transition %s -> %s",
		e.OperationID, e.From, e.To)
}

// OperationUpdate carries one status transition for UpdateOperation.
// ResultArtifactID is required when Status is completed; Error is
// required when Status is failed.
type OperationUpdate struct {
	Status           OperationStatus
	ResultArtifactID string
	Error            string
}

// Catalog is the persistence contract for artifact and operation
// records.
type Catalog interface {
	// InsertFile records a new artifact. FileID must be unique.
	InsertFile(ctx context.Context, record FileRecord) error

	// FindFile returns the record for fileID, or ErrNotFound.
	FindFile(ctx context.Context, fileID string) (FileRecord, error)

	// ListFiles returns records ordered newest first. ownerID of ""
	// lists all files. limit <= 0 means a server-chosen default.
	ListFiles(ctx context.Context, ownerID string, offset, limit int) ([]FileRecord, error)

	// InsertOperation records a new operation, which must be in
	// StatusPending with no result or error.
	InsertOperation(ctx context.Context, record OperationRecord) error

	// FindOperation returns the record for operationID, or
	// ErrNotFound.
	FindOperation(ctx context.Context, operationID string) (OperationRecord, error)

	// UpdateOperation applies a status transition, returning the
	// updated record. Transitions the state machine does not permit
	// fail with a *TransitionError; in particular a terminal record is
	// never modified.
	UpdateOperation(ctx context.Context, operationID string, update OperationUpdate) (OperationRecord, error)
}
