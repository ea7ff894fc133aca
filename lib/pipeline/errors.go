// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"

	"github.com/docmill/docmill/lib/catalog"
)

// ValidationError rejects a request before any operation record is
// created. Maps to HTTP 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "pipeline: invalid request: " + e.Message
}

// NotFoundError reports a missing file or operation. Maps to HTTP
// 404.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pipeline: %s %s not found", e.Resource, e.ID)
}

// NotReadyError reports a result download attempted before the
// operation reached the completed state. Maps to HTTP 409.
type NotReadyError struct {
	OperationID string
	Status      catalog.OperationStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("pipeline: operation %s is %s, result not available",
		e.OperationID, e.Status)
}

// Failure kinds recorded on failed operations.
const (
	FailureWrongPassword = "wrong_password"
	FailureProcessing    = "processing"
)

// TransformationError reports a transformation that ran and failed.
// The operation record exists in the failed state; the error is the
// requester's answer, not a retry signal. Maps to HTTP 422.
type TransformationError struct {
	OperationID string

	// FailureKind distinguishes wrong_password from generic
	// processing failures.
	FailureKind string

	Message string
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("pipeline: operation %s failed (%s): %s",
		e.OperationID, e.FailureKind, e.Message)
}

// DependencyError reports an infrastructure failure (storage,
// catalog) that prevented the pipeline from finishing its
// bookkeeping. Maps to HTTP 502/503.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
