// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"fmt"
	"time"

	"github.com/docmill/docmill/lib/codec"
)

// OperationStatus is the lifecycle state of an operation record. The
// state machine is monotonic: pending → processing → one of the two
// terminal states. No other transitions exist, and terminal states
// never change.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Valid reports whether s is one of the four defined states.
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the state machine permits moving
// from s to next.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// FileRecord is the catalog entry for one stored artifact. Artifacts
// are immutable; the record is written once when the blob lands and
// never updated.
//
// LineageParentID links a derived artifact to the artifact it was
// produced from, forming a forest rooted at uploads. OperationID names
// the operation that produced a derived artifact; both are empty for
// direct uploads.
type FileRecord struct {
	FileID           string `json:"file_id"`
	OwnerID          string `json:"owner_id,omitempty"`
	OriginalFilename string `json:"original_filename"`
	MimeType         string `json:"mime_type"`
	SizeBytes        int64  `json:"size_bytes"`

	// Container and ObjectPath locate the blob in the artifact store.
	Container  string `json:"container"`
	ObjectPath string `json:"object_path"`

	// Checksum is the hex BLAKE3 digest of the content.
	Checksum string `json:"checksum,omitempty"`

	LineageParentID string `json:"lineage_parent_id,omitempty"`
	OperationID     string `json:"operation_id,omitempty"`

	// PageCount is the document's page count when known, 0 otherwise
	// (non-PDF uploads, documents that could not be opened).
	PageCount int `json:"page_count,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OperationRecord tracks one transformation request through its
// lifecycle. Exactly one of ResultArtifactID and Error is set once the
// record reaches a terminal state: ResultArtifactID iff completed,
// Error iff failed.
type OperationRecord struct {
	OperationID string `json:"operation_id"`

	// SourceArtifactID is the primary input artifact. Multi-source
	// operations carry the full input list in Options; this field
	// holds the first.
	SourceArtifactID string `json:"source_artifact_id"`

	// Kind names the transformation, e.g. "watermark" or "merge".
	Kind string `json:"operation_type"`

	// Options is the deterministic CBOR encoding of the validated
	// per-kind option struct.
	Options codec.RawMessage `json:"-"`

	Status           OperationStatus `json:"status"`
	ResultArtifactID string          `json:"result_artifact_id,omitempty"`
	Error            string          `json:"error,omitempty"`

	RequestedBy string `json:"requested_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodedOptions decodes the stored options blob into a generic map,
// keyed by the wire field names. A record without options yields nil.
func (r OperationRecord) DecodedOptions() (map[string]any, error) {
	if len(r.Options) == 0 {
		return nil, nil
	}
	var options map[string]any
	if err := codec.Unmarshal(r.Options, &options); err != nil {
		return nil, fmt.Errorf("catalog: decoding options: %w", err)
	}
	return options, nil
}

// validateTerminalFields enforces the result/error exclusivity rule
// for a record in state status.
func validateTerminalFields(status OperationStatus, resultArtifactID, errorMessage string) error {
	switch status {
	case StatusCompleted:
		if resultArtifactID == "" {
			return fmt.Errorf("catalog: completed operation requires a result artifact id")
		}
		if errorMessage != "" {
			return fmt.Errorf("catalog: completed operation must not carry an error")
		}
	case StatusFailed:
		if errorMessage == "" {
			return fmt.Errorf("catalog: failed operation requires an error message")
		}
		if resultArtifactID != "" {
			return fmt.Errorf("catalog: failed operation must not carry a result artifact id")
		}
	default:
		if resultArtifactID != "" || errorMessage != "" {
			return fmt.Errorf("catalog: non-terminal operation must not carry a result or error")
		}
	}
	return nil
}
