// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/docmill/docmill/lib/artifact"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/event"
	"github.com/docmill/docmill/lib/pdfops"
)

// IngestRequest describes one upload.
type IngestRequest struct {
	// Filename is the client-supplied original name. Required.
	Filename string

	// Data is the document content. Required.
	Data []byte

	// OwnerID is the caller identity, recorded on the file.
	OwnerID string
}

// Ingest stores an uploaded document as a new root artifact: blob
// first, then the catalog record, then a best-effort upload event.
// The artifact has no lineage parent; derived artifacts point back at
// it.
func (c *Coordinator) Ingest(ctx context.Context, req IngestRequest) (catalog.FileRecord, error) {
	if req.Filename == "" {
		return catalog.FileRecord{}, &ValidationError{Message: "filename must not be empty"}
	}
	if strings.Contains(req.Filename, "/") || strings.Contains(req.Filename, "\\") {
		return catalog.FileRecord{}, &ValidationError{Message: "filename must not contain path separators"}
	}
	if len(req.Data) == 0 {
		return catalog.FileRecord{}, &ValidationError{Message: "document is empty"}
	}
	if c.maxUploadBytes > 0 && int64(len(req.Data)) > c.maxUploadBytes {
		return catalog.FileRecord{}, &ValidationError{
			Message: fmt.Sprintf("document exceeds the %d byte upload limit", c.maxUploadBytes),
		}
	}

	fileID := c.newID()
	locator := artifact.Locator{
		Container:  c.container,
		ObjectPath: fileID + "/" + req.Filename,
	}

	mimeType := sniffMIMEType(req.Filename, req.Data)
	if err := c.store.Put(ctx, locator, req.Data, mimeType); err != nil {
		return catalog.FileRecord{}, &DependencyError{Op: "storing upload", Err: err}
	}

	record := catalog.FileRecord{
		FileID:           fileID,
		OwnerID:          req.OwnerID,
		OriginalFilename: req.Filename,
		MimeType:         mimeType,
		SizeBytes:        int64(len(req.Data)),
		Container:        locator.Container,
		ObjectPath:       locator.ObjectPath,
		Checksum:         contentChecksum(req.Data),
		PageCount:        bestEffortPageCount(req.Data),
	}
	if err := c.catalog.InsertFile(ctx, record); err != nil {
		return catalog.FileRecord{}, &DependencyError{Op: "recording upload", Err: err}
	}

	c.publish(ctx, event.Event{
		RoutingKey: event.RouteFileUploaded,
		FileID:     fileID,
		Timestamp:  c.clock.Now(),
	})

	c.logger.Info("file ingested",
		"file_id", fileID,
		"filename", req.Filename,
		"mime_type", mimeType,
		"size", len(req.Data),
	)

	// The caller sees the record as the catalog will return it.
	return c.File(ctx, fileID)
}

// sniffMIMEType determines the stored MIME type from content,
// preferring the document magic over the client-supplied extension.
func sniffMIMEType(filename string, data []byte) string {
	if len(data) >= 5 && string(data[:5]) == "%PDF-" {
		return "application/pdf"
	}
	detected := http.DetectContentType(data)
	if detected == "application/octet-stream" &&
		strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return "application/pdf"
	}
	return detected
}

// contentChecksum returns the hex BLAKE3 digest of data.
func contentChecksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// bestEffortPageCount parses the document for its page count.
// Non-PDF or unreadable content yields 0; the record is still valid.
func bestEffortPageCount(data []byte) int {
	info, err := pdfops.Info(data)
	if err != nil {
		return 0
	}
	return info.PageCount
}
