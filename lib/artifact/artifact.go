// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact stores immutable document blobs. An artifact is
// written once under a locator (container + object path) and never
// mutated; derived documents are written as new artifacts. The
// package provides a filesystem store with tagged compression and
// optional at-rest encryption, and an S3/MinIO store for deployments
// with shared object storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get and Stat when no blob exists at the
// locator.
var ErrNotFound = errors.New("artifact: not found")

// Locator addresses one stored blob: a logical container (bucket) and
// an object path within it. Object paths conventionally embed the
// owning id, e.g. "<operation_id>/processed.pdf".
type Locator struct {
	Container  string `json:"container"`
	ObjectPath string `json:"object_path"`
}

// String renders the locator in its canonical
// "{container}/{object_path}" form.
func (l Locator) String() string {
	return l.Container + "/" + l.ObjectPath
}

// Validate rejects locators that cannot address a blob.
func (l Locator) Validate() error {
	if l.Container == "" {
		return fmt.Errorf("artifact: locator has empty container")
	}
	if l.ObjectPath == "" {
		return fmt.Errorf("artifact: locator has empty object path")
	}
	if strings.Contains(l.ObjectPath, "..") {
		return fmt.Errorf("artifact: object path %q contains a parent reference", l.ObjectPath)
	}
	return nil
}

// BlobInfo describes a stored blob.
type BlobInfo struct {
	// Size is the size of the original content in bytes.
	Size int64

	// ContentType is the stored MIME type, when the backend records
	// one (the fs backend does not; callers keep it in the catalog).
	ContentType string
}

// Store is the capability contract the operation pipeline requires of
// blob storage. Implementations must provide read-after-write
// consistency within a single request path and durability at least as
// long as the referencing catalog records exist.
//
// Blobs are immutable: Put to an existing locator is an error.
type Store interface {
	// Put writes data under loc.
	Put(ctx context.Context, loc Locator, data []byte, contentType string) error

	// Get returns the full content stored at loc, or ErrNotFound.
	Get(ctx context.Context, loc Locator) ([]byte, error)

	// Stat reports on the blob at loc, or ErrNotFound.
	Stat(ctx context.Context, loc Locator) (BlobInfo, error)
}
