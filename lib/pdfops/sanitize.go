// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Sanitize strips active content from the document: document-open
// actions, additional-action handlers, the interactive form tree, and
// the name trees carrying embedded JavaScript and embedded files.
// With removeMetadata it also drops the XMP metadata stream and the
// document information dictionary.
func Sanitize(doc []byte, removeMetadata bool) ([]byte, error) {
	ctx, err := readValidated(doc, "")
	if err != nil {
		return nil, fmt.Errorf("pdfops: sanitize: %w", err)
	}

	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("pdfops: sanitize: catalog: %w", err)
	}

	delete(catalog, "OpenAction")
	delete(catalog, "AA")
	delete(catalog, "AcroForm")

	// The Names tree hosts document-level JavaScript and embedded
	// file attachments. Dereference it in place; dicts are maps, so
	// deleting keys mutates the stored object.
	if obj, ok := catalog["Names"]; ok {
		names, err := ctx.DereferenceDict(obj)
		if err == nil && names != nil {
			delete(names, "JavaScript")
			delete(names, "EmbeddedFiles")
		}
	}

	if removeMetadata {
		delete(catalog, "Metadata")
		ctx.Info = nil
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("pdfops: sanitize: write: %w", err)
	}
	return out.Bytes(), nil
}
