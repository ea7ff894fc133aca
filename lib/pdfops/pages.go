// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package pdfops

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rotate turns the selected pages by angle degrees. Other pages pass
// through unchanged. The angle must be a non-zero multiple of 90;
// callers enforce that at the option boundary.
func Rotate(doc []byte, angle int, pages []int) ([]byte, error) {
	pageCount, err := PageCount(doc)
	if err != nil {
		return nil, err
	}
	if err := validatePages(pages, pageCount); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.Rotate(bytes.NewReader(doc), &out, angle, pageSelection(pages), conf()); err != nil {
		return nil, fmt.Errorf("pdfops: rotate: %w", err)
	}
	return out.Bytes(), nil
}

// DeletePages removes the selected pages. A selection covering every
// page is rejected with ErrAllPagesRemoved: the pipeline never
// produces an empty document.
func DeletePages(doc []byte, pages []int) ([]byte, error) {
	pageCount, err := PageCount(doc)
	if err != nil {
		return nil, err
	}
	if err := validatePages(pages, pageCount); err != nil {
		return nil, err
	}

	distinct := make(map[int]struct{}, len(pages))
	for _, page := range pages {
		distinct[page] = struct{}{}
	}
	if len(distinct) >= pageCount {
		return nil, ErrAllPagesRemoved
	}

	var out bytes.Buffer
	if err := api.RemovePages(bytes.NewReader(doc), &out, pageSelection(pages), conf()); err != nil {
		return nil, fmt.Errorf("pdfops: delete pages: %w", err)
	}
	return out.Bytes(), nil
}

// ExtractPages produces a document containing only the selected
// pages, in the order given. Indices may repeat.
func ExtractPages(doc []byte, pages []int) ([]byte, error) {
	pageCount, err := PageCount(doc)
	if err != nil {
		return nil, err
	}
	if err := validatePages(pages, pageCount); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(doc), &out, pageSelection(pages), conf()); err != nil {
		return nil, fmt.Errorf("pdfops: extract pages: %w", err)
	}
	return out.Bytes(), nil
}

// Merge concatenates the documents in the order given.
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) < 2 {
		return nil, fmt.Errorf("pdfops: merge requires at least 2 documents, got %d", len(docs))
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, conf()); err != nil {
		return nil, fmt.Errorf("pdfops: merge: %w", err)
	}
	return out.Bytes(), nil
}
