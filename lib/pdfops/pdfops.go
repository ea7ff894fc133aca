// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package pdfops wraps the PDF engine behind byte-level operations.
// Every function is a pure transformation from (document bytes,
// options) to new bytes or an error; no function performs I/O beyond
// in-memory readers and writers. All engine usage is confined to this
// package so the rest of the pipeline never imports it directly.
package pdfops

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep the engine hermetic: no config directory probing.
	api.DisableConfigDir()
}

// conf returns a fresh engine configuration. Configurations are
// mutated by the engine, so they are never shared between calls.
func conf() *model.Configuration {
	return model.NewDefaultConfiguration()
}

// DocumentInfo describes a parsed document.
type DocumentInfo struct {
	PageCount int
	Encrypted bool
}

// Info parses the document and reports its page count and encryption
// state. For documents locked with a user password the page count is
// unavailable and reported as 0.
func Info(doc []byte) (DocumentInfo, error) {
	ctx, err := readValidated(doc, "")
	if err != nil {
		if isPasswordError(err) {
			return DocumentInfo{Encrypted: true}, nil
		}
		return DocumentInfo{}, fmt.Errorf("pdfops: reading document: %w", err)
	}
	return DocumentInfo{
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
	}, nil
}

// PageCount returns the document's page count.
func PageCount(doc []byte) (int, error) {
	ctx, err := readValidated(doc, "")
	if err != nil {
		return 0, fmt.Errorf("pdfops: reading document: %w", err)
	}
	return ctx.PageCount, nil
}

// readValidated parses and validates the document, optionally with a
// password. Validation populates the page count.
func readValidated(doc []byte, password string) (*model.Context, error) {
	c := conf()
	if password != "" {
		c.UserPW = password
		c.OwnerPW = password
	}
	ctx, err := api.ReadContext(bytes.NewReader(doc), c)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// validatePages checks every index against [1, pageCount].
func validatePages(pages []int, pageCount int) error {
	if len(pages) == 0 {
		return fmt.Errorf("pdfops: empty page selection")
	}
	for _, page := range pages {
		if page < 1 || page > pageCount {
			return pageRangeError(page, pageCount)
		}
	}
	return nil
}

// pageSelection renders page indices in the engine's selection
// syntax, one element per page so ordering survives.
func pageSelection(pages []int) []string {
	selection := make([]string, len(pages))
	for i, page := range pages {
		selection[i] = strconv.Itoa(page)
	}
	return selection
}
