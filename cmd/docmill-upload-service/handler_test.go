// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/docmill/docmill/lib/artifact"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/clock"
	"github.com/docmill/docmill/lib/pipeline"
	"github.com/docmill/docmill/lib/transform"
)

// --- Harness ---

// memStore is an in-memory artifact store.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *memStore) Put(ctx context.Context, loc artifact.Locator, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[loc.String()]; exists {
		return fmt.Errorf("artifact: %s already exists", loc)
	}
	s.blobs[loc.String()] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Get(ctx context.Context, loc artifact.Locator) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[loc.String()]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Stat(ctx context.Context, loc artifact.Locator) (artifact.BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[loc.String()]
	if !ok {
		return artifact.BlobInfo{}, artifact.ErrNotFound
	}
	return artifact.BlobInfo{Size: int64(len(data))}, nil
}

func newTestHandler(t *testing.T, maxUploadBytes int64) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := catalog.OpenSQLite(catalog.SQLiteCatalogConfig{
		Path:     filepath.Join(t.TempDir(), "catalog.db"),
		PoolSize: 1,
		Clock:    clock.NewFake(),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	coordinator := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Store:          &memStore{blobs: make(map[string][]byte)},
		Catalog:        cat,
		Registry:       transform.NewRegistry(transform.Limits{}),
		Container:      "docs",
		MaxUploadBytes: maxUploadBytes,
		Clock:          clock.NewFake(),
		Logger:         logger,
	})
	return newUploadHandler(coordinator, maxUploadBytes, logger)
}

// multipartBody builds a multipart body with one part per entry.
func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write(data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func uploadFile(t *testing.T, handler http.Handler, owner, filename string, data []byte) catalog.FileRecord {
	t.Helper()
	body, contentType := multipartBody(t, "file", map[string][]byte{filename: data})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User", owner)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", resp.Code, resp.Body)
	}
	var record catalog.FileRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return record
}

// --- Tests ---

func TestUploadAndFetch(t *testing.T) {
	handler := newTestHandler(t, 0)
	content := []byte("%PDF-1.7\nhello world")

	record := uploadFile(t, handler, "alice", "report.pdf", content)
	if record.FileID == "" {
		t.Fatal("upload response has no file_id")
	}
	if record.MimeType != "application/pdf" {
		t.Errorf("mime type = %q, want application/pdf", record.MimeType)
	}
	if record.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", record.OwnerID)
	}
	if record.Checksum == "" {
		t.Error("record has no checksum")
	}
	if record.LineageParentID != "" {
		t.Errorf("uploaded file has lineage parent %q", record.LineageParentID)
	}

	// Info endpoint returns the same record.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/files/"+record.FileID+"/info", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("info status = %d", resp.Code)
	}
	var info catalog.FileRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	if info.FileID != record.FileID || info.Checksum != record.Checksum {
		t.Errorf("info = %+v, want %+v", info, record)
	}

	// Content endpoint streams the original bytes.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/files/"+record.FileID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("content status = %d", resp.Code)
	}
	if !bytes.Equal(resp.Body.Bytes(), content) {
		t.Error("downloaded content differs from upload")
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="report.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestUploadRejections(t *testing.T) {
	handler := newTestHandler(t, 64)

	tests := []struct {
		name     string
		field    string
		filename string
		data     []byte
	}{
		{"empty file", "file", "empty.pdf", nil},
		// Forward slashes are already stripped by multipart's
		// filepath.Base; backslashes survive it on linux.
		{"path separator in name", "file", `..\evil.pdf`, []byte("data")},
		{"oversized", "file", "big.pdf", bytes.Repeat([]byte("x"), 65)},
		{"wrong field name", "document", "doc.pdf", []byte("data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.field, map[string][]byte{tt.filename: tt.data})
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", resp.Code, resp.Body)
			}
		})
	}
}

func TestUploadBatch(t *testing.T) {
	handler := newTestHandler(t, 0)

	body, contentType := multipartBody(t, "files", map[string][]byte{
		"a.pdf": []byte("%PDF-1.7 first"),
		"b.pdf": []byte("%PDF-1.7 second"),
		"empty": nil,
	})
	req := httptest.NewRequest(http.MethodPost, "/upload/batch", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("batch status = %d, body %s", resp.Code, resp.Body)
	}

	var out struct {
		Files []batchEntry `json:"files"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding batch response: %v", err)
	}
	if len(out.Files) != 3 {
		t.Fatalf("got %d entries, want 3", len(out.Files))
	}

	byName := make(map[string]batchEntry, len(out.Files))
	for _, entry := range out.Files {
		byName[entry.Filename] = entry
	}
	for _, name := range []string{"a.pdf", "b.pdf"} {
		entry := byName[name]
		if entry.Record == nil || entry.Record.FileID == "" {
			t.Errorf("%s: no file record in %+v", name, entry)
		}
		if entry.Error != "" {
			t.Errorf("%s: unexpected error %q", name, entry.Error)
		}
	}
	if entry := byName["empty"]; entry.Error == "" || entry.Record != nil {
		t.Errorf("empty file should fail per-entry, got %+v", entry)
	}
}

func TestListFiles(t *testing.T) {
	handler := newTestHandler(t, 0)
	uploadFile(t, handler, "alice", "a.pdf", []byte("%PDF-1.7 a"))
	uploadFile(t, handler, "bob", "b.pdf", []byte("%PDF-1.7 b"))

	// Unfiltered list sees both.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/files", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d", resp.Code)
	}
	var out struct {
		Files []catalog.FileRecord `json:"files"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(out.Files))
	}

	// X-User narrows the list to the caller's files.
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("X-User", "alice")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	out.Files = nil
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding filtered list: %v", err)
	}
	if len(out.Files) != 1 || out.Files[0].OwnerID != "alice" {
		t.Errorf("filtered list = %+v, want alice's file only", out.Files)
	}

	// Bad pagination parameters are rejected.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/files?limit=nope", nil))
	if resp.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.Code)
	}
}

func TestFileNotFound(t *testing.T) {
	handler := newTestHandler(t, 0)
	for _, path := range []string{"/files/missing", "/files/missing/info"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(t, 0)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health status = %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("healthy")) {
		t.Errorf("health body = %s", resp.Body)
	}
}
