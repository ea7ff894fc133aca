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
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/docmill/docmill/lib/artifact"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/clock"
	"github.com/docmill/docmill/lib/pdfops"
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

// fakeTransformer serves encrypt only, reversing the input so the
// result is distinguishable from the source.
type fakeTransformer struct{}

type fakeOptions struct {
	Password      string `json:"password"`
	WrongPassword bool   `json:"wrong_password"`
}

func (f *fakeTransformer) Lookup(kind transform.Kind) (transform.Descriptor, bool) {
	if kind == transform.KindEncrypt {
		return transform.Descriptor{Kind: kind, MinSources: 1, MaxSources: 1}, true
	}
	return transform.Descriptor{}, false
}

func (f *fakeTransformer) ParseOptions(kind transform.Kind, raw json.RawMessage) (any, error) {
	var options fakeOptions
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &options); err != nil {
			return nil, &transform.OptionsError{Kind: kind, Err: err}
		}
	}
	return options, nil
}

func (f *fakeTransformer) Apply(kind transform.Kind, inputs [][]byte, options any) ([]byte, error) {
	if options.(fakeOptions).WrongPassword {
		return nil, fmt.Errorf("unlocking document: %w", pdfops.ErrWrongPassword)
	}
	runes := []rune(string(inputs[0]))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return []byte(string(runes)), nil
}

type testHarness struct {
	handler     http.Handler
	coordinator *pipeline.Coordinator
}

func newHarness(t *testing.T) *testHarness {
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
		Store:     &memStore{blobs: make(map[string][]byte)},
		Catalog:   cat,
		Registry:  &fakeTransformer{},
		Container: "docs",
		Clock:     clock.NewFake(),
		Logger:    logger,
	})
	return &testHarness{
		handler:     newSecurityHandler(coordinator, logger),
		coordinator: coordinator,
	}
}

func (h *testHarness) seedFile(t *testing.T, filename string, data []byte) catalog.FileRecord {
	t.Helper()
	record, err := h.coordinator.Ingest(context.Background(), pipeline.IngestRequest{
		Filename: filename,
		Data:     data,
		OwnerID:  "alice",
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", filename, err)
	}
	return record
}

func (h *testHarness) postSecure(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/secure", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", "alice")
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func (h *testHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

// --- Tests ---

func TestSecureOperation(t *testing.T) {
	h := newHarness(t)
	source := h.seedFile(t, "doc.pdf", []byte("hello"))

	resp := h.postSecure(t, map[string]any{
		"source_artifact_id": source.FileID,
		"operation_kind":     "encrypt",
		"options":            map[string]any{"password": "hunter2"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("secure status = %d, body %s", resp.Code, resp.Body)
	}
	var record catalog.OperationRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record.Status != catalog.StatusCompleted {
		t.Fatalf("status = %s, want completed", record.Status)
	}
	if record.RequestedBy != "alice" {
		t.Errorf("requested_by = %q, want alice", record.RequestedBy)
	}

	// The status response carries the stored options with credentials
	// stripped.
	statusResp := h.get(t, "/operations/"+record.OperationID)
	if statusResp.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", statusResp.Code)
	}
	statusBody := statusResp.Body.String()
	if !strings.Contains(statusBody, `"options"`) {
		t.Errorf("status response carries no options: %s", statusBody)
	}
	if strings.Contains(statusBody, "hunter2") {
		t.Errorf("status response leaks the password: %s", statusBody)
	}

	download := h.get(t, "/operations/"+record.OperationID+"/download")
	if download.Code != http.StatusOK {
		t.Fatalf("download status = %d", download.Code)
	}
	if got := download.Body.String(); got != "olleh" {
		t.Errorf("result content = %q, want olleh", got)
	}

	// The result artifact carries lineage back to the source.
	result, err := h.coordinator.File(context.Background(), record.ResultArtifactID)
	if err != nil {
		t.Fatalf("looking up result artifact: %v", err)
	}
	if result.LineageParentID != source.FileID {
		t.Errorf("lineage parent = %q, want %q", result.LineageParentID, source.FileID)
	}
	if result.OperationID != record.OperationID {
		t.Errorf("result operation_id = %q, want %q", result.OperationID, record.OperationID)
	}
}

func TestSecureRejections(t *testing.T) {
	h := newHarness(t)
	source := h.seedFile(t, "doc.pdf", []byte("hello"))

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			"missing source id",
			map[string]any{"operation_kind": "encrypt"},
			http.StatusBadRequest,
		},
		{
			"kind served elsewhere",
			map[string]any{"source_artifact_id": source.FileID, "operation_kind": "rotate"},
			http.StatusBadRequest,
		},
		{
			"unknown body field",
			map[string]any{"source_artifact_id": source.FileID, "operation_kind": "encrypt", "surprise": 1},
			http.StatusBadRequest,
		},
		{
			"source not found",
			map[string]any{"source_artifact_id": "missing", "operation_kind": "encrypt"},
			http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.postSecure(t, tt.body)
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.Code, tt.want, resp.Body)
			}
		})
	}
}

func TestWrongPasswordFailure(t *testing.T) {
	h := newHarness(t)
	source := h.seedFile(t, "locked.pdf", []byte("hello"))

	resp := h.postSecure(t, map[string]any{
		"source_artifact_id": source.FileID,
		"operation_kind":     "encrypt",
		"options":            map[string]any{"wrong_password": true},
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", resp.Code, resp.Body)
	}
	var failure struct {
		OperationID string `json:"operation_id"`
		FailureKind string `json:"failure_kind"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &failure); err != nil {
		t.Fatalf("decoding failure body: %v", err)
	}
	if failure.FailureKind != "wrong_password" {
		t.Errorf("failure_kind = %q, want wrong_password", failure.FailureKind)
	}

	statusResp := h.get(t, "/operations/"+failure.OperationID)
	var record catalog.OperationRecord
	if err := json.Unmarshal(statusResp.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if record.Status != catalog.StatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}
	if !strings.Contains(record.Error, "password") {
		t.Errorf("record error = %q, want a password message", record.Error)
	}
}

func TestOperationNotFound(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/operations/missing", "/operations/missing/download"} {
		if resp := h.get(t, path); resp.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.Code)
		}
	}
}
