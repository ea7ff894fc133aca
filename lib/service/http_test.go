// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docmill/docmill/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- HTTPServer ---

func TestHTTPServerServeAndShutdown(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: HealthHandler(),
		Logger:  testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server never became ready")

	resp, err := http.Get("http://" + server.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decoding health body %q: %v", body, err)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", health.Status)
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "serve never returned"); err != nil {
		t.Fatalf("Serve returned %v after graceful shutdown", err)
	}
}

func TestHTTPServerBindFailure(t *testing.T) {
	first := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: HealthHandler(),
		Logger:  testLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	go func() { firstDone <- first.Serve(ctx) }()
	testutil.RequireClosed(t, first.Ready(), 5*time.Second, "first server never became ready")

	// A second server on the same port must fail to bind, not hang.
	second := NewHTTPServer(HTTPServerConfig{
		Address: first.Addr().String(),
		Handler: HealthHandler(),
		Logger:  testLogger(),
	})
	if err := second.Serve(ctx); err == nil {
		t.Fatal("expected a bind error for an occupied port")
	}

	cancel()
	testutil.RequireReceive(t, firstDone, 5*time.Second, "first server never stopped")
}

func TestNewHTTPServerRequiredConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for missing Address")
		}
	}()
	NewHTTPServer(HTTPServerConfig{Handler: HealthHandler(), Logger: testLogger()})
}

// --- Response helpers ---

func TestWriteJSON(t *testing.T) {
	resp := httptest.NewRecorder()
	WriteJSON(resp, testLogger(), http.StatusTeapot, map[string]int{"answer": 42})
	if resp.Code != http.StatusTeapot {
		t.Errorf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var out map[string]int
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if out["answer"] != 42 {
		t.Errorf("body = %v", out)
	}
}

func TestWriteError(t *testing.T) {
	resp := httptest.NewRecorder()
	WriteError(resp, testLogger(), http.StatusBadRequest, "no such thing")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d", resp.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if out["error"] != "no such thing" {
		t.Errorf("body = %v", out)
	}
}
