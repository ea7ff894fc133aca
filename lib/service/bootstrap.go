// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the shared runtime plumbing for Docmill
// service binaries: logger construction, signal-aware contexts, the
// HTTP server lifecycle, and JSON response helpers.
package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// NewLogger returns the standard service logger: JSON on stderr at
// info level. Also installs it as the slog default so stray library
// logging lands in the same stream.
func NewLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal registration.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
