// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/docmill/docmill/lib/app"
	"github.com/docmill/docmill/lib/httpapi"
	"github.com/docmill/docmill/lib/pipeline"
	"github.com/docmill/docmill/lib/service"
	"github.com/docmill/docmill/lib/transform"
)

// pageKinds are the operation kinds this service accepts on the
// per-file operations endpoint. Merging has its own endpoint because
// it takes multiple sources.
var pageKinds = map[transform.Kind]bool{
	transform.KindRotate:       true,
	transform.KindDeletePages:  true,
	transform.KindExtractPages: true,
}

type pageHandler struct {
	coordinator *pipeline.Coordinator
	logger      *slog.Logger
}

func newHandler(a *app.App, logger *slog.Logger) http.Handler {
	return newPageHandler(a.Coordinator, logger)
}

func newPageHandler(coordinator *pipeline.Coordinator, logger *slog.Logger) http.Handler {
	h := &pageHandler{coordinator: coordinator, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{file_id}/info", h.handleFileInfo)
	mux.HandleFunc("GET /files/{file_id}/download", httpapi.FileContentHandler(coordinator, logger))
	mux.HandleFunc("POST /files/{file_id}/operations", h.handleOperation)
	mux.HandleFunc("POST /merge", h.handleMerge)
	mux.HandleFunc("GET /operations/{operation_id}", httpapi.OperationStatusHandler(coordinator, logger))
	mux.HandleFunc("GET /operations/{operation_id}/download", httpapi.OperationDownloadHandler(coordinator, logger))
	mux.Handle("GET /health", service.HealthHandler())
	return mux
}

// handleFileInfo returns the stored record for one artifact, page
// count included, so viewers can size their pagination.
func (h *pageHandler) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	record, err := h.coordinator.File(r.Context(), r.PathValue("file_id"))
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	service.WriteJSON(w, h.logger, http.StatusOK, record)
}

// operationBody is the request body for the per-file operations
// endpoint.
type operationBody struct {
	Kind    transform.Kind  `json:"operation_kind"`
	Options json.RawMessage `json:"options"`
}

func (h *pageHandler) handleOperation(w http.ResponseWriter, r *http.Request) {
	var body operationBody
	if err := decodeJSON(r, &body); err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if !pageKinds[body.Kind] {
		service.WriteError(w, h.logger, http.StatusBadRequest,
			fmt.Sprintf("operation kind %q is not served here", body.Kind))
		return
	}

	record, err := h.coordinator.Run(r.Context(), pipeline.OperationRequest{
		SourceArtifactIDs: []string{r.PathValue("file_id")},
		Kind:              body.Kind,
		Options:           body.Options,
		RequestedBy:       httpapi.RequestedBy(r),
	})
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	service.WriteJSON(w, h.logger, http.StatusCreated, record)
}

// mergeBody is the request body for the merge endpoint. The id list
// doubles as the operation options, so ordering is recorded with the
// operation.
type mergeBody struct {
	FileIDs []string `json:"file_ids"`
}

func (h *pageHandler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var body mergeBody
	if err := decodeJSON(r, &body); err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	options, err := json.Marshal(transform.MergeOptions{FileIDs: body.FileIDs})
	if err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.coordinator.Run(r.Context(), pipeline.OperationRequest{
		SourceArtifactIDs: body.FileIDs,
		Kind:              transform.KindMerge,
		Options:           options,
		RequestedBy:       httpapi.RequestedBy(r),
	})
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	service.WriteJSON(w, h.logger, http.StatusCreated, record)
}

// decodeJSON decodes a request body strictly: unknown fields are
// rejected so option typos fail loudly instead of silently applying
// defaults.
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
