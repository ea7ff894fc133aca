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

// securityKinds are the operation kinds this service accepts.
var securityKinds = map[transform.Kind]bool{
	transform.KindEncrypt:        true,
	transform.KindDecrypt:        true,
	transform.KindWatermark:      true,
	transform.KindSetPermissions: true,
	transform.KindSanitize:       true,
	transform.KindRedact:         true,
}

type securityHandler struct {
	coordinator *pipeline.Coordinator
	logger      *slog.Logger
}

func newHandler(a *app.App, logger *slog.Logger) http.Handler {
	return newSecurityHandler(a.Coordinator, logger)
}

func newSecurityHandler(coordinator *pipeline.Coordinator, logger *slog.Logger) http.Handler {
	h := &securityHandler{coordinator: coordinator, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /secure", h.handleSecure)
	mux.HandleFunc("GET /operations/{operation_id}", httpapi.OperationStatusHandler(coordinator, logger))
	mux.HandleFunc("GET /operations/{operation_id}/download", httpapi.OperationDownloadHandler(coordinator, logger))
	mux.Handle("GET /health", service.HealthHandler())
	return mux
}

// secureBody is the request body for the protection endpoint.
type secureBody struct {
	SourceArtifactID string          `json:"source_artifact_id"`
	Kind             transform.Kind  `json:"operation_kind"`
	Options          json.RawMessage `json:"options"`
}

func (h *securityHandler) handleSecure(w http.ResponseWriter, r *http.Request) {
	var body secureBody
	if err := decodeJSON(r, &body); err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if body.SourceArtifactID == "" {
		service.WriteError(w, h.logger, http.StatusBadRequest, "source_artifact_id is required")
		return
	}
	if !securityKinds[body.Kind] {
		service.WriteError(w, h.logger, http.StatusBadRequest,
			fmt.Sprintf("operation kind %q is not served here", body.Kind))
		return
	}

	record, err := h.coordinator.Run(r.Context(), pipeline.OperationRequest{
		SourceArtifactIDs: []string{body.SourceArtifactID},
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
