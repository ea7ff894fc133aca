// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi holds the HTTP surface shared by the Docmill
// services: pipeline error mapping and the operation status and
// download endpoints that both the page and security services mount.
package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/pipeline"
	"github.com/docmill/docmill/lib/service"
)

// WritePipelineError maps a pipeline error to its HTTP status and
// writes the JSON error body.
func WritePipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		validationErr     *pipeline.ValidationError
		notFoundErr       *pipeline.NotFoundError
		notReadyErr       *pipeline.NotReadyError
		transformationErr *pipeline.TransformationError
		dependencyErr     *pipeline.DependencyError
	)
	switch {
	case errors.As(err, &validationErr):
		service.WriteError(w, logger, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &notFoundErr):
		service.WriteError(w, logger, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &notReadyErr):
		service.WriteError(w, logger, http.StatusConflict, notReadyErr.Error())
	case errors.As(err, &transformationErr):
		// The operation record carries the authoritative failure; the
		// response mirrors it for synchronous callers.
		service.WriteJSON(w, logger, http.StatusUnprocessableEntity, map[string]string{
			"error":        transformationErr.Message,
			"failure_kind": transformationErr.FailureKind,
			"operation_id": transformationErr.OperationID,
		})
	case errors.As(err, &dependencyErr):
		logger.Error("dependency failure", "error", err)
		service.WriteError(w, logger, http.StatusBadGateway, "upstream dependency failure")
	default:
		logger.Error("unhandled error", "error", err)
		service.WriteError(w, logger, http.StatusInternalServerError, "internal error")
	}
}

// operationView is the status response: the operation record plus its
// stored options, decoded for the caller.
type operationView struct {
	catalog.OperationRecord
	Options map[string]any `json:"options,omitempty"`
}

// OperationStatusHandler serves GET /operations/{operation_id}.
func OperationStatusHandler(coordinator *pipeline.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := coordinator.Status(r.Context(), r.PathValue("operation_id"))
		if err != nil {
			WritePipelineError(w, logger, err)
			return
		}

		view := operationView{OperationRecord: record}
		options, err := record.DecodedOptions()
		if err != nil {
			logger.Error("undecodable stored options",
				"operation_id", record.OperationID, "error", err)
		} else {
			// Credentials never leave the catalog.
			delete(options, "password")
			view.Options = options
		}
		service.WriteJSON(w, logger, http.StatusOK, view)
	}
}

// OperationDownloadHandler serves GET /operations/{operation_id}/download,
// streaming the result artifact of a completed operation.
func OperationDownloadHandler(coordinator *pipeline.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := coordinator.Download(r.Context(), r.PathValue("operation_id"))
		if err != nil {
			WritePipelineError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", fmt.Sprint(len(result.Data)))
		w.Write(result.Data)
	}
}

// FileContentHandler streams a stored artifact's original content
// under its original filename. Mounted as GET /files/{file_id} on the
// upload service and GET /files/{file_id}/download on the page
// service.
func FileContentHandler(coordinator *pipeline.Coordinator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, data, err := coordinator.FileContent(r.Context(), r.PathValue("file_id"))
		if err != nil {
			WritePipelineError(w, logger, err)
			return
		}
		w.Header().Set("Content-Type", record.MimeType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", record.OriginalFilename))
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Write(data)
	}
}

// RequestedBy extracts the caller identity forwarded by the gateway.
// Authentication itself happens upstream; an empty identity is
// allowed.
func RequestedBy(r *http.Request) string {
	return r.Header.Get("X-User")
}
