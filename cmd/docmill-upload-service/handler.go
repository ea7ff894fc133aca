// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/docmill/docmill/lib/app"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/httpapi"
	"github.com/docmill/docmill/lib/pipeline"
	"github.com/docmill/docmill/lib/service"
)

// multipartOverheadBytes is slack on top of the upload limit for
// multipart boundaries and headers when bounding the request body.
const multipartOverheadBytes = 1 << 20

type uploadHandler struct {
	coordinator    *pipeline.Coordinator
	maxUploadBytes int64
	logger         *slog.Logger
}

func newHandler(a *app.App, logger *slog.Logger) http.Handler {
	return newUploadHandler(a.Coordinator, a.Config.Limits.MaxUploadBytes, logger)
}

func newUploadHandler(coordinator *pipeline.Coordinator, maxUploadBytes int64, logger *slog.Logger) http.Handler {
	h := &uploadHandler{
		coordinator:    coordinator,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("POST /upload/batch", h.handleUploadBatch)
	mux.HandleFunc("GET /files", h.handleListFiles)
	mux.HandleFunc("GET /files/{file_id}", httpapi.FileContentHandler(coordinator, logger))
	mux.HandleFunc("GET /files/{file_id}/info", h.handleFileInfo)
	mux.Handle("GET /health", service.HealthHandler())
	return mux
}

// handleUpload ingests one document from the multipart field "file".
func (h *uploadHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		service.WriteError(w, h.logger, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}

	record, err := h.ingestPart(r, files[0])
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	service.WriteJSON(w, h.logger, http.StatusCreated, record)
}

// batchEntry is one per-file outcome of a batch upload. Exactly one
// of Record and Error is set.
type batchEntry struct {
	Filename string              `json:"filename"`
	Record   *catalog.FileRecord `json:"file,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// handleUploadBatch ingests every document in the multipart field
// "files". Files are independent; one rejection does not abort the
// rest. Dependency failures do, since retrying them is pointless.
func (h *uploadHandler) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		service.WriteError(w, h.logger, http.StatusBadRequest, "multipart field \"files\" is required")
		return
	}

	results := make([]batchEntry, 0, len(files))
	for _, header := range files {
		record, err := h.ingestPart(r, header)
		if err != nil {
			var dependencyErr *pipeline.DependencyError
			if errors.As(err, &dependencyErr) {
				httpapi.WritePipelineError(w, h.logger, err)
				return
			}
			results = append(results, batchEntry{Filename: header.Filename, Error: err.Error()})
			continue
		}
		results = append(results, batchEntry{Filename: header.Filename, Record: &record})
	}
	service.WriteJSON(w, h.logger, http.StatusCreated, map[string]any{"files": results})
}

func (h *uploadHandler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		service.WriteError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.coordinator.ListFiles(r.Context(), httpapi.RequestedBy(r), offset, limit)
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []catalog.FileRecord{}
	}
	service.WriteJSON(w, h.logger, http.StatusOK, map[string]any{"files": records})
}

func (h *uploadHandler) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	record, err := h.coordinator.File(r.Context(), r.PathValue("file_id"))
	if err != nil {
		httpapi.WritePipelineError(w, h.logger, err)
		return
	}
	service.WriteJSON(w, h.logger, http.StatusOK, record)
}

// parseMultipart bounds the request body and parses the form. The
// byte limit is enforced again per file by the coordinator; the bound
// here stops a client from streaming an arbitrarily large body.
func (h *uploadHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverheadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return fmt.Errorf("parsing multipart form: %w", err)
	}
	return nil
}

// ingestPart reads one multipart file and hands it to the coordinator.
func (h *uploadHandler) ingestPart(r *http.Request, header *multipart.FileHeader) (catalog.FileRecord, error) {
	part, err := header.Open()
	if err != nil {
		return catalog.FileRecord{}, &pipeline.ValidationError{
			Message: fmt.Sprintf("reading multipart file %q: %v", header.Filename, err),
		}
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return catalog.FileRecord{}, &pipeline.ValidationError{
			Message: fmt.Sprintf("reading multipart file %q: %v", header.Filename, err),
		}
	}

	return h.coordinator.Ingest(r.Context(), pipeline.IngestRequest{
		Filename: header.Filename,
		Data:     data,
		OwnerID:  httpapi.RequestedBy(r),
	})
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", name)
	}
	return value, nil
}
