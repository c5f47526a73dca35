// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/service"
)

// Handler holds the HTTP handlers over the application service.
type Handler struct {
	service *service.Service
	cfg     *config.Config
}

// NewHandler creates a handler bound to the service.
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	return &Handler{service: svc, cfg: cfg}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Overview lists every resource with resolved model versions.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, overview)
}

type addModelRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	URN  string `json:"urn"`
}

// AddModel registers a model after version verification.
func (h *Handler) AddModel(w http.ResponseWriter, r *http.Request) {
	var req addModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	detail, err := h.service.AddModel(r.Context(), req.Kind, req.Name, req.URN)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, detail)
}

// GetModel resolves one model by index, name, or urn.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetModel(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "query"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

// DeleteModel removes one model by index, name, or urn.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.DeleteModel(chi.URLParam(r, "kind"), chi.URLParam(r, "query"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, removed)
}

type addTemplateRequest struct {
	Author string `json:"author"`
	Detail string `json:"detail"`
}

// AddTemplate parses a detail string and registers the template.
func (h *Handler) AddTemplate(w http.ResponseWriter, r *http.Request) {
	var req addTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Author == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "author is required")
		return
	}

	detail, err := h.service.AddTemplate(r.Context(), req.Author, req.Detail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, detail)
}

// GetTemplate resolves one template by index or name.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetTemplate(r.Context(), chi.URLParam(r, "query"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

// DeleteTemplate removes an author's template by name.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.DeleteTemplate(chi.URLParam(r, "author"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, removed)
}

type generateRequest struct {
	Author   string `json:"author"`
	Template string `json:"template"`
	Prompts  string `json:"prompts"`
}

// Generate starts a generation job and returns its tracking view.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Author == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "author is required")
		return
	}

	view, err := h.service.Generate(r.Context(), req.Author, req.Template, req.Prompts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, view)
}

// Jobs lists every tracked job.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.service.Jobs())
}

// Job returns one tracked job.
func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

// CancelJob aborts a running job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type remixRequest struct {
	Author string `json:"author"`
}

// Remix resubmits a finished artifact's input with the mean seed.
func (h *Handler) Remix(w http.ResponseWriter, r *http.Request) {
	var req remixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.Author == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "author is required")
		return
	}

	view, err := h.service.Remix(r.Context(), req.Author, chi.URLParam(r, "cacheID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, view)
}

// Download serves a cached bundle as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	filename, data, err := h.service.Download(chi.URLParam(r, "cacheID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(data); err != nil {
		return
	}
}
