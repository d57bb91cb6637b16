package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/storage"
)

// TemplateHandler serves the named query catalog.
type TemplateHandler struct {
	runner storage.TemplateRunner
	logger *zap.Logger
}

// NewTemplateHandler creates a TemplateHandler over runner.
func NewTemplateHandler(runner storage.TemplateRunner, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{
		runner: runner,
		logger: logger.With(zap.String("component", "template_handler")),
	}
}

// List handles GET /api/queries.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates := storage.Templates()
	categories := map[string][]string{}
	for _, t := range templates {
		categories[t.Category] = append(categories[t.Category], t.Name)
	}
	respondJSON(w, http.StatusOK, TemplateListResponse{Categories: categories, Templates: templates})
}

// Run handles POST /api/queries/{category}/{name}. The body is optional.
func (h *TemplateHandler) Run(w http.ResponseWriter, r *http.Request) {
	category, name := r.PathValue("category"), r.PathValue("name")

	var req TemplateRunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	rows, err := h.runner.RunTemplate(r.Context(), category, name, req.Params)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "unknown query template", err)
		return
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "missing query parameter", err)
		return
	case err != nil:
		h.logger.Warn("template query failed",
			zap.String("category", category),
			zap.String("name", name),
			zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "knowledge store unavailable", err)
		return
	}

	respondJSON(w, http.StatusOK, TemplateRunResponse{
		Category: category,
		Name:     name,
		Rows:     rows,
		Count:    len(rows),
	})
}
