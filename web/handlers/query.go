package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/pipeline"
)

// maxQueryBody bounds the request body of POST /api/query.
const maxQueryBody = 64 << 10

// Querier answers queries; implemented by *pipeline.Service.
type Querier interface {
	Query(ctx context.Context, text string) (*pipeline.Response, error)
}

// Broadcaster fans events out to live clients; implemented by *WebSocketHub.
type Broadcaster interface {
	Broadcast(message interface{})
}

// QueryHandler serves POST /api/query.
type QueryHandler struct {
	service Querier
	events  Broadcaster
	logger  *zap.Logger
}

// NewQueryHandler creates a QueryHandler. events may be nil.
func NewQueryHandler(service Querier, events Broadcaster, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		service: service,
		events:  events,
		logger:  logger.With(zap.String("component", "query_handler")),
	}
}

// Query handles POST /api/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	resp, err := h.service.Query(r.Context(), req.Query)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery):
		respondError(w, http.StatusBadRequest, "query is required", nil)
		return
	case err != nil:
		h.logger.Warn("query aborted", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "query aborted", err)
		return
	}

	respondJSON(w, http.StatusOK, resp)

	if h.events != nil {
		sum := resp.TechnicalDetails.RetrievalSummary
		h.events.Broadcast(QueryEvent{
			Type:            "query",
			Query:           sum.Query,
			Branch:          string(sum.Branch),
			AggregatedCount: sum.AggregatedCount,
			DurationMs:      sum.Duration.Milliseconds(),
			SubsystemStatus: resp.TechnicalDetails.SubsystemStatus,
			Timestamp:       time.Now().UTC(),
		})
	}
}
