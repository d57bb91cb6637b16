package handlers

import (
	"time"

	"github.com/scrypster/rallygraph/internal/storage"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Subsystems map[string]string `json:"subsystems"`
	Errors     map[string]string `json:"errors,omitempty"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// QueryEvent is broadcast to websocket clients after every answered query.
type QueryEvent struct {
	Type            string            `json:"type"`
	Query           string            `json:"query"`
	Branch          string            `json:"branch"`
	AggregatedCount int               `json:"aggregatedCount"`
	DurationMs      int64             `json:"durationMs"`
	SubsystemStatus map[string]string `json:"subsystemStatus"`
	Timestamp       time.Time         `json:"timestamp"`
}

// TemplateListResponse is returned by GET /api/queries: template names
// grouped by category, plus the full descriptions.
type TemplateListResponse struct {
	Categories map[string][]string `json:"categories"`
	Templates  []storage.Template  `json:"templates"`
}

// TemplateRunRequest is the optional body of POST /api/queries/{category}/{name}.
type TemplateRunRequest struct {
	Params map[string]string `json:"params"`
}

// TemplateRunResponse is returned by POST /api/queries/{category}/{name}.
type TemplateRunResponse struct {
	Category string                `json:"category"`
	Name     string                `json:"name"`
	Rows     []storage.TemplateRow `json:"rows"`
	Count    int                   `json:"count"`
}
