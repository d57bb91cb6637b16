package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/web/handlers"
)

type stubRunner struct {
	params map[string]string
	err    error
}

func (s *stubRunner) RunTemplate(ctx context.Context, category, name string, params map[string]string) ([]storage.TemplateRow, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	if _, err := storage.LookupTemplate(category, name); err != nil {
		return nil, err
	}
	return []storage.TemplateRow{{"skill": "serving", "drills": []string{"Target Practice"}}}, nil
}

func TestTemplateHandler_List(t *testing.T) {
	h := handlers.NewTemplateHandler(&stubRunner{}, nil)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/queries", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body handlers.TemplateListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"drill_details", "drill_progression"}, body.Categories["drill"])
	assert.Len(t, body.Templates, len(storage.Templates()))
	assert.Equal(t, []string{"skill_name"}, body.Templates[len(body.Templates)-2].Params)
}

func TestTemplateHandler_Run(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		err      error
		wantCode int
	}{
		{name: "answered", path: "skill/skill_drills", body: `{"params":{"skill_name":"serving"}}`, wantCode: http.StatusOK},
		{name: "no body", path: "drill/drill_progression", wantCode: http.StatusOK},
		{name: "unknown template", path: "skill/skill_visual_requirements", wantCode: http.StatusNotFound},
		{name: "bad json", path: "skill/skill_drills", body: `{"params":`, wantCode: http.StatusBadRequest},
		{name: "missing param", path: "skill/skill_drills", err: fmt.Errorf("skill_name: %w", storage.ErrInvalidInput), wantCode: http.StatusBadRequest},
		{name: "store down", path: "skill/skill_drills", err: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{err: tt.err}
			h := handlers.NewTemplateHandler(runner, nil)
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/queries/{category}/{name}", h.Run)

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/queries/"+tt.path, strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.wantCode != http.StatusOK {
				var errResp handlers.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
				assert.NotEmpty(t, errResp.Error)
				return
			}

			var body handlers.TemplateRunResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, 1, body.Count)
			assert.Equal(t, "serving", body.Rows[0]["skill"])
			if tt.body != "" {
				assert.Equal(t, map[string]string{"skill_name": "serving"}, runner.params)
			}
		})
	}
}
