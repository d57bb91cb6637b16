package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/web/handlers"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		token  string
		header string
		want   int
	}{
		{name: "development skips auth", mode: "development", token: "secret", want: http.StatusOK},
		{name: "missing token", mode: "production", token: "secret", want: http.StatusUnauthorized},
		{name: "wrong token", mode: "production", token: "secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing bearer prefix", mode: "production", token: "secret", header: "secret", want: http.StatusUnauthorized},
		{name: "no token configured", mode: "production", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "valid token", mode: "production", token: "secret-token", header: "Bearer secret-token", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Security: config.SecurityConfig{Mode: tt.mode, APIToken: tt.token}}
			handler := handlers.RequireAuth(okHandler(), cfg)

			req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "unauthorized")
			}
		})
	}
}

func TestRateLimitMiddleware_AllowsNormalRate(t *testing.T) {
	handler := handlers.RateLimitMiddleware(okHandler(), handlers.NewRateLimiter(10, 20))

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddleware_RejectsExcessiveRate(t *testing.T) {
	handler := handlers.RateLimitMiddleware(okHandler(), handlers.NewRateLimiter(1, 2))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
