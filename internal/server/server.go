// Package server provides HTTP server initialization and lifecycle
// management for the rallygraph query API.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/metrics"
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/web/handlers"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Config   *config.Config
	Service  handlers.Querier
	Gate     handlers.StatusSource
	Queries  storage.TemplateRunner // serves /api/queries; nil disables the routes
	Metrics  *metrics.Collector     // optional
	Gatherer prometheus.Gatherer    // serves /metrics; nil disables the route
	Logger   *zap.Logger
}

// routes are the paths used as metric labels; anything else is "other".
var routes = map[string]bool{
	"/api/query":   true,
	"/api/health":  true,
	"/api/status":  true,
	"/metrics":     true,
	"/ws":          true,
	"/api/queries": true,
}

// NewHandler builds the full middleware chain and routes.
func NewHandler(deps Deps, hub *handlers.WebSocketHub) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	queryHandler := handlers.NewQueryHandler(deps.Service, hub, logger)
	statusHandler := handlers.NewStatusHandler(deps.Gate)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/query", queryHandler.Query)
	apiMux.HandleFunc("/api/status", statusHandler.Status)
	if deps.Queries != nil {
		templateHandler := handlers.NewTemplateHandler(deps.Queries, logger)
		apiMux.HandleFunc("GET /api/queries", templateHandler.List)
		apiMux.HandleFunc("POST /api/queries/{category}/{name}", templateHandler.Run)
	}

	mux := http.NewServeMux()
	// Health endpoint: no auth, used by monitoring.
	mux.HandleFunc("/api/health", statusHandler.Health)
	mux.Handle("/api/", handlers.RequireAuth(apiMux, deps.Config))
	if deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if hub != nil {
		// WebSocket endpoint (no auth required - origin validation handles security)
		mux.Handle("/ws", hub)
	}

	rateLimiter := handlers.NewRateLimiter(10.0, 20)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = instrument(handler, deps.Metrics)
	return handlers.SecurityHeaders(handler)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the websocket upgrade through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("server: response writer does not support hijacking")
	}
	return hj.Hijack()
}

func instrument(next http.Handler, m *metrics.Collector) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		switch {
		case routes[path]:
		case strings.HasPrefix(path, "/api/queries/"):
			path = "/api/queries/{category}/{name}"
		default:
			path = "other"
		}
		m.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}

// Start listens on the configured address and serves until ctx is
// cancelled. It returns the actual address being listened on (useful with
// port 0) and the websocket hub.
func Start(ctx context.Context, deps Deps) (string, *handlers.WebSocketHub, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	hub := handlers.NewWebSocketHub(allowedOrigins(cfg, actualAddr), logger)
	go hub.Run()

	server := &http.Server{
		Handler:      NewHandler(deps, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}

// allowedOrigins returns the browser origins accepted on /ws: the bound
// address and its localhost aliases.
func allowedOrigins(cfg *config.Config, actualAddr string) []string {
	_, port, err := net.SplitHostPort(actualAddr)
	if err != nil {
		port = strconv.Itoa(cfg.Server.Port)
	}
	origins := []string{actualAddr, net.JoinHostPort("localhost", port), net.JoinHostPort("127.0.0.1", port)}
	if cfg.Server.Host != "" && cfg.Server.Host != "127.0.0.1" && cfg.Server.Host != "0.0.0.0" {
		origins = append(origins, net.JoinHostPort(cfg.Server.Host, port))
	}
	return origins
}
