// Command rallygraph-web serves the query API, the status endpoints, the
// Prometheus metrics and the query event stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/connections"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/logging"
	"github.com/scrypster/rallygraph/internal/metrics"
	"github.com/scrypster/rallygraph/internal/pipeline"
	"github.com/scrypster/rallygraph/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: config/rallygraph.yaml when present)")
	flag.Parse()

	if *configPath == "" {
		if _, err := os.Stat("config/rallygraph.yaml"); err == nil {
			*configPath = "config/rallygraph.yaml"
		}
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := start(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	logger.Info("rallygraph running", zap.String("url", "http://"+app.addr))

	<-ctx.Done()
	logger.Info("shutting down gracefully")
	app.close()
	time.Sleep(500 * time.Millisecond)
}

// app holds what start opened so it can be released on shutdown.
type app struct {
	addr  string
	close func()
}

// start wires the store, model clients, availability gate, metrics and
// pipeline, and starts the HTTP server. The server stops when ctx ends.
func start(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	manager := connections.NewManager(cfg, logger)

	generator, err := llm.NewTextGenerator(cfg, logger)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	// A missing embedder disables vector search only.
	var embedder llm.EmbeddingGenerator
	if e, err := llm.NewEmbeddingGenerator(cfg, logger); err != nil {
		logger.Warn("embedding model disabled", zap.Error(err))
	} else {
		embedder = e
	}

	recognizer, err := analyzer.NewRecognizer(cfg.NER)
	if err != nil {
		logger.Warn("falling back to heuristic entity recognition", zap.Error(err))
		recognizer = analyzer.HeuristicRecognizer{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("rallygraph", registry, logger)

	gate := availability.NewGate(availability.Probes(cfg, manager, embedder, generator), availability.Options{
		NegativeTTL:  cfg.Availability.NegativeTTL,
		PositiveTTL:  cfg.Availability.PositiveTTL,
		ProbeTimeout: cfg.Availability.ProbeTimeout,
		Logger:       logger,
		OnChange: func(s availability.Subsystem, st availability.State) {
			collector.SetSubsystemAvailable(string(s), st == availability.Available)
		},
	})

	svc, err := pipeline.New(pipeline.Deps{
		Store:      manager,
		Generator:  generator,
		Gate:       gate,
		Embedder:   embedder,
		Recognizer: recognizer,
		Metrics:    collector,
		Logger:     logger,
	}, pipeline.OptionsFromConfig(cfg))
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	addr, _, err := server.Start(ctx, server.Deps{
		Config:   cfg,
		Service:  svc,
		Gate:     gate,
		Queries:  manager,
		Metrics:  collector,
		Gatherer: registry,
		Logger:   logger,
	})
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	return &app{
		addr: addr,
		close: func() {
			if c, ok := embedder.(interface{ Close() error }); ok {
				_ = c.Close()
			}
			if c, ok := recognizer.(interface{ Close() error }); ok {
				_ = c.Close()
			}
			if err := manager.Close(); err != nil {
				logger.Warn("failed to close store", zap.Error(err))
			}
		},
	}, nil
}
