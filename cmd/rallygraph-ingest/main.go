// Command rallygraph-ingest loads a directory of Markdown and text notes
// into the knowledge graph.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/connections"
	"github.com/scrypster/rallygraph/internal/ingest"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/logging"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	dir         = flag.String("dir", "", "Directory of .md/.markdown/.txt files to ingest (required)")
	noEmbed     = flag.Bool("no-embed", false, "Store chunks without embeddings")
	concurrency = flag.Int("concurrency", 4, "Files ingested at once")
	watch       = flag.Bool("watch", false, "Keep running and re-ingest files as they change")
)

func main() {
	flag.Parse()
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: rallygraph-ingest -dir <path> [-config file] [-no-embed]")
		os.Exit(2)
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

	result, err := run(ctx, cfg, logger, options{
		dir:         *dir,
		embed:       !*noEmbed,
		concurrency: *concurrency,
		watch:       *watch,
	}, os.Stdout)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
		os.Exit(1)
	}
	if result.FilesFailed > 0 {
		os.Exit(1)
	}
}

type options struct {
	dir         string
	embed       bool
	concurrency int
	watch       bool
}

// run ingests opts.dir into the configured store and writes the JSON result
// to out. With opts.watch it then re-ingests changed files until ctx ends.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts options, out io.Writer) (*ingest.Result, error) {
	if err := cfg.CheckStorage(); err != nil {
		return nil, err
	}
	manager := connections.NewManager(cfg, logger)
	defer func() { _ = manager.Close() }()

	store, err := manager.GetStore(ctx)
	if err != nil {
		return nil, err
	}

	var embedder llm.EmbeddingGenerator
	if opts.embed {
		e, err := llm.NewEmbeddingGenerator(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("embedding model: %w", err)
		}
		embedder = e
		if c, ok := e.(interface{ Close() error }); ok {
			defer func() { _ = c.Close() }()
		}
	}

	in := ingest.New(store, ingest.Options{
		Embedder:    embedder,
		Dimension:   cfg.Embedding.Dimension,
		Concurrency: opts.concurrency,
		Logger:      logger,
	})
	result, err := in.IngestDir(ctx, opts.dir)
	if err != nil {
		return result, err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return result, err
	}

	if opts.watch {
		err := in.Watch(ctx, opts.dir, ingest.DefaultSettle, func(rel string, doc *ingest.DocumentResult, err error) {
			if err == nil {
				_ = enc.Encode(doc)
			}
		})
		return result, err
	}
	return result, nil
}
