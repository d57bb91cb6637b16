// Package pipeline wires the query stages together: analysis, gated
// retrieval, aggregation, context assembly and response generation.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/metrics"
	"github.com/scrypster/rallygraph/internal/response"
	"github.com/scrypster/rallygraph/internal/retrieval"
	"github.com/scrypster/rallygraph/internal/storage"
)

// ErrEmptyQuery is returned for blank query text. It is the only error a
// query can produce apart from caller cancellation.
var ErrEmptyQuery = errors.New("query is empty")

// ServiceUnavailable is the response text when the language model cannot be
// used.
const ServiceUnavailable = "The knowledge assistant is temporarily unavailable. Please try again in a moment."

// Gate is the part of availability.Gate the service uses.
type Gate interface {
	Check(ctx context.Context, s availability.Subsystem) bool
	Report(s availability.Subsystem, err error)
	Snapshot() []availability.Status
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      storage.GraphReader    // required
	Generator  llm.TextGenerator      // required
	Gate       Gate                   // required
	Embedder   llm.EmbeddingGenerator // optional; nil disables vector search
	Recognizer analyzer.Recognizer    // optional; default heuristic
	Metrics    *metrics.Collector     // optional
	Logger     *zap.Logger
}

// Options tunes every stage. Zero values fall back to stage defaults.
type Options struct {
	Dimension       int
	StrategyLimit   int
	StrategyTimeout time.Duration
	Aggregation     retrieval.AggregatorOptions
	Assembly        retrieval.AssemblerOptions
	MaxTokens       int
	Temperature     float64
}

// OptionsFromConfig maps the retrieval, LLM and embedding sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dimension:       cfg.Embedding.Dimension,
		StrategyLimit:   cfg.Retrieval.StrategyLimit,
		StrategyTimeout: cfg.Retrieval.StrategyTimeout,
		Aggregation: retrieval.AggregatorOptions{
			TopK:           cfg.Retrieval.TopK,
			SemanticWeight: cfg.Retrieval.SemanticWeight,
			EntityWeight:   cfg.Retrieval.EntityWeight,
			Threshold:      cfg.Retrieval.ScoreThreshold,
		},
		Assembly: retrieval.AssemblerOptions{
			ExcerptChars: cfg.Retrieval.ExcerptChars,
			RelatedLimit: cfg.Retrieval.RelatedItemLimit,
		},
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
}

// Service answers queries. It holds no per-query state and is safe for
// concurrent use.
type Service struct {
	analyzer   *analyzer.Analyzer
	dispatcher *retrieval.Dispatcher
	generator  *response.Generator
	gate       Gate
	aggregate  retrieval.AggregatorOptions
	assemble   retrieval.AssemblerOptions
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New builds a Service.
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case deps.Gate == nil:
		return nil, errors.New("pipeline: gate is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		gate:      deps.Gate,
		aggregate: opts.Aggregation,
		assemble:  opts.Assembly,
		metrics:   deps.Metrics,
		logger:    logger.With(zap.String("component", "pipeline")),
	}
	s.analyzer = analyzer.New(analyzer.Options{
		Recognizer: deps.Recognizer,
		Embedder:   deps.Embedder,
		Gate:       deps.Gate,
		Dimension:  opts.Dimension,
		Logger:     logger,
	})
	s.dispatcher = retrieval.NewDispatcher(deps.Store, retrieval.DispatcherOptions{
		Gate:    deps.Gate,
		Limit:   opts.StrategyLimit,
		Timeout: opts.StrategyTimeout,
		Logger:  logger,
		Observe: func(r retrieval.Report) {
			s.metrics.RecordStrategy(string(r.Strategy), string(r.Status), r.Count, r.Duration)
		},
	})
	s.generator = response.New(deps.Generator, deps.Store, response.Options{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Gate:        deps.Gate,
		Logger:      logger,
	})
	return s, nil
}

// Query answers text. Apart from ErrEmptyQuery and caller cancellation it
// always returns a Response, whichever subsystems are down.
func (s *Service) Query(ctx context.Context, text string) (*Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	if !s.gate.Check(ctx, availability.LanguageModel) {
		s.logger.Warn("language model unavailable, skipping pipeline")
		resp := &Response{
			Response: ServiceUnavailable,
			TechnicalDetails: TechnicalDetails{
				RetrievalSummary: RetrievalSummary{
					Query:    text,
					Branch:   response.BranchUnavailable,
					Duration: time.Since(start),
				},
			},
		}
		s.finish(resp)
		return resp, nil
	}

	an := s.analyzer.Analyze(ctx, text)
	outcome := s.dispatcher.Dispatch(ctx, an)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := retrieval.Aggregate(outcome, an, s.aggregate)
	assembled := retrieval.Assemble(results, s.assemble)
	rendered := assembled.Text()

	generated := s.generator.Generate(ctx, an, rendered)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{
		Response: generated.Text,
		TechnicalDetails: TechnicalDetails{
			RetrievalSummary: summarize(an, outcome, results, rendered, generated, time.Since(start)),
		},
	}
	s.finish(resp)
	return resp, nil
}

// finish attaches the subsystem snapshot, records metrics and logs.
func (s *Service) finish(resp *Response) {
	snapshot := s.gate.Snapshot()
	resp.TechnicalDetails.SubsystemStatus = availability.States(snapshot)
	resp.TechnicalDetails.SubsystemErrors = availability.Errors(snapshot)

	sum := resp.TechnicalDetails.RetrievalSummary
	s.metrics.RecordQuery(string(sum.Branch), sum.AggregatedCount, sum.Duration)
	s.logger.Info("query answered",
		zap.String("branch", string(sum.Branch)),
		zap.Int("results", sum.AggregatedCount),
		zap.Int("context_chars", sum.ContextLength),
		zap.Duration("duration", sum.Duration))
}

// Status probes every subsystem that is due and returns the snapshot.
func (s *Service) Status(ctx context.Context) map[string]string {
	for _, sub := range availability.AllSubsystems {
		s.gate.Check(ctx, sub)
	}
	return availability.States(s.gate.Snapshot())
}
