// Package response turns an assembled context into the final answer. It
// picks one of four prompt branches and never surfaces a language-model
// error to its caller.
package response

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/pkg/types"
)

// Branch identifies the prompt strategy used for a response.
type Branch string

const (
	// BranchContext answers from a non-empty retrieved context.
	BranchContext Branch = "context"
	// BranchOverview summarizes the store for an overview query.
	BranchOverview Branch = "overview"
	// BranchEmptyStore explains that no documents have been loaded.
	BranchEmptyStore Branch = "empty-store"
	// BranchNoMatch declines and suggests rephrasing.
	BranchNoMatch Branch = "no-match"
	// BranchUnavailable is used by callers that skip generation entirely.
	BranchUnavailable Branch = "unavailable"
)

// Response is the generated answer and the branch that produced it.
type Response struct {
	Text   string `json:"text"`
	Branch Branch `json:"branch"`
	// Failed is set when the language model failed and Text is the apology.
	Failed bool `json:"failed,omitempty"`
}

// OverviewSource summarizes the store for overview queries.
type OverviewSource interface {
	Overview(ctx context.Context, sampleSize int) (*types.Overview, error)
}

// Gate is the part of availability.Gate the generator uses.
type Gate interface {
	Check(ctx context.Context, s availability.Subsystem) bool
	Report(s availability.Subsystem, err error)
}

// Options configures a Generator.
type Options struct {
	MaxTokens      int     // default 1000
	Temperature    float64 // default 0.7 when not positive
	OverviewSample int     // examples per entity type and sample titles (default 5)
	Gate           Gate    // nil treats the store as reachable
	Logger         *zap.Logger
}

// Generator selects a prompt branch and calls the language model.
type Generator struct {
	llm            llm.TextGenerator
	store          OverviewSource
	gate           Gate
	maxTokens      int
	temperature    float64
	overviewSample int
	logger         *zap.Logger
}

// New creates a Generator. store may be nil, in which case overview queries
// fall through to the empty-store branch.
func New(generator llm.TextGenerator, store OverviewSource, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.7
	}
	if opts.OverviewSample <= 0 {
		opts.OverviewSample = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		llm:            generator,
		store:          store,
		gate:           opts.Gate,
		maxTokens:      opts.MaxTokens,
		temperature:    opts.Temperature,
		overviewSample: opts.OverviewSample,
		logger:         opts.Logger.With(zap.String("component", "response")),
	}
}

// Generate builds the prompt for an and renderedContext and calls the model.
// The branch is chosen deterministically:
//
//	non-empty context          -> context
//	overview intent, overview  -> overview
//	overview intent, no data   -> empty-store
//	anything else              -> no-match
func (g *Generator) Generate(ctx context.Context, an *analyzer.Analysis, renderedContext string) *Response {
	branch, prompt := g.prompt(ctx, an, renderedContext)

	text, err := g.llm.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: SystemPersona,
		Prompt:       prompt,
		MaxTokens:    g.maxTokens,
		Temperature:  g.temperature,
	})
	if err != nil {
		g.logger.Error("language model call failed",
			zap.String("branch", string(branch)),
			zap.String("model", g.llm.GetModel()),
			zap.Error(err))
		// Only an open breaker marks the model unavailable.
		if g.gate != nil && errors.Is(err, llm.ErrCircuitOpen) {
			g.gate.Report(availability.LanguageModel,
				availability.NewFault(availability.ConnectivityFault, availability.LanguageModel, err))
		}
		return &Response{Text: Apology, Branch: branch, Failed: true}
	}
	return &Response{Text: text, Branch: branch}
}

func (g *Generator) prompt(ctx context.Context, an *analyzer.Analysis, renderedContext string) (Branch, string) {
	if renderedContext != "" {
		return BranchContext, ContextPrompt(an.Query, renderedContext)
	}
	if !an.HasIntent(analyzer.IntentOverview) {
		return BranchNoMatch, NoMatchPrompt(an.Query)
	}

	ov := g.overview(ctx)
	if ov.IsEmpty() {
		return BranchEmptyStore, EmptyStorePrompt()
	}
	return BranchOverview, OverviewPrompt(an.Query, FormatOverview(ov))
}

// overview returns nil when the store is unreachable or the query fails.
func (g *Generator) overview(ctx context.Context) *types.Overview {
	if g.store == nil {
		return nil
	}
	if g.gate != nil && !g.gate.Check(ctx, availability.GraphStore) {
		return nil
	}
	ov, err := g.store.Overview(ctx, g.overviewSample)
	if err != nil {
		g.logger.Warn("overview query failed", zap.Error(err))
		return nil
	}
	return ov
}
