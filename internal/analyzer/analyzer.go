// Package analyzer turns raw query text into search terms, domain entities,
// intents and an optional query embedding. Analysis never fails: a broken
// recognizer or embedding model only removes its contribution.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/storage"
)

// Intent is a coarse reading of what the query asks for.
type Intent string

const (
	// IntentOverview asks what the store contains.
	IntentOverview Intent = "overview"
	// IntentDevelop asks how to develop or improve a skill.
	IntentDevelop Intent = "develop"
	// IntentPlan asks for a practice plan or session.
	IntentPlan Intent = "plan"
)

var intentPatterns = []struct {
	intent Intent
	re     *regexp.Regexp
}{
	{IntentOverview, regexp.MustCompile(`(?i)\b(what|tell me about|show me|list|topics?)\b`)},
	{IntentDevelop, regexp.MustCompile(`(?i)\b(develop\w*|improv\w*|practi[cs]\w*|train\w*)\b`)},
	{IntentPlan, regexp.MustCompile(`(?i)\b(plan\w*|sessions?|practi[cs]\w*|workouts?)\b`)},
}

// Analysis is the request-scoped reading of one query.
type Analysis struct {
	Query       string    `json:"query"`
	Entities    []Entity  `json:"entities"`
	SearchTerms []string  `json:"searchTerms"`
	Embedding   []float32 `json:"-"` // nil when the embedding model is unusable
	Intents     []Intent  `json:"intents,omitempty"`
}

// HasIntent reports whether the query carries intent.
func (a *Analysis) HasIntent(intent Intent) bool {
	for _, i := range a.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// Gate is the part of availability.Gate the analyzer uses.
type Gate interface {
	Check(ctx context.Context, s availability.Subsystem) bool
	Report(s availability.Subsystem, err error)
}

// Options configures an Analyzer.
type Options struct {
	Recognizer Recognizer             // default HeuristicRecognizer
	Embedder   llm.EmbeddingGenerator // nil disables query embeddings
	Gate       Gate                   // nil treats the embedder as always usable
	Dimension  int                    // deployment embedding dimension D
	Logger     *zap.Logger
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	gazetteer  *Gazetteer
	recognizer Recognizer
	embedder   llm.EmbeddingGenerator
	gate       Gate
	dimension  int
	logger     *zap.Logger
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	if opts.Recognizer == nil {
		opts.Recognizer = HeuristicRecognizer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Analyzer{
		gazetteer:  NewGazetteer(),
		recognizer: opts.Recognizer,
		embedder:   opts.Embedder,
		gate:       opts.Gate,
		dimension:  opts.Dimension,
		logger:     opts.Logger.With(zap.String("component", "analyzer")),
	}
}

// Analyze reads query. Entities are the recognizer's results followed by
// gazetteer matches; both are kept when they cover the same span.
func (a *Analyzer) Analyze(ctx context.Context, query string) *Analysis {
	query = strings.TrimSpace(query)
	an := &Analysis{Query: query}

	an.Entities = append(an.Entities, a.recognize(ctx, query)...)
	an.Entities = append(an.Entities, a.gazetteer.Match(query)...)
	an.SearchTerms = searchTerms(query, an.Entities)
	an.Intents = detectIntents(query)
	an.Embedding = a.embed(ctx, query)

	return an
}

func (a *Analyzer) recognize(ctx context.Context, text string) (entities []Entity) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("recognizer panicked", zap.Any("panic", r))
			entities = nil
		}
	}()

	entities, err := a.recognizer.Recognize(ctx, text)
	if err != nil {
		a.logger.Warn("named-entity recognition failed", zap.Error(err))
		return nil
	}
	return entities
}

func (a *Analyzer) embed(ctx context.Context, text string) []float32 {
	if a.embedder == nil {
		return nil
	}
	if a.gate != nil && !a.gate.Check(ctx, availability.EmbeddingModel) {
		return nil
	}

	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		a.logger.Warn("query embedding failed", zap.Error(err))
		a.report(err)
		return nil
	}
	if a.dimension > 0 && len(vec) != a.dimension {
		err := availability.NewFault(availability.ConfigurationFault, availability.EmbeddingModel,
			fmt.Errorf("query embedding has %d dimensions, deployment uses %d: %w",
				len(vec), a.dimension, storage.ErrDimensionMismatch))
		a.logger.Error("dropping query embedding", zap.Error(err))
		a.report(err)
		return nil
	}
	return vec
}

func (a *Analyzer) report(err error) {
	if a.gate != nil {
		a.gate.Report(availability.EmbeddingModel, err)
	}
}

// searchTerms returns the lower-cased query (trailing punctuation removed)
// followed by the lower-cased entity texts, deduplicated in order.
func searchTerms(query string, entities []Entity) []string {
	terms := make([]string, 0, len(entities)+1)
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}

	add(strings.TrimRight(strings.TrimSpace(query), "?!."))
	for _, e := range entities {
		add(e.Text)
	}
	return terms
}

func detectIntents(query string) []Intent {
	var intents []Intent
	for _, p := range intentPatterns {
		if p.re.MatchString(query) {
			intents = append(intents, p.intent)
		}
	}
	return intents
}
