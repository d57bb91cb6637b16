package pipeline

import (
	"time"
	"unicode/utf8"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/response"
	"github.com/scrypster/rallygraph/internal/retrieval"
)

// Response is the structured answer to one query.
type Response struct {
	Response         string           `json:"response"`
	TechnicalDetails TechnicalDetails `json:"technicalDetails"`
}

// TechnicalDetails explains how a response was produced.
type TechnicalDetails struct {
	RetrievalSummary RetrievalSummary  `json:"retrievalSummary"`
	SubsystemStatus  map[string]string `json:"subsystemStatus"`
	SubsystemErrors  map[string]string `json:"subsystemErrors,omitempty"`
}

// RetrievalSummary describes the retrieval and generation of one query.
type RetrievalSummary struct {
	Query           string             `json:"query"`
	Entities        []analyzer.Entity  `json:"entities,omitempty"`
	SearchTerms     []string           `json:"searchTerms,omitempty"`
	Intents         []analyzer.Intent  `json:"intents,omitempty"`
	EmbeddingUsed   bool               `json:"embeddingUsed"`
	Strategies      []retrieval.Report `json:"strategies,omitempty"`
	AggregatedCount int                `json:"aggregatedCount"`
	Sources         []Source           `json:"sources,omitempty"`
	ContextLength   int                `json:"contextLength"`
	Branch          response.Branch    `json:"branch"`
	GenerationError bool               `json:"generationError,omitempty"`
	Duration        time.Duration      `json:"durationNs"`
}

// Source is one aggregated result as shown in technical details.
type Source struct {
	Kind     retrieval.Kind     `json:"kind"`
	Key      string             `json:"key"`
	Strategy retrieval.Strategy `json:"strategy"`
	Score    float64            `json:"score"`
}

func summarize(an *analyzer.Analysis, out *retrieval.Outcome, results []retrieval.Result, rendered string, gen *response.Response, d time.Duration) RetrievalSummary {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{Kind: r.Kind(), Key: r.Key(), Strategy: r.Source(), Score: r.Score()}
	}
	return RetrievalSummary{
		Query:           an.Query,
		Entities:        an.Entities,
		SearchTerms:     an.SearchTerms,
		Intents:         an.Intents,
		EmbeddingUsed:   an.Embedding != nil,
		Strategies:      out.Reports,
		AggregatedCount: len(results),
		Sources:         sources,
		ContextLength:   utf8.RuneCountInString(rendered),
		Branch:          gen.Branch,
		GenerationError: gen.Failed,
		Duration:        d,
	}
}
