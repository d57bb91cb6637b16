package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// Status is the outcome of one strategy run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
)

// Report describes one strategy run.
type Report struct {
	Strategy Strategy      `json:"strategy"`
	Status   Status        `json:"status"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"durationNs"`
	Error    string        `json:"error,omitempty"`
}

// Outcome holds the typed results of every strategy, each in the
// strategy's own order, and one Report per strategy in priority order.
type Outcome struct {
	Results map[Strategy][]Result
	Reports []Report
}

// Report returns the report of strategy s.
func (o *Outcome) Report(s Strategy) Report {
	for _, r := range o.Reports {
		if r.Strategy == s {
			return r
		}
	}
	return Report{Strategy: s, Status: StatusSkipped}
}

// Gate is the part of availability.Gate the dispatcher uses.
type Gate interface {
	Check(ctx context.Context, s availability.Subsystem) bool
	Report(s availability.Subsystem, err error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Gate    Gate          // nil treats every subsystem as usable
	Limit   int           // per-strategy result cap (default 5)
	Timeout time.Duration // per-strategy timeout (default 5s)
	Logger  *zap.Logger

	// Observe, if set, receives every strategy report.
	Observe func(Report)
}

// Dispatcher runs the retrieval strategies concurrently. Each strategy has
// its own timeout and failure boundary: a failed, timed-out or panicking
// strategy yields an empty result list and never affects the others.
type Dispatcher struct {
	store   storage.GraphReader
	gate    Gate
	limit   int
	timeout time.Duration
	logger  *zap.Logger
	observe func(Report)
}

// NewDispatcher creates a Dispatcher over store.
func NewDispatcher(store storage.GraphReader, opts DispatcherOptions) *Dispatcher {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		store:   store,
		gate:    opts.Gate,
		limit:   opts.Limit,
		timeout: opts.Timeout,
		logger:  opts.Logger.With(zap.String("component", "dispatcher")),
		observe: opts.Observe,
	}
}

type strategyFunc func(ctx context.Context, an *analyzer.Analysis) ([]Result, error)

// Dispatch runs every strategy for an. It always returns an Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, an *analyzer.Analysis) *Outcome {
	storeUsable := d.usable(ctx, availability.GraphStore)
	vectorUsable := storeUsable && an.Embedding != nil && d.usable(ctx, availability.EmbeddingModel)

	runs := []struct {
		strategy Strategy
		enabled  bool
		fn       strategyFunc
	}{
		{StrategyEntity, storeUsable, d.entitySearch},
		{StrategyContent, storeUsable, d.contentSearch},
		{StrategyVector, vectorUsable, d.vectorSearch},
	}

	type runResult struct {
		results []Result
		report  Report
		err     error
	}
	collected := make([]runResult, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	for i, run := range runs {
		i, run := i, run
		if !run.enabled {
			collected[i] = runResult{report: Report{Strategy: run.strategy, Status: StatusSkipped}}
			continue
		}
		g.Go(func() error {
			results, report, err := d.run(gctx, run.strategy, run.fn, an)
			collected[i] = runResult{results: results, report: report, err: err}
			return nil // strategies never cancel each other
		})
	}
	_ = g.Wait()

	out := &Outcome{Results: make(map[Strategy][]Result, len(runs))}
	var keywordErrs []error
	for _, c := range collected {
		out.Results[c.report.Strategy] = c.results
		out.Reports = append(out.Reports, c.report)
		if d.observe != nil {
			d.observe(c.report)
		}
		if c.report.Strategy != StrategyVector && c.report.Status == StatusFailed {
			keywordErrs = append(keywordErrs, c.err)
		}
		if errors.Is(c.err, storage.ErrDimensionMismatch) {
			d.report(availability.GraphStore, availability.NewFault(availability.ConfigurationFault, availability.GraphStore, c.err))
		}
	}

	// Both keyword strategies failing together points at the store rather
	// than at one query.
	if len(keywordErrs) == 2 && ctx.Err() == nil {
		d.report(availability.GraphStore, errors.Join(keywordErrs...))
	}
	return out
}

type strategyResult struct {
	results []Result
	err     error
}

// run executes one strategy under its own timeout. The strategy runs in its
// own goroutine so a backend that ignores ctx cannot hold the dispatch past
// the deadline; its late answer is discarded.
func (d *Dispatcher) run(ctx context.Context, s Strategy, fn strategyFunc, an *analyzer.Analysis) (results []Result, report Report, err error) {
	report = Report{Strategy: s}
	start := time.Now()

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan strategyResult, 1)
	go func() {
		var r strategyResult
		defer func() {
			if p := recover(); p != nil {
				r = strategyResult{err: fmt.Errorf("%s search panicked: %v", s, p)}
			}
			done <- r
		}()
		r.results, r.err = fn(sctx, an)
	}()

	select {
	case r := <-done:
		results, err = r.results, r.err
	case <-sctx.Done():
	}
	if err == nil && sctx.Err() != nil {
		err = fmt.Errorf("%s search: %w", s, sctx.Err())
	}

	report.Duration = time.Since(start)
	switch {
	case err == nil:
		report.Status = StatusOK
		report.Count = len(results)
	case errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		report.Status = StatusTimeout
		report.Error = err.Error()
		results = nil
		err = availability.NewFault(availability.QueryFault, availability.GraphStore, err)
	default:
		report.Status = StatusFailed
		report.Error = err.Error()
		results = nil
	}
	if err != nil {
		d.logger.Warn("retrieval strategy failed",
			zap.String("strategy", string(s)),
			zap.String("status", string(report.Status)),
			zap.Duration("duration", report.Duration),
			zap.Error(err))
	}
	return results, report, err
}

func (d *Dispatcher) usable(ctx context.Context, s availability.Subsystem) bool {
	return d.gate == nil || d.gate.Check(ctx, s)
}

func (d *Dispatcher) report(s availability.Subsystem, err error) {
	if d.gate != nil {
		d.gate.Report(s, err)
	}
}

func (d *Dispatcher) contentSearch(ctx context.Context, an *analyzer.Analysis) ([]Result, error) {
	hits, err := d.store.ContentSearch(ctx, an.SearchTerms, d.limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, NewDocumentMatch(StrategyContent, h.Title, h.Content, h.Entities, contentScore(h.Overlap)))
	}
	return results, nil
}

// contentScore maps entity overlap to [0.5,1].
func contentScore(overlap int) float64 {
	return 0.5 + 0.1*float64(min(overlap, 5))
}

// relationshipIntents are the edge types surfaced for develop/plan queries.
var relationshipIntents = map[types.RelationType]bool{
	types.RelDevelops:  true,
	types.RelFocusesOn: true,
	types.RelIncludes:  true,
}

func (d *Dispatcher) entitySearch(ctx context.Context, an *analyzer.Analysis) ([]Result, error) {
	hits, err := d.store.EntitySearch(ctx, an.SearchTerms, d.limit)
	if err != nil {
		return nil, err
	}

	withEdges := an.HasIntent(analyzer.IntentDevelop) || an.HasIntent(analyzer.IntentPlan)
	results := make([]Result, 0, len(hits))
	var edges []Result
	for _, h := range hits {
		related := make([]RelatedNode, len(h.Neighbors))
		for i, n := range h.Neighbors {
			related[i] = RelatedNode{Name: n.Name, Type: n.Type, Relation: n.Relation, Outgoing: n.Outgoing}
			if withEdges && relationshipIntents[n.Relation] && len(edges) < d.limit {
				source, target := n.Name, h.Name
				if n.Outgoing {
					source, target = h.Name, n.Name
				}
				edges = append(edges, NewRelationshipMatch(n.Relation, source, target, 0.7))
			}
		}
		results = append(results, NewEntityMatch(h.Name, h.Type, related, h.Documents, entityScore(h.Name, an.SearchTerms)))
	}
	return append(results, edges...), nil
}

// entityScore is 1 for an exact match with a search term and 0.8 otherwise.
func entityScore(name string, terms []string) float64 {
	key := types.NormalizeKey(name)
	for _, t := range terms {
		if t == key {
			return 1
		}
	}
	return 0.8
}

func (d *Dispatcher) vectorSearch(ctx context.Context, an *analyzer.Analysis) ([]Result, error) {
	hits, err := d.store.VectorSearch(ctx, an.Embedding, d.limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		m := NewDocumentMatch(StrategyVector, h.DocumentTitle, h.Text, nil, h.Similarity)
		m.ChunkIndex = h.ChunkIndex
		m.Similarity = h.Similarity
		results = append(results, m)
	}
	return results, nil
}
