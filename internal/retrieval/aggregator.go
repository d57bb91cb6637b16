package retrieval

import (
	"slices"
	"strings"

	"github.com/scrypster/rallygraph/internal/analyzer"
)

// AggregatorOptions tunes ranking. Zero values fall back to the defaults.
type AggregatorOptions struct {
	TopK           int     // default 5
	SemanticWeight float64 // default 0.6
	EntityWeight   float64 // default 0.4
	Threshold      float64 // default 0.3; negative keeps every vector result
}

// DefaultAggregatorOptions returns the default ranking parameters.
func DefaultAggregatorOptions() AggregatorOptions {
	return AggregatorOptions{TopK: 5, SemanticWeight: 0.6, EntityWeight: 0.4, Threshold: 0.3}
}

func (o AggregatorOptions) withDefaults() AggregatorOptions {
	d := DefaultAggregatorOptions()
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.SemanticWeight <= 0 && o.EntityWeight <= 0 {
		o.SemanticWeight, o.EntityWeight = d.SemanticWeight, d.EntityWeight
	}
	switch {
	case o.Threshold == 0:
		o.Threshold = d.Threshold
	case o.Threshold < 0:
		o.Threshold = 0
	}
	return o
}

// entitySaturation is the entity match count at which the entity component
// of a blended score reaches its maximum.
const entitySaturation = 5

// Aggregate merges an outcome into one ranked list: entity results, then
// content results, then vector results re-scored with the blended score,
// thresholded and sorted. Duplicated identity keys keep the first entry.
// The output holds at most TopK results and is deterministic for identical
// inputs.
func Aggregate(out *Outcome, an *analyzer.Analysis, opts AggregatorOptions) []Result {
	opts = opts.withDefaults()
	if out == nil {
		return nil
	}

	merged := make([]Result, 0, opts.TopK)
	seen := make(map[string]bool)
	add := func(results []Result) bool {
		for _, r := range results {
			if len(merged) == opts.TopK {
				return false
			}
			k := r.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, r)
		}
		return true
	}

	if !add(out.Results[StrategyEntity]) {
		return merged
	}
	if !add(out.Results[StrategyContent]) {
		return merged
	}
	add(rankVector(out.Results[StrategyVector], an, opts))
	return merged
}

// rankVector computes blended scores, drops results under the threshold and
// sorts by score descending, then title, then chunk index.
func rankVector(results []Result, an *analyzer.Analysis, opts AggregatorOptions) []Result {
	entityTexts := queryEntityTexts(an)

	ranked := make([]*DocumentMatch, 0, len(results))
	for _, r := range results {
		m, ok := r.(*DocumentMatch)
		if !ok {
			continue
		}
		scored := *m
		scored.setScore(BlendedScore(m.Similarity, entityMatchCount(m.Content, entityTexts), opts.SemanticWeight, opts.EntityWeight))
		if scored.Score() < opts.Threshold {
			continue
		}
		ranked = append(ranked, &scored)
	}

	slices.SortStableFunc(ranked, func(a, b *DocumentMatch) int {
		switch {
		case a.Score() > b.Score():
			return -1
		case a.Score() < b.Score():
			return 1
		}
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return a.ChunkIndex - b.ChunkIndex
	})

	out := make([]Result, len(ranked))
	for i, m := range ranked {
		out[i] = m
	}
	return out
}

// BlendedScore is wSem*similarity + wEnt*min(entityMatches/5, 1), clamped
// to [0,1].
func BlendedScore(similarity float64, entityMatches int, wSem, wEnt float64) float64 {
	entity := float64(entityMatches) / entitySaturation
	if entity > 1 {
		entity = 1
	}
	s := wSem*similarity + wEnt*entity
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// queryEntityTexts returns the distinct lower-cased entity texts of an.
func queryEntityTexts(an *analyzer.Analysis) []string {
	if an == nil {
		return nil
	}
	var texts []string
	seen := map[string]bool{}
	for _, e := range an.Entities {
		t := strings.ToLower(strings.TrimSpace(e.Text))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		texts = append(texts, t)
	}
	return texts
}

// entityMatchCount counts the entity texts occurring in text.
func entityMatchCount(text string, entityTexts []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range entityTexts {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
