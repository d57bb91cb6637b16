package storage

import (
	"errors"
	"slices"
	"strings"

	"github.com/scrypster/rallygraph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DocumentHit is one ContentSearch row.
type DocumentHit struct {
	Title    string
	Content  string
	Entities []string // names of directly contained entities, sorted
	Overlap  int      // contained entities matching the search terms
}

// Neighbor is one hop away from a matched entity.
type Neighbor struct {
	Name     string
	Type     types.EntityType
	Relation types.RelationType
	Outgoing bool // true when the matched entity is the edge source
}

// EntityHit is one EntitySearch row.
type EntityHit struct {
	Name      string
	Type      types.EntityType
	Neighbors []Neighbor // sorted by name, then relation
	Documents []string   // titles of containing documents, sorted
}

// ChunkHit is one VectorSearch row.
type ChunkHit struct {
	DocumentTitle string
	ChunkIndex    int
	Text          string
	Similarity    float64 // cosine similarity clamped to [0,1]
}

// MaxCandidates bounds the rows a backend fetches before ranking in Go.
const MaxCandidates = 200

// CandidateLimit returns how many rows to fetch for a final limit.
func CandidateLimit(limit int) int {
	n := limit * 10
	if n > MaxCandidates {
		n = MaxCandidates
	}
	if n < limit {
		n = limit
	}
	return n
}

// NormalizeTerms lower-cases, trims and deduplicates terms, dropping empty ones.
func NormalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		k := types.NormalizeKey(t)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// TermMatches reports whether name and a normalized term overlap: either
// contains the other.
func TermMatches(name string, term string) bool {
	k := types.NormalizeKey(name)
	if k == "" || term == "" {
		return false
	}
	return strings.Contains(term, k) || strings.Contains(k, term)
}

// RankDocuments computes Overlap for each hit, orders by overlap descending
// then title ascending, and truncates to limit.
func RankDocuments(hits []DocumentHit, terms []string, limit int) []DocumentHit {
	for i := range hits {
		hits[i].Overlap = 0
		for _, name := range hits[i].Entities {
			for _, term := range terms {
				if TermMatches(name, term) {
					hits[i].Overlap++
					break
				}
			}
		}
	}
	slices.SortStableFunc(hits, func(a, b DocumentHit) int {
		if a.Overlap != b.Overlap {
			return b.Overlap - a.Overlap
		}
		return strings.Compare(a.Title, b.Title)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// RankEntities orders entity hits with exact name matches first, then by
// name, and truncates to limit.
func RankEntities(hits []EntityHit, terms []string, limit int) []EntityHit {
	exact := func(h EntityHit) bool {
		k := types.NormalizeKey(h.Name)
		return slices.Contains(terms, k)
	}
	slices.SortStableFunc(hits, func(a, b EntityHit) int {
		ea, eb := exact(a), exact(b)
		if ea != eb {
			if ea {
				return -1
			}
			return 1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Type), string(b.Type))
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SortNeighbors orders neighbors by name, then relation.
func SortNeighbors(ns []Neighbor) {
	slices.SortStableFunc(ns, func(a, b Neighbor) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Relation), string(b.Relation))
	})
}

// ClampSimilarity maps a cosine similarity into [0,1].
func ClampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
