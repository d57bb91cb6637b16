// Package retrieval runs the three retrieval strategies against the
// knowledge store, merges their results into a ranked, deduplicated list
// and renders that list as a bounded text context.
package retrieval

import (
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// Strategy names a retrieval strategy.
type Strategy string

const (
	StrategyContent Strategy = "content"
	StrategyEntity  Strategy = "entity"
	StrategyVector  Strategy = "vector"
)

// Strategies lists every strategy in priority order.
var Strategies = []Strategy{StrategyEntity, StrategyContent, StrategyVector}

// Kind is the variant tag of a Result.
type Kind string

const (
	KindDocument     Kind = "document"
	KindEntity       Kind = "entity"
	KindRelationship Kind = "relationship"
)

// Result is one retrieved item. The concrete type is one of
// *DocumentMatch, *EntityMatch or *RelationshipMatch.
type Result interface {
	// Kind returns the variant tag.
	Kind() Kind
	// Key returns the identity key used for deduplication.
	Key() string
	// Score returns the normalized score in [0,1].
	Score() float64
	// Source returns the strategy that produced the result.
	Source() Strategy
}

// DocumentMatch is a document (content search) or one of its chunks
// (vector search).
type DocumentMatch struct {
	Title           string
	Content         string
	RelatedEntities []string
	Strategy        Strategy

	// Vector results only.
	ChunkIndex int
	Similarity float64

	score float64
}

func (m *DocumentMatch) Kind() Kind         { return KindDocument }
func (m *DocumentMatch) Key() string        { return types.NormalizeKey(m.Title) }
func (m *DocumentMatch) Score() float64     { return m.score }
func (m *DocumentMatch) Source() Strategy   { return m.Strategy }
func (m *DocumentMatch) setScore(s float64) { m.score = storage.ClampSimilarity(s) }

// RelatedNode is an entity one hop from an EntityMatch.
type RelatedNode struct {
	Name     string
	Type     types.EntityType
	Relation types.RelationType
	Outgoing bool
}

// EntityMatch is a matched entity with its one-hop neighborhood.
type EntityMatch struct {
	Name         string
	Type         types.EntityType
	RelatedNodes []RelatedNode
	Documents    []string

	score float64
}

func (m *EntityMatch) Kind() Kind       { return KindEntity }
func (m *EntityMatch) Key() string      { return types.NormalizeKey(m.Name) }
func (m *EntityMatch) Score() float64   { return m.score }
func (m *EntityMatch) Source() Strategy { return StrategyEntity }

// RelationshipMatch is a typed edge between two named entities.
type RelationshipMatch struct {
	RelationType types.RelationType
	SourceName   string
	TargetName   string

	score float64
}

func (m *RelationshipMatch) Kind() Kind { return KindRelationship }

// Key is source|type|target, normalized.
func (m *RelationshipMatch) Key() string {
	return types.NormalizeKey(m.SourceName) + "|" + types.NormalizeKey(string(m.RelationType)) + "|" + types.NormalizeKey(m.TargetName)
}

func (m *RelationshipMatch) Score() float64   { return m.score }
func (m *RelationshipMatch) Source() Strategy { return StrategyEntity }

// NewDocumentMatch builds a DocumentMatch with score clamped to [0,1].
func NewDocumentMatch(strategy Strategy, title, content string, related []string, score float64) *DocumentMatch {
	m := &DocumentMatch{Title: title, Content: content, RelatedEntities: related, Strategy: strategy}
	m.setScore(score)
	return m
}

// NewEntityMatch builds an EntityMatch with score clamped to [0,1].
func NewEntityMatch(name string, typ types.EntityType, related []RelatedNode, documents []string, score float64) *EntityMatch {
	return &EntityMatch{
		Name:         name,
		Type:         typ,
		RelatedNodes: related,
		Documents:    documents,
		score:        storage.ClampSimilarity(score),
	}
}

// NewRelationshipMatch builds a RelationshipMatch with score clamped to [0,1].
func NewRelationshipMatch(rel types.RelationType, source, target string, score float64) *RelationshipMatch {
	return &RelationshipMatch{
		RelationType: rel,
		SourceName:   source,
		TargetName:   target,
		score:        storage.ClampSimilarity(score),
	}
}
