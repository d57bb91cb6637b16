// Package storage defines the knowledge-store contract used by the query
// pipeline and the ingestion path.
//
// The store is a property graph (documents, chunks, entities, typed
// relationships) kept in relational tables. Two backends implement it:
// postgres with pgvector for deployments and sqlite for embedded use and tests.
// Every query passes user-supplied text as bind parameters.
package storage

import (
	"context"

	"github.com/scrypster/rallygraph/pkg/types"
)

// GraphReader is the read side used by the retrieval strategies.
type GraphReader interface {
	// ContentSearch returns documents whose text contains any of terms
	// (case-insensitive substring), with their contained entity names,
	// ordered by entity overlap with terms descending, then title.
	ContentSearch(ctx context.Context, terms []string, limit int) ([]DocumentHit, error)

	// EntitySearch returns entities whose name matches any of terms,
	// each expanded one hop to its relationships and containing documents.
	EntitySearch(ctx context.Context, terms []string, limit int) ([]EntityHit, error)

	// VectorSearch returns the chunks most similar to query by cosine
	// similarity, most similar first.
	VectorSearch(ctx context.Context, query []float32, limit int) ([]ChunkHit, error)

	// Overview summarizes the store: entity-type histogram with up to
	// sampleSize examples per type, document count and sample titles.
	Overview(ctx context.Context, sampleSize int) (*types.Overview, error)
}

// HealthProvider is used by the availability gate when probing the store.
type HealthProvider interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// EmbeddingDimensions returns every distinct dimension among stored chunk
	// embeddings (and the declared column dimension, where the backend has one).
	EmbeddingDimensions(ctx context.Context) ([]int, error)
}

// GraphWriter is the write side used by ingestion. All writes are upserts.
type GraphWriter interface {
	// UpsertDocument stores doc keyed by its normalized title. doc.ID is set
	// to the stored ID.
	UpsertDocument(ctx context.Context, doc *types.Document) error

	// UpsertEntity stores e keyed by normalized name and type. e.ID is set to
	// the stored ID.
	UpsertEntity(ctx context.Context, e *types.Entity) error

	// LinkDocumentEntity records a CONTAINS edge from a document to an entity.
	LinkDocumentEntity(ctx context.Context, documentID, entityID string) error

	// UpsertRelationship stores a typed edge; an existing edge keeps the
	// larger strength.
	UpsertRelationship(ctx context.Context, rel *types.Relationship) error

	// ReplaceChunks atomically replaces all chunks of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []types.Chunk) error
}

// GraphStore is the full store contract.
type GraphStore interface {
	GraphReader
	EdgeReader
	TemplateRunner
	HealthProvider
	GraphWriter
	Close() error
}
