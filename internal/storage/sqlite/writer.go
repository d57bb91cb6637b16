package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// UpsertDocument implements storage.GraphWriter.
func (s *GraphStore) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil || strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("sqlite: document title is required: %w", storage.ErrInvalidInput)
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, title_key, title, content, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (title_key) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source = excluded.source
		RETURNING id`,
		doc.ID, types.NormalizeKey(doc.Title), doc.Title, doc.Content, doc.Source,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upsert document %q: %w", doc.Title, err)
	}
	return nil
}

// UpsertEntity implements storage.GraphWriter.
func (s *GraphStore) UpsertEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("sqlite: entity name is required: %w", storage.ErrInvalidInput)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("sqlite: entity type %q: %w", e.Type, storage.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO entities (id, name_key, name, type, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name_key, type) DO UPDATE SET name = excluded.name
		RETURNING id`,
		e.ID, types.NormalizeKey(e.Name), e.Name, string(e.Type), e.Source,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upsert entity %q: %w", e.Name, err)
	}
	return nil
}

// LinkDocumentEntity implements storage.GraphWriter.
func (s *GraphStore) LinkDocumentEntity(ctx context.Context, documentID, entityID string) error {
	if documentID == "" || entityID == "" {
		return fmt.Errorf("sqlite: link requires both ids: %w", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_entities (document_id, entity_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`, documentID, entityID)
	if err != nil {
		return fmt.Errorf("sqlite: link document %s to entity %s: %w", documentID, entityID, err)
	}
	return nil
}

// UpsertRelationship implements storage.GraphWriter.
func (s *GraphStore) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil || rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return fmt.Errorf("sqlite: relationship requires endpoints and type: %w", storage.ErrInvalidInput)
	}
	if rel.ID == "" {
		rel.ID = uuid.New().String()
	}
	if rel.Strength <= 0 {
		rel.Strength = 1.0
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO relationships (id, from_id, to_id, type, strength)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (from_id, to_id, type) DO UPDATE SET
			strength = max(relationships.strength, excluded.strength)
		RETURNING id, strength`,
		rel.ID, rel.FromID, rel.ToID, string(rel.Type), rel.Strength,
	).Scan(&rel.ID, &rel.Strength)
	if err != nil {
		return fmt.Errorf("sqlite: upsert relationship %s: %w", rel.Type, err)
	}
	return nil
}

// ReplaceChunks implements storage.GraphWriter.
func (s *GraphStore) ReplaceChunks(ctx context.Context, documentID string, chunks []types.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("sqlite: document id is required: %w", storage.ErrInvalidInput)
	}
	for _, c := range chunks {
		if len(c.Embedding) > 0 && s.dimension > 0 && len(c.Embedding) != s.dimension {
			return fmt.Errorf("sqlite: chunk %d has %d dimensions, store has %d: %w",
				c.Index, len(c.Embedding), s.dimension, storage.ErrDimensionMismatch)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("sqlite: delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, text, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		var blob []byte
		var dim interface{}
		if len(c.Embedding) > 0 {
			blob = encodeEmbedding(c.Embedding)
			dim = len(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, id, documentID, c.Index, c.Text, blob, dim); err != nil {
			return fmt.Errorf("sqlite: insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit chunks: %w", err)
	}
	return nil
}
