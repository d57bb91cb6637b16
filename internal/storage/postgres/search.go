package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// ContentSearch implements storage.GraphReader.
func (s *GraphStore) ContentSearch(ctx context.Context, terms []string, limit int) ([]storage.DocumentHit, error) {
	terms = storage.NormalizeTerms(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	args, refs := bindTerms(nil, terms)
	conds := make([]string, len(refs))
	overlap := make([]string, len(refs))
	for i, ref := range refs {
		conds[i] = "strpos(lower(d.content), " + ref + ") > 0"
		overlap[i] = "strpos(" + ref + ", e.name_key) > 0 OR strpos(e.name_key, " + ref + ") > 0"
	}
	args = append(args, storage.CandidateLimit(limit))

	// Overlap is ranked in SQL so the candidate window keeps the best
	// documents when more rows match than it holds.
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content,
		       COALESCE(array_to_string(ARRAY(
		           SELECT e.name FROM document_entities de
		           JOIN entities e ON e.id = de.entity_id
		           WHERE de.document_id = d.id
		           ORDER BY e.name), E'\x1f'), ''),
		       (SELECT COUNT(*) FROM document_entities de
		        JOIN entities e ON e.id = de.entity_id
		        WHERE de.document_id = d.id AND (`+strings.Join(overlap, " OR ")+`)) AS overlap
		FROM documents d
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY overlap DESC, d.title COLLATE "C"
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: content search: %w", err)
	}
	defer rows.Close()

	var hits []storage.DocumentHit
	for rows.Next() {
		var id, names string
		var hit storage.DocumentHit
		if err := rows.Scan(&id, &hit.Title, &hit.Content, &names, &hit.Overlap); err != nil {
			return nil, fmt.Errorf("postgres: content search scan: %w", err)
		}
		if names != "" {
			hit.Entities = strings.Split(names, "\x1f")
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: content search rows: %w", err)
	}

	return storage.RankDocuments(hits, terms, limit), nil
}

// EntitySearch implements storage.GraphReader. A term matches an entity when
// the term occurs in the entity name or the entity name occurs as whole words
// in the term.
func (s *GraphStore) EntitySearch(ctx context.Context, terms []string, limit int) ([]storage.EntityHit, error) {
	terms = storage.NormalizeTerms(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	args, refs := bindTerms(nil, terms)
	conds := make([]string, len(refs))
	for i, ref := range refs {
		conds[i] = "(strpos(e.name_key, " + ref + ") > 0 OR strpos(' ' || " + ref + " || ' ', ' ' || e.name_key || ' ') > 0)"
	}
	args = append(args, storage.CandidateLimit(limit))

	// Exact matches sort ahead of the candidate cut.
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.type
		FROM entities e
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY CASE WHEN e.name_key IN (`+strings.Join(refs, ", ")+`) THEN 0 ELSE 1 END,
		         e.name COLLATE "C", e.type COLLATE "C"
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: entity search: %w", err)
	}

	var hits []storage.EntityHit
	ids := map[string]string{}
	for rows.Next() {
		var id, name, typ string
		if err := rows.Scan(&id, &name, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: entity search scan: %w", err)
		}
		hits = append(hits, storage.EntityHit{Name: name, Type: types.EntityType(typ)})
		ids[name+"\x00"+typ] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entity search rows: %w", err)
	}

	hits = storage.RankEntities(hits, terms, limit)
	for i := range hits {
		id := ids[hits[i].Name+"\x00"+string(hits[i].Type)]
		if hits[i].Neighbors, err = s.neighbors(ctx, id); err != nil {
			return nil, err
		}
		if hits[i].Documents, err = s.strings(ctx, `
			SELECT d.title
			FROM document_entities de JOIN documents d ON d.id = de.document_id
			WHERE de.entity_id = $1
			ORDER BY d.title`, id); err != nil {
			return nil, fmt.Errorf("postgres: containing documents: %w", err)
		}
	}
	return hits, nil
}

func (s *GraphStore) neighbors(ctx context.Context, entityID string) ([]storage.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.type, e.name, e.type, TRUE
		FROM relationships r JOIN entities e ON e.id = r.to_id
		WHERE r.from_id = $1
		UNION ALL
		SELECT r.type, e.name, e.type, FALSE
		FROM relationships r JOIN entities e ON e.id = r.from_id
		WHERE r.to_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors: %w", err)
	}
	defer rows.Close()

	var out []storage.Neighbor
	for rows.Next() {
		var rel, name, typ string
		var n storage.Neighbor
		if err := rows.Scan(&rel, &name, &typ, &n.Outgoing); err != nil {
			return nil, fmt.Errorf("postgres: neighbors scan: %w", err)
		}
		n.Name, n.Type, n.Relation = name, types.EntityType(typ), types.RelationType(rel)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: neighbors rows: %w", err)
	}
	storage.SortNeighbors(out)
	return out, nil
}

// VectorSearch implements storage.GraphReader using the pgvector cosine
// distance operator, which the HNSW index serves.
func (s *GraphStore) VectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ChunkHit, error) {
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("postgres: query has %d dimensions, store has %d: %w",
			len(query), s.dimension, storage.ErrDimensionMismatch)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.title, c.chunk_index, c.text, 1 - (c.embedding <=> $1) AS similarity
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1, d.title, c.chunk_index
		LIMIT $2`, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer rows.Close()

	var hits []storage.ChunkHit
	for rows.Next() {
		var hit storage.ChunkHit
		if err := rows.Scan(&hit.DocumentTitle, &hit.ChunkIndex, &hit.Text, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: vector search scan: %w", err)
		}
		hit.Similarity = storage.ClampSimilarity(hit.Similarity)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return hits, nil
}

// Overview implements storage.GraphReader.
func (s *GraphStore) Overview(ctx context.Context, sampleSize int) (*types.Overview, error) {
	ov := &types.Overview{
		EntityCounts: map[types.EntityType]int{},
		Examples:     map[types.EntityType][]string{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM entities GROUP BY type ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("postgres: overview counts: %w", err)
	}
	var entityTypes []types.EntityType
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: overview counts scan: %w", err)
		}
		ov.EntityCounts[types.EntityType(typ)] = n
		entityTypes = append(entityTypes, types.EntityType(typ))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: overview counts rows: %w", err)
	}

	for _, typ := range entityTypes {
		names, err := s.strings(ctx, `SELECT name FROM entities WHERE type = $1 ORDER BY name LIMIT $2`, string(typ), sampleSize)
		if err != nil {
			return nil, fmt.Errorf("postgres: overview examples: %w", err)
		}
		ov.Examples[typ] = names
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&ov.DocumentCount); err != nil {
		return nil, fmt.Errorf("postgres: overview document count: %w", err)
	}

	ov.SampleTitles, err = s.strings(ctx, `SELECT title FROM documents ORDER BY title LIMIT $1`, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("postgres: overview titles: %w", err)
	}
	return ov, nil
}

// strings runs a single-column query and collects the values.
func (s *GraphStore) strings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
