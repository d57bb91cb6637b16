package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// ContentSearch implements storage.GraphReader.
func (s *GraphStore) ContentSearch(ctx context.Context, terms []string, limit int) ([]storage.DocumentHit, error) {
	terms = storage.NormalizeTerms(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	// Overlap is ranked in SQL so the candidate window keeps the best
	// documents when more rows match than it holds.
	overlap := make([]string, len(terms))
	conds := make([]string, len(terms))
	args := make([]interface{}, 0, 3*len(terms)+1)
	for i, t := range terms {
		overlap[i] = "instr(?, e.name_key) > 0 OR instr(e.name_key, ?) > 0"
		args = append(args, t, t)
	}
	for i, t := range terms {
		conds[i] = "instr(lower(d.content), ?) > 0"
		args = append(args, t)
	}
	args = append(args, storage.CandidateLimit(limit))

	query := `
		SELECT d.id, d.title, d.content,
		       (SELECT COUNT(*) FROM document_entities de
		        JOIN entities e ON e.id = de.entity_id
		        WHERE de.document_id = d.id AND (` + strings.Join(overlap, " OR ") + `)) AS overlap
		FROM documents d
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY overlap DESC, d.title
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: content search: %w", err)
	}
	defer rows.Close()

	var (
		ids  []string
		hits []storage.DocumentHit
	)
	for rows.Next() {
		var id string
		var hit storage.DocumentHit
		if err := rows.Scan(&id, &hit.Title, &hit.Content, &hit.Overlap); err != nil {
			return nil, fmt.Errorf("sqlite: content search scan: %w", err)
		}
		ids = append(ids, id)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: content search rows: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	names, err := s.containedEntityNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		hits[i].Entities = names[id]
	}

	return storage.RankDocuments(hits, terms, limit), nil
}

// containedEntityNames maps document ID to the sorted names of entities it contains.
func (s *GraphStore) containedEntityNames(ctx context.Context, documentIDs []string) (map[string][]string, error) {
	args := make([]interface{}, len(documentIDs))
	for i, id := range documentIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT de.document_id, e.name
		FROM document_entities de
		JOIN entities e ON e.id = de.entity_id
		WHERE de.document_id IN (`+placeholders(len(args))+`)
		ORDER BY e.name`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: contained entities: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(documentIDs))
	for rows.Next() {
		var docID, name string
		if err := rows.Scan(&docID, &name); err != nil {
			return nil, fmt.Errorf("sqlite: contained entities scan: %w", err)
		}
		out[docID] = append(out[docID], name)
	}
	return out, rows.Err()
}

// EntitySearch implements storage.GraphReader. A term matches an entity when
// the term occurs in the entity name or the entity name occurs as whole words
// in the term.
func (s *GraphStore) EntitySearch(ctx context.Context, terms []string, limit int) ([]storage.EntityHit, error) {
	terms = storage.NormalizeTerms(terms)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	conds := make([]string, len(terms))
	args := make([]interface{}, 0, 3*len(terms)+1)
	for i, t := range terms {
		conds[i] = "(instr(e.name_key, ?) > 0 OR instr(' ' || ? || ' ', ' ' || e.name_key || ' ') > 0)"
		args = append(args, t, t)
	}
	for _, t := range terms {
		args = append(args, t)
	}
	args = append(args, storage.CandidateLimit(limit))

	// Exact matches sort ahead of the candidate cut.
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.type
		FROM entities e
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY CASE WHEN e.name_key IN (`+placeholders(len(terms))+`) THEN 0 ELSE 1 END, e.name, e.type
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: entity search: %w", err)
	}

	var (
		hits []storage.EntityHit
		ids  = map[string]string{}
	)
	for rows.Next() {
		var id, name, typ string
		if err := rows.Scan(&id, &name, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: entity search scan: %w", err)
		}
		hits = append(hits, storage.EntityHit{Name: name, Type: types.EntityType(typ)})
		ids[name+"\x00"+typ] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: entity search rows: %w", err)
	}

	hits = storage.RankEntities(hits, terms, limit)

	// Expansion runs after the candidate cursor is closed: the store holds a
	// single connection.
	for i := range hits {
		id := ids[hits[i].Name+"\x00"+string(hits[i].Type)]
		if hits[i].Neighbors, err = s.neighbors(ctx, id); err != nil {
			return nil, err
		}
		if hits[i].Documents, err = s.containingDocuments(ctx, id); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func (s *GraphStore) neighbors(ctx context.Context, entityID string) ([]storage.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.type, e.name, e.type, 1
		FROM relationships r JOIN entities e ON e.id = r.to_id
		WHERE r.from_id = ?
		UNION ALL
		SELECT r.type, e.name, e.type, 0
		FROM relationships r JOIN entities e ON e.id = r.from_id
		WHERE r.to_id = ?`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: neighbors: %w", err)
	}
	defer rows.Close()

	var out []storage.Neighbor
	for rows.Next() {
		var rel, name, typ string
		var outgoing int
		if err := rows.Scan(&rel, &name, &typ, &outgoing); err != nil {
			return nil, fmt.Errorf("sqlite: neighbors scan: %w", err)
		}
		out = append(out, storage.Neighbor{
			Name:     name,
			Type:     types.EntityType(typ),
			Relation: types.RelationType(rel),
			Outgoing: outgoing == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: neighbors rows: %w", err)
	}
	storage.SortNeighbors(out)
	return out, nil
}

func (s *GraphStore) containingDocuments(ctx context.Context, entityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.title
		FROM document_entities de JOIN documents d ON d.id = de.document_id
		WHERE de.entity_id = ?
		ORDER BY d.title`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: containing documents: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("sqlite: containing documents scan: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// VectorSearch implements storage.GraphReader by scanning every stored
// embedding and ranking by cosine similarity in Go.
func (s *GraphStore) VectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ChunkHit, error) {
	if len(query) == 0 || limit <= 0 {
		return nil, nil
	}
	if s.dimension > 0 && len(query) != s.dimension {
		return nil, fmt.Errorf("sqlite: query has %d dimensions, store has %d: %w",
			len(query), s.dimension, storage.ErrDimensionMismatch)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.title, c.chunk_index, c.text, c.embedding
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL AND c.dimension = ?`, len(query))
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer rows.Close()

	var hits []storage.ChunkHit
	for rows.Next() {
		var hit storage.ChunkHit
		var blob []byte
		if err := rows.Scan(&hit.DocumentTitle, &hit.ChunkIndex, &hit.Text, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: vector search scan: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: chunk %d of %q: %w", hit.ChunkIndex, hit.DocumentTitle, err)
		}
		hit.Similarity = storage.ClampSimilarity(cosineSimilarity(query, vec))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	slices.SortStableFunc(hits, func(a, b storage.ChunkHit) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		if c := strings.Compare(a.DocumentTitle, b.DocumentTitle); c != 0 {
			return c
		}
		return a.ChunkIndex - b.ChunkIndex
	})
	if len(hits) > limit {
		hits = hits[:limit]
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
		return nil, fmt.Errorf("sqlite: overview counts: %w", err)
	}
	var entityTypes []types.EntityType
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: overview counts scan: %w", err)
		}
		ov.EntityCounts[types.EntityType(typ)] = n
		entityTypes = append(entityTypes, types.EntityType(typ))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: overview counts rows: %w", err)
	}

	for _, typ := range entityTypes {
		names, err := s.strings(ctx, `SELECT name FROM entities WHERE type = ? ORDER BY name LIMIT ?`, string(typ), sampleSize)
		if err != nil {
			return nil, fmt.Errorf("sqlite: overview examples: %w", err)
		}
		ov.Examples[typ] = names
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&ov.DocumentCount); err != nil {
		return nil, fmt.Errorf("sqlite: overview document count: %w", err)
	}

	ov.SampleTitles, err = s.strings(ctx, `SELECT title FROM documents ORDER BY title LIMIT ?`, sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sqlite: overview titles: %w", err)
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
