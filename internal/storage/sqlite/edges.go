package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// Edges implements storage.EdgeReader.
func (s *GraphStore) Edges(ctx context.Context, f storage.EdgeFilter) ([]storage.Edge, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond, value string) {
		if value != "" {
			conds = append(conds, cond)
			args = append(args, value)
		}
	}
	add("r.type = ?", string(f.Relation))
	add("src.type = ?", string(f.FromType))
	add("dst.type = ?", string(f.ToType))
	add("src.name_key = ?", f.FromKey)
	add("dst.name_key = ?", f.ToKey)

	query := `
		SELECT src.name, src.type, dst.name, dst.type, r.type, r.strength
		FROM relationships r
		JOIN entities src ON src.id = r.from_id
		JOIN entities dst ON dst.id = r.to_id`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY src.name, dst.name, r.type"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: edges: %w", err)
	}
	defer rows.Close()

	var out []storage.Edge
	for rows.Next() {
		var e storage.Edge
		var fromType, toType, rel string
		if err := rows.Scan(&e.FromName, &fromType, &e.ToName, &toType, &rel, &e.Strength); err != nil {
			return nil, fmt.Errorf("sqlite: edges scan: %w", err)
		}
		e.FromType, e.ToType, e.Relation = types.EntityType(fromType), types.EntityType(toType), types.RelationType(rel)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunTemplate implements storage.TemplateRunner.
func (s *GraphStore) RunTemplate(ctx context.Context, category, name string, params map[string]string) ([]storage.TemplateRow, error) {
	return storage.RunTemplate(ctx, s, category, name, params)
}
