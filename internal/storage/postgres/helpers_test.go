// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every graph table.
// It is defined in the postgres package (not the _test package) so it has
// access to the unexported db field, and exported so that the postgres_test
// package can call it.
func (s *GraphStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"TRUNCATE TABLE relationships, document_entities, chunks, entities, documents CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate graph tables: %w", err)
	}
	return nil
}
