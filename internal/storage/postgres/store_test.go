package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/internal/storage/postgres"
	"github.com/scrypster/rallygraph/pkg/types"
)

const testDimension = 3

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database and empties every graph table.
func newTestStore(t *testing.T) *postgres.GraphStore {
	t.Helper()

	store, err := postgres.NewGraphStore(context.Background(), postgresTestDSN(t), postgres.Options{Dimension: testDimension})
	require.NoError(t, err, "NewGraphStore should succeed")
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.TruncateForTest(context.Background()))
	return store
}

func seedServing(t *testing.T, s *postgres.GraphStore) *types.Document {
	t.Helper()
	ctx := context.Background()

	doc := &types.Document{Title: "Serve Mechanics", Content: "Consistent serving starts with a repeatable toss."}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	skill := &types.Entity{Name: "serving", Type: types.EntitySkill}
	drill := &types.Entity{Name: "Target Practice", Type: types.EntityDrill}
	require.NoError(t, s.UpsertEntity(ctx, skill))
	require.NoError(t, s.UpsertEntity(ctx, drill))
	require.NoError(t, s.LinkDocumentEntity(ctx, doc.ID, skill.ID))
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{FromID: drill.ID, ToID: skill.ID, Type: types.RelDevelops}))
	return doc
}

func TestNewGraphStore_RejectsZeroDimension(t *testing.T) {
	_, err := postgres.NewGraphStore(context.Background(), "postgres://unused", postgres.Options{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSchema_DeclaresVectorColumn(t *testing.T) {
	ddl := postgres.Schema(384)
	assert.Contains(t, ddl, "embedding vector(384)")
	assert.Contains(t, ddl, "USING hnsw (embedding vector_cosine_ops)")
}

func TestKeywordSearches(t *testing.T) {
	s := newTestStore(t)
	seedServing(t, s)
	ctx := context.Background()

	docs, err := s.ContentSearch(ctx, []string{"serving"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Serve Mechanics", docs[0].Title)
	assert.Equal(t, []string{"serving"}, docs[0].Entities)

	ents, err := s.EntitySearch(ctx, []string{"serving"}, 5)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, []string{"Serve Mechanics"}, ents[0].Documents)
	require.Len(t, ents[0].Neighbors, 1)
	assert.Equal(t, "Target Practice", ents[0].Neighbors[0].Name)
	assert.False(t, ents[0].Neighbors[0].Outgoing)
}

func TestKeywordSearches_RankBeyondCandidateWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.UpsertDocument(ctx, &types.Document{
			Title:   fmt.Sprintf("A%02d notes", i),
			Content: "Notes on serving.",
		}))
		require.NoError(t, s.UpsertEntity(ctx, &types.Entity{
			Name: fmt.Sprintf("a%02d serve", i),
			Type: types.EntityDrill,
		}))
	}
	guide := &types.Document{Title: "Zone Serving Guide", Content: "Zone serving with float serve and jump serve."}
	require.NoError(t, s.UpsertDocument(ctx, guide))
	for _, name := range []string{"serving", "float serve", "jump serve", "serve"} {
		e := &types.Entity{Name: name, Type: types.EntitySkill}
		require.NoError(t, s.UpsertEntity(ctx, e))
		require.NoError(t, s.LinkDocumentEntity(ctx, guide.ID, e.ID))
	}

	docs, err := s.ContentSearch(ctx, []string{"serving", "float serve", "jump serve"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	assert.Equal(t, "Zone Serving Guide", docs[0].Title)
	assert.Equal(t, "A00 notes", docs[1].Title)

	ents, err := s.EntitySearch(ctx, []string{"serve"}, 3)
	require.NoError(t, err)
	require.Len(t, ents, 3)
	assert.Equal(t, "serve", ents[0].Name)
}

func TestVectorSearch(t *testing.T) {
	s := newTestStore(t)
	doc := seedServing(t, s)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []types.Chunk{
		{Index: 0, Text: "toss", Embedding: []float32{1, 0, 0}},
		{Index: 1, Text: "wrist", Embedding: []float32{0, 1, 0}},
	}))

	hits, err := s.VectorSearch(ctx, []float32{1, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "toss", hits[0].Text)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	_, err = s.VectorSearch(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	dims, err := s.EmbeddingDimensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{testDimension}, dims)
}

func TestOverview(t *testing.T) {
	s := newTestStore(t)
	seedServing(t, s)

	ov, err := s.Overview(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, ov.DocumentCount)
	assert.Equal(t, []string{"serving"}, ov.Examples[types.EntitySkill])
}

func TestEdgesAndTemplates(t *testing.T) {
	s := newTestStore(t)
	seedServing(t, s)
	ctx := context.Background()

	toss := &types.Entity{Name: "toss", Type: types.EntitySkill}
	require.NoError(t, s.UpsertEntity(ctx, toss))
	serving := &types.Entity{Name: "serving", Type: types.EntitySkill}
	require.NoError(t, s.UpsertEntity(ctx, serving))
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{FromID: serving.ID, ToID: toss.ID, Type: types.RelRequires, Strength: 0.9}))

	edges, err := s.Edges(ctx, storage.EdgeFilter{Relation: types.RelDevelops, ToKey: "serving"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "Target Practice", edges[0].FromName)

	edges, err = s.Edges(ctx, storage.EdgeFilter{FromKey: "' OR 1=1 --"})
	require.NoError(t, err)
	assert.Empty(t, edges)

	rows, err := s.RunTemplate(ctx, "skill", "skill_drills", map[string]string{"skill_name": "SERVING"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Target Practice"}, rows[0]["drills"])

	rows, err = s.RunTemplate(ctx, "skill", "skill_prerequisites", map[string]string{"skill_name": "serving"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []storage.StrengthLink{{Name: "toss", Strength: 0.9}}, rows[0]["prerequisites"])
}
