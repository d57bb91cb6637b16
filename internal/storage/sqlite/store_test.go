package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

func newTestStore(t *testing.T, dim int) *GraphStore {
	t.Helper()
	store, err := NewGraphStore(":memory:", Options{Dimension: dim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedServing stores the "Serve Mechanics" document, the serving skill and
// the Target Practice drill that develops it.
func seedServing(t *testing.T, s *GraphStore) (doc *types.Document, skill, drill *types.Entity) {
	t.Helper()
	ctx := context.Background()

	doc = &types.Document{
		Title:   "Serve Mechanics",
		Content: "Consistent serving starts with a repeatable toss and a firm wrist.",
		Source:  "serve.md",
	}
	require.NoError(t, s.UpsertDocument(ctx, doc))

	skill = &types.Entity{Name: "serving", Type: types.EntitySkill, Source: "pattern-match"}
	drill = &types.Entity{Name: "Target Practice", Type: types.EntityDrill, Source: "pattern-match"}
	require.NoError(t, s.UpsertEntity(ctx, skill))
	require.NoError(t, s.UpsertEntity(ctx, drill))
	require.NoError(t, s.LinkDocumentEntity(ctx, doc.ID, skill.ID))
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{
		FromID: drill.ID, ToID: skill.ID, Type: types.RelDevelops, Strength: 0.8,
	}))
	return doc, skill, drill
}

func TestContentSearch(t *testing.T) {
	s := newTestStore(t, 3)
	seedServing(t, s)
	ctx := context.Background()

	hits, err := s.ContentSearch(ctx, []string{"SERVING"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Serve Mechanics", hits[0].Title)
	assert.Equal(t, []string{"serving"}, hits[0].Entities)
	assert.Equal(t, 1, hits[0].Overlap)

	hits, err = s.ContentSearch(ctx, []string{"blocking"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.ContentSearch(ctx, nil, 5)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestContentSearch_TermsAreBound(t *testing.T) {
	s := newTestStore(t, 3)
	seedServing(t, s)

	hits, err := s.ContentSearch(context.Background(), []string{"') OR 1=1 --"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestContentSearch_WildcardsAreLiteral(t *testing.T) {
	s := newTestStore(t, 3)
	seedServing(t, s)
	ctx := context.Background()
	require.NoError(t, s.UpsertDocument(ctx, &types.Document{
		Title:   "Effort",
		Content: "Every rep at 100% effort.",
	}))

	tests := []struct {
		term string
		want []string
	}{
		{"%", []string{"Effort"}},
		{"100%", []string{"Effort"}},
		{"s_rving", nil},
		{"_", nil},
	}
	for _, tt := range tests {
		hits, err := s.ContentSearch(ctx, []string{tt.term}, 5)
		require.NoError(t, err, tt.term)
		var titles []string
		for _, h := range hits {
			titles = append(titles, h.Title)
		}
		assert.Equal(t, tt.want, titles, "term %q", tt.term)
	}
}

func TestContentSearch_RanksBeyondCandidateWindow(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.UpsertDocument(ctx, &types.Document{
			Title:   fmt.Sprintf("A%02d notes", i),
			Content: "Notes on serving.",
		}))
	}
	guide := &types.Document{Title: "Zone Serving Guide", Content: "Zone serving with float serve and jump serve."}
	require.NoError(t, s.UpsertDocument(ctx, guide))
	for _, name := range []string{"serving", "float serve", "jump serve"} {
		e := &types.Entity{Name: name, Type: types.EntitySkill}
		require.NoError(t, s.UpsertEntity(ctx, e))
		require.NoError(t, s.LinkDocumentEntity(ctx, guide.ID, e.ID))
	}
	require.Greater(t, 61, storage.CandidateLimit(5))

	hits, err := s.ContentSearch(ctx, []string{"serving", "float serve", "jump serve"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, "Zone Serving Guide", hits[0].Title)
	assert.Equal(t, 3, hits[0].Overlap)
	assert.Equal(t, "A00 notes", hits[1].Title)
}

func TestEntitySearch_ExactMatchBeyondCandidateWindow(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, s.UpsertEntity(ctx, &types.Entity{
			Name: fmt.Sprintf("a%02d serve", i),
			Type: types.EntityDrill,
		}))
	}
	require.NoError(t, s.UpsertEntity(ctx, &types.Entity{Name: "serve", Type: types.EntitySkill}))

	hits, err := s.EntitySearch(ctx, []string{"serve"}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "serve", hits[0].Name)
	assert.Equal(t, "a00 serve", hits[1].Name)
}

func TestEntitySearch_ExpandsNeighborsAndDocuments(t *testing.T) {
	s := newTestStore(t, 3)
	seedServing(t, s)

	hits, err := s.EntitySearch(context.Background(), []string{"serving"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit := hits[0]
	assert.Equal(t, "serving", hit.Name)
	assert.Equal(t, types.EntitySkill, hit.Type)
	assert.Equal(t, []string{"Serve Mechanics"}, hit.Documents)
	require.Len(t, hit.Neighbors, 1)
	assert.Equal(t, storage.Neighbor{
		Name:     "Target Practice",
		Type:     types.EntityDrill,
		Relation: types.RelDevelops,
		Outgoing: false,
	}, hit.Neighbors[0])
}

func TestEntitySearch_MatchesNameInsideLongerTerm(t *testing.T) {
	s := newTestStore(t, 3)
	seedServing(t, s)

	hits, err := s.EntitySearch(context.Background(), []string{"how do i improve serving"}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "serving", hits[0].Name)

	// Name embedded inside a larger word does not match.
	hits, err = s.EntitySearch(context.Background(), []string{"observings"}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEntitySearch_ExactMatchFirst(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()
	for _, name := range []string{"jump serve", "float serve", "serve"} {
		require.NoError(t, s.UpsertEntity(ctx, &types.Entity{Name: name, Type: types.EntitySkill}))
	}

	hits, err := s.EntitySearch(ctx, []string{"serve"}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "serve", hits[0].Name)
	assert.Equal(t, "float serve", hits[1].Name)
}

func TestVectorSearch(t *testing.T) {
	s := newTestStore(t, 3)
	doc, _, _ := seedServing(t, s)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []types.Chunk{
		{Index: 0, Text: "toss", Embedding: []float32{1, 0, 0}},
		{Index: 1, Text: "wrist", Embedding: []float32{0, 1, 0}},
		{Index: 2, Text: "opposite", Embedding: []float32{-1, 0, 0}},
	}))

	hits, err := s.VectorSearch(ctx, []float32{1, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "toss", hits[0].Text)
	assert.Equal(t, "wrist", hits[1].Text)
	assert.Equal(t, 0.0, hits[2].Similarity, "negative cosine clamps to zero")
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
	}

	_, err = s.VectorSearch(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestReplaceChunks(t *testing.T) {
	s := newTestStore(t, 3)
	doc, _, _ := seedServing(t, s)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []types.Chunk{
		{Index: 0, Text: "a", Embedding: []float32{1, 0, 0}},
		{Index: 1, Text: "b"},
	}))
	require.NoError(t, s.ReplaceChunks(ctx, doc.ID, []types.Chunk{
		{Index: 0, Text: "c", Embedding: []float32{0, 0, 1}},
	}))

	hits, err := s.VectorSearch(ctx, []float32{0, 0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].Text)

	dims, err := s.EmbeddingDimensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, dims)

	err = s.ReplaceChunks(ctx, doc.ID, []types.Chunk{{Index: 0, Text: "x", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestUpserts(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	first := &types.Document{Title: "Serve Mechanics", Content: "v1"}
	require.NoError(t, s.UpsertDocument(ctx, first))
	second := &types.Document{Title: "  serve   MECHANICS ", Content: "v2"}
	require.NoError(t, s.UpsertDocument(ctx, second))
	assert.Equal(t, first.ID, second.ID, "documents are keyed by normalized title")

	a := &types.Entity{Name: "Pepper", Type: types.EntityDrill}
	b := &types.Entity{Name: "Pepper", Type: types.EntityDrill}
	require.NoError(t, s.UpsertEntity(ctx, a))
	require.NoError(t, s.UpsertEntity(ctx, b))
	assert.Equal(t, a.ID, b.ID)

	skill := &types.Entity{Name: "passing", Type: types.EntitySkill}
	require.NoError(t, s.UpsertEntity(ctx, skill))
	strong := &types.Relationship{FromID: a.ID, ToID: skill.ID, Type: types.RelDevelops, Strength: 0.9}
	weak := &types.Relationship{FromID: a.ID, ToID: skill.ID, Type: types.RelDevelops, Strength: 0.4}
	require.NoError(t, s.UpsertRelationship(ctx, strong))
	require.NoError(t, s.UpsertRelationship(ctx, weak))
	assert.Equal(t, strong.ID, weak.ID)
	assert.InDelta(t, 0.9, weak.Strength, 1e-9, "existing edge keeps the larger strength")

	assert.ErrorIs(t, s.UpsertEntity(ctx, &types.Entity{Name: "x", Type: "Bogus"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.UpsertDocument(ctx, &types.Document{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, s.LinkDocumentEntity(ctx, "", a.ID), storage.ErrInvalidInput)
}

func TestOverview(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	ov, err := s.Overview(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ov.IsEmpty())

	seedServing(t, s)
	ov, err = s.Overview(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ov.IsEmpty())
	assert.Equal(t, 1, ov.DocumentCount)
	assert.Equal(t, 1, ov.EntityCounts[types.EntitySkill])
	assert.Equal(t, []string{"Target Practice"}, ov.Examples[types.EntityDrill])
	assert.Equal(t, []string{"Serve Mechanics"}, ov.SampleTitles)
}

func TestNewGraphStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rallygraph.db")
	s, err := NewGraphStore(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	// Reopening applies the idempotent schema again.
	s, err = NewGraphStore(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"/tmp/rg.db", "/tmp/rg.db"},
		{"file:/tmp/rg.db?cache=shared", "/tmp/rg.db"},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn), "dsn %q", tt.dsn)
	}
}

func TestEmbeddingRoundTripAndCosine(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := decodeEmbedding(encodeEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)

	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 0}))
}
