package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/ingest"
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/internal/storage/sqlite"
	"github.com/scrypster/rallygraph/pkg/types"
)

type fixedEmbedder struct {
	vec []float32
	err error
}

func (e fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vec, e.err
}

func (e fixedEmbedder) GetModel() string { return "fixed" }

func newStore(t *testing.T) *sqlite.GraphStore {
	t.Helper()
	store, err := sqlite.NewGraphStore(":memory:", sqlite.Options{Dimension: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

const serveNote = `---
title: Serve Mechanics
---
# Serving

Target practice develops serving accuracy. A consistent toss keeps the serve repeatable.
`

func TestIngestFile_WritesGraph(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	in := ingest.New(store, ingest.Options{Embedder: fixedEmbedder{vec: []float32{1, 0, 0}}, Dimension: 3})

	res, err := in.IngestFile(ctx, []byte(serveNote), "skills/serve.md")
	require.NoError(t, err)
	assert.Equal(t, &ingest.DocumentResult{
		Title:         "Serve Mechanics",
		Chunks:        1,
		Embedded:      1,
		Entities:      2,
		Relationships: 1,
	}, res)

	docs, err := store.ContentSearch(ctx, []string{"toss"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Serve Mechanics", docs[0].Title)
	assert.Equal(t, []string{"serving", "target practice"}, docs[0].Entities)

	entities, err := store.EntitySearch(ctx, []string{"serving"}, 5)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, []storage.Neighbor{{
		Name:     "target practice",
		Type:     types.EntityDrill,
		Relation: types.RelDevelops,
		Outgoing: false,
	}}, entities[0].Neighbors)
	assert.Equal(t, []string{"Serve Mechanics"}, entities[0].Documents)

	chunks, err := store.VectorSearch(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Serve Mechanics", chunks[0].DocumentTitle)
	assert.InDelta(t, 1.0, chunks[0].Similarity, 1e-6)
}

func TestIngestFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	in := ingest.New(store, ingest.Options{})

	for i := 0; i < 2; i++ {
		_, err := in.IngestFile(ctx, []byte(serveNote), "serve.md")
		require.NoError(t, err)
	}

	entities, err := store.EntitySearch(ctx, []string{"serving"}, 5)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Len(t, entities[0].Neighbors, 1)
	assert.Equal(t, []string{"Serve Mechanics"}, entities[0].Documents)

	ov, err := store.Overview(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, ov.DocumentCount)
}

func TestIngestFile_EmbeddingFailureKeepsChunks(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	in := ingest.New(store, ingest.Options{Embedder: fixedEmbedder{err: errors.New("connection refused")}, Dimension: 3})

	res, err := in.IngestFile(ctx, []byte(serveNote), "serve.md")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Zero(t, res.Embedded)

	dims, err := store.EmbeddingDimensions(ctx)
	require.NoError(t, err)
	assert.Empty(t, dims)
}

func TestIngestFile_DimensionMismatch(t *testing.T) {
	store := newStore(t)
	in := ingest.New(store, ingest.Options{Embedder: fixedEmbedder{vec: []float32{1, 0}}, Dimension: 3})

	_, err := in.IngestFile(context.Background(), []byte(serveNote), "serve.md")
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	ov, err := store.Overview(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ov.IsEmpty(), "a rejected document writes nothing")
}

func TestIngestFile_EmptyBody(t *testing.T) {
	in := ingest.New(newStore(t), ingest.Options{})
	_, err := in.IngestFile(context.Background(), []byte("---\ntitle: Blank\n---\n\n"), "blank.md")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "skills/serve.md", serveNote)
	writeFile(t, dir, "plans/tuesday.md", "---\ntitle: Tuesday Session\ntype: PracticePlan\n---\nWarm up with pepper. Finish with queen of the court.\n")
	writeFile(t, dir, "notes.txt", "Pepper trains ball tracking.")
	writeFile(t, dir, "empty.md", "  \n")
	writeFile(t, dir, "broken.md", "---\ntitle: [oops\n---\nbody")
	writeFile(t, dir, ".obsidian/workspace.md", "Setting requires passing.")
	writeFile(t, dir, "court.png", "not text")

	store := newStore(t)
	in := ingest.New(store, ingest.Options{Concurrency: 2})

	res, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, res.FilesFound)
	assert.Equal(t, 3, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Equal(t, 1, res.FilesFailed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "broken.md")

	var titles []string
	for _, d := range res.Documents {
		titles = append(titles, d.Title)
	}
	assert.Equal(t, []string{"Serve Mechanics", "Tuesday Session", "notes"}, titles)

	entities, err := store.EntitySearch(context.Background(), []string{"tuesday session"}, 5)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, types.EntityPracticePlan, entities[0].Type)
	var included []string
	for _, n := range entities[0].Neighbors {
		assert.Equal(t, types.RelIncludes, n.Relation)
		assert.True(t, n.Outgoing)
		included = append(included, n.Name)
	}
	assert.Equal(t, []string{"pepper", "queen of the court"}, included)

	setting, err := store.EntitySearch(context.Background(), []string{"setting"}, 5)
	require.NoError(t, err)
	assert.Empty(t, setting, "hidden directories are skipped")
}

func TestIngestDir_Missing(t *testing.T) {
	in := ingest.New(newStore(t), ingest.Options{})
	_, err := in.IngestDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIngestDir_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "serve.md", serveNote)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := ingest.New(newStore(t), ingest.Options{})
	_, err := in.IngestDir(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
