package ingest_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/ingest"
)

type watched struct {
	rel string
	doc *ingest.DocumentResult
	err error
}

func TestWatch_ReingestsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t)
	in := ingest.New(store, ingest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan watched, 8)
	stopped := make(chan error, 1)
	go func() {
		stopped <- in.Watch(ctx, dir, 50*time.Millisecond, func(rel string, doc *ingest.DocumentResult, err error) {
			results <- watched{rel, doc, err}
		})
	}()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "ignored.png", "binary")
	writeFile(t, dir, "serve.md", serveNote)

	select {
	case got := <-results:
		require.NoError(t, got.err)
		assert.Equal(t, "serve.md", got.rel)
		assert.Equal(t, "Serve Mechanics", got.doc.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("file was not ingested")
	}

	hits, err := store.EntitySearch(context.Background(), []string{"serving"}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	in := ingest.New(newStore(t), ingest.Options{})
	err := in.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), 0, nil)
	assert.Error(t, err)
}
