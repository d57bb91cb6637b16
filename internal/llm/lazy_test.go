package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/config"
)

type stubEmbedder struct {
	closed bool
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) GetModel() string { return "stub" }

func (s *stubEmbedder) Close() error {
	s.closed = true
	return nil
}

func TestLazyEmbedder_BuildsOnFirstEmbed(t *testing.T) {
	builds := 0
	stub := &stubEmbedder{}
	lazy := NewLazyEmbedder("all-MiniLM-L6-v2", func() (EmbeddingGenerator, error) {
		builds++
		return stub, nil
	})

	assert.Equal(t, "all-MiniLM-L6-v2", lazy.GetModel())
	assert.False(t, lazy.Loaded())
	assert.Equal(t, 0, builds)

	for i := 0; i < 3; i++ {
		vec, err := lazy.Embed(context.Background(), "serving")
		require.NoError(t, err)
		assert.Len(t, vec, 3)
	}
	assert.Equal(t, 1, builds)
	assert.True(t, lazy.Loaded())

	require.NoError(t, lazy.Close())
	assert.True(t, stub.closed)
	_, err := lazy.Embed(context.Background(), "serving")
	assert.ErrorIs(t, err, ErrLazyClosed)
}

func TestLazyEmbedder_RetriesFailedBuild(t *testing.T) {
	fail := true
	lazy := NewLazyEmbedder("m", func() (EmbeddingGenerator, error) {
		if fail {
			return nil, errors.New("model download failed")
		}
		return &stubEmbedder{}, nil
	})

	_, err := lazy.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, lazy.Loaded())

	fail = false
	_, err = lazy.Embed(context.Background(), "q")
	require.NoError(t, err)
}

func TestLazyEmbedder_CloseBeforeUse(t *testing.T) {
	lazy := NewLazyEmbedder("m", func() (EmbeddingGenerator, error) {
		t.Fatal("build must not run")
		return nil, nil
	})
	assert.NoError(t, lazy.Close())
}

func TestFactory_HugotIsLazy(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = "hugot"
	cfg.Embedding.ModelDir = t.TempDir()

	emb, err := NewEmbeddingGenerator(cfg, nil)
	require.NoError(t, err)
	lazy, ok := emb.(*LazyEmbedder)
	require.True(t, ok)
	assert.False(t, lazy.Loaded(), "no model is loaded at construction")
	assert.NoError(t, lazy.Close())
}
