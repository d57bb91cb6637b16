package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrLazyClosed is returned by a LazyEmbedder after Close.
var ErrLazyClosed = errors.New("embedder closed")

// LazyEmbedder builds its EmbeddingGenerator on the first Embed call. A
// failed build is not cached; the next call tries again.
type LazyEmbedder struct {
	model string
	build func() (EmbeddingGenerator, error)

	mu     sync.Mutex
	gen    EmbeddingGenerator
	closed bool
}

// NewLazyEmbedder returns an embedder for model that calls build on first use.
func NewLazyEmbedder(model string, build func() (EmbeddingGenerator, error)) *LazyEmbedder {
	return &LazyEmbedder{model: model, build: build}
}

func (l *LazyEmbedder) get() (EmbeddingGenerator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLazyClosed
	}
	if l.gen != nil {
		return l.gen, nil
	}
	gen, err := l.build()
	if err != nil {
		return nil, err
	}
	l.gen = gen
	return gen, nil
}

// Embed implements EmbeddingGenerator.
func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := l.get()
	if err != nil {
		return nil, err
	}
	return gen.Embed(ctx, text)
}

// GetModel returns the configured model name without building the embedder.
func (l *LazyEmbedder) GetModel() string {
	return l.model
}

// Loaded reports whether the underlying embedder has been built.
func (l *LazyEmbedder) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen != nil
}

// Close releases the underlying embedder if it was built.
func (l *LazyEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if c, ok := l.gen.(interface{ Close() error }); ok {
		l.gen = nil
		return c.Close()
	}
	l.gen = nil
	return nil
}

var _ EmbeddingGenerator = (*LazyEmbedder)(nil)
