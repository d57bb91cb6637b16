package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// fakeReader serves canned hits; a non-nil func field overrides the method.
type fakeReader struct {
	docs     []storage.DocumentHit
	entities []storage.EntityHit
	chunks   []storage.ChunkHit

	contentFn func(ctx context.Context) ([]storage.DocumentHit, error)
	entityFn  func(ctx context.Context) ([]storage.EntityHit, error)
	vectorFn  func(ctx context.Context) ([]storage.ChunkHit, error)
}

func (f *fakeReader) ContentSearch(ctx context.Context, terms []string, limit int) ([]storage.DocumentHit, error) {
	if f.contentFn != nil {
		return f.contentFn(ctx)
	}
	return f.docs, nil
}

func (f *fakeReader) EntitySearch(ctx context.Context, terms []string, limit int) ([]storage.EntityHit, error) {
	if f.entityFn != nil {
		return f.entityFn(ctx)
	}
	return f.entities, nil
}

func (f *fakeReader) VectorSearch(ctx context.Context, query []float32, limit int) ([]storage.ChunkHit, error) {
	if f.vectorFn != nil {
		return f.vectorFn(ctx)
	}
	return f.chunks, nil
}

func (f *fakeReader) Overview(ctx context.Context, sampleSize int) (*types.Overview, error) {
	return &types.Overview{}, nil
}

// blockUntilDone simulates a hung backend call.
func blockUntilDone[T any](ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-time.After(10 * time.Second):
		return zero, nil
	}
}

type fakeGate struct {
	mu       sync.Mutex
	closed   map[availability.Subsystem]bool
	reported map[availability.Subsystem][]error
}

func newFakeGate(closed ...availability.Subsystem) *fakeGate {
	g := &fakeGate{closed: map[availability.Subsystem]bool{}, reported: map[availability.Subsystem][]error{}}
	for _, s := range closed {
		g.closed[s] = true
	}
	return g
}

func (g *fakeGate) Check(ctx context.Context, s availability.Subsystem) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed[s]
}

func (g *fakeGate) Report(s availability.Subsystem, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reported[s] = append(g.reported[s], err)
}

func (g *fakeGate) reports(s availability.Subsystem) []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reported[s]
}

// servingReader is a store holding one document, one skill and one drill.
func servingReader() *fakeReader {
	return &fakeReader{
		docs: []storage.DocumentHit{{
			Title:    "Serve Mechanics",
			Content:  "Serving starts with a consistent toss.",
			Entities: []string{"serving"},
			Overlap:  1,
		}},
		entities: []storage.EntityHit{{
			Name: "serving",
			Type: types.EntitySkill,
			Neighbors: []storage.Neighbor{
				{Name: "Target Practice", Type: types.EntityDrill, Relation: types.RelDevelops, Outgoing: false},
			},
			Documents: []string{"Serve Mechanics"},
		}},
		chunks: []storage.ChunkHit{
			{DocumentTitle: "Serve Mechanics", ChunkIndex: 0, Text: "Serving starts with a consistent toss.", Similarity: 0.9},
			{DocumentTitle: "Passing Basics", ChunkIndex: 1, Text: "Platform angle controls the pass.", Similarity: 0.7},
		},
	}
}
