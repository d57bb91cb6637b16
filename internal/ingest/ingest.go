// Package ingest populates the knowledge graph from Markdown and plain-text
// files: documents, sentence chunks with embeddings, vocabulary entities,
// CONTAINS links and typed relationships inferred from co-occurrence.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/internal/storage"
	"github.com/scrypster/rallygraph/pkg/types"
)

// Options configures an Ingester.
type Options struct {
	Embedder    llm.EmbeddingGenerator // nil stores chunks without embeddings
	Dimension   int                    // deployment embedding dimension D; zero disables the check
	ChunkChars  int                    // default DefaultChunkChars
	Concurrency int                    // files ingested at once (default 4)
	Logger      *zap.Logger
}

// DocumentResult describes one ingested document.
type DocumentResult struct {
	Title         string `json:"title"`
	Chunks        int    `json:"chunks"`
	Embedded      int    `json:"embedded"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
}

// Result summarizes a directory run.
type Result struct {
	FilesFound     int               `json:"files_found"`
	FilesProcessed int               `json:"files_processed"`
	FilesSkipped   int               `json:"files_skipped"`
	FilesFailed    int               `json:"files_failed"`
	Documents      []*DocumentResult `json:"documents"`
	Errors         []string          `json:"errors,omitempty"`
	Duration       time.Duration     `json:"duration_ms"`
}

// Ingester writes parsed files through a storage.GraphWriter. All writes
// are upserts, so re-ingesting a file replaces its chunks and leaves
// entities and edges unduplicated.
type Ingester struct {
	writer    storage.GraphWriter
	extractor *Extractor
	opts      Options
	logger    *zap.Logger
}

// New creates an Ingester.
func New(writer storage.GraphWriter, opts Options) *Ingester {
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = DefaultChunkChars
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		writer:    writer,
		extractor: NewExtractor(),
		opts:      opts,
		logger:    logger.With(zap.String("component", "ingest")),
	}
}

// IngestFile parses and stores one source file.
func (in *Ingester) IngestFile(ctx context.Context, content []byte, relativePath string) (*DocumentResult, error) {
	pf, err := ParseFile(content, relativePath)
	if err != nil {
		return nil, err
	}
	return in.Ingest(ctx, pf)
}

// Ingest stores pf: the document, its chunks, its entities with CONTAINS
// links, and inferred relationships. Embedding failures leave chunks
// without vectors; a vector of the wrong dimension fails the document.
func (in *Ingester) Ingest(ctx context.Context, pf *ParsedFile) (*DocumentResult, error) {
	if strings.TrimSpace(pf.Content) == "" {
		return nil, fmt.Errorf("ingest: %s has no content: %w", pf.RelativePath, storage.ErrInvalidInput)
	}

	chunks, embedded, err := in.chunks(ctx, pf)
	if err != nil {
		return nil, err
	}

	doc := &types.Document{Title: pf.Title, Content: pf.Content, Source: pf.RelativePath}
	if err := in.writer.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: store document: %w", err)
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}
	if err := in.writer.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("ingest: store chunks of %q: %w", doc.Title, err)
	}

	ex := in.extractor.Extract(pf)
	ids := make(map[string]string, len(ex.Entities))
	for _, ref := range ex.Entities {
		e := &types.Entity{Name: ref.Name, Type: ref.Type, Source: sourceFor(ref, pf)}
		if err := in.writer.UpsertEntity(ctx, e); err != nil {
			return nil, fmt.Errorf("ingest: store entity: %w", err)
		}
		ids[ref.key()] = e.ID
		if err := in.writer.LinkDocumentEntity(ctx, doc.ID, e.ID); err != nil {
			return nil, fmt.Errorf("ingest: link entity: %w", err)
		}
	}
	for _, edge := range ex.Edges {
		rel := &types.Relationship{
			FromID:   ids[edge.From.key()],
			ToID:     ids[edge.To.key()],
			Type:     edge.Type,
			Strength: edge.Strength(),
		}
		if err := in.writer.UpsertRelationship(ctx, rel); err != nil {
			return nil, fmt.Errorf("ingest: store relationship: %w", err)
		}
	}

	in.logger.Debug("document ingested",
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("entities", len(ex.Entities)),
		zap.Int("relationships", len(ex.Edges)))

	return &DocumentResult{
		Title:         doc.Title,
		Chunks:        len(chunks),
		Embedded:      embedded,
		Entities:      len(ex.Entities),
		Relationships: len(ex.Edges),
	}, nil
}

func sourceFor(ref EntityRef, pf *ParsedFile) string {
	if pf.Subject != "" && ref.Type == pf.Subject && ref.Name == pf.Title {
		return "frontmatter"
	}
	return "pattern-match"
}

// chunks splits pf and embeds each chunk when an embedder is configured.
func (in *Ingester) chunks(ctx context.Context, pf *ParsedFile) ([]types.Chunk, int, error) {
	texts := Chunk(pf.Content, in.opts.ChunkChars)
	chunks := make([]types.Chunk, len(texts))
	embedded := 0
	for i, text := range texts {
		chunks[i] = types.Chunk{Index: i, Text: text}
		if in.opts.Embedder == nil {
			continue
		}
		vec, err := in.opts.Embedder.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			in.logger.Warn("chunk embedding failed",
				zap.String("document", pf.Title), zap.Int("chunk", i), zap.Error(err))
			continue
		}
		if in.opts.Dimension > 0 && len(vec) != in.opts.Dimension {
			return nil, 0, fmt.Errorf("ingest: %s chunk %d: got %d dimensions, want %d: %w",
				pf.RelativePath, i, len(vec), in.opts.Dimension, storage.ErrDimensionMismatch)
		}
		chunks[i].Embedding = vec
		embedded++
	}
	return chunks, embedded, nil
}

// IngestDir ingests every .md, .markdown and .txt file under root, skipping
// hidden directories. Per-file failures are recorded in the result; the
// error is non-nil only when root cannot be walked or ctx ends.
func (in *Ingester) IngestDir(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	files, err := collectFiles(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", root, err)
	}

	result := &Result{FilesFound: len(files)}
	var mu sync.Mutex
	record := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)

			data, err := os.ReadFile(path)
			if err != nil {
				record(func() {
					result.FilesFailed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
				})
				return nil
			}
			if strings.TrimSpace(string(data)) == "" {
				record(func() { result.FilesSkipped++ })
				return nil
			}

			doc, err := in.IngestFile(gctx, data, rel)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				in.logger.Warn("file ingest failed", zap.String("path", rel), zap.Error(err))
				record(func() {
					result.FilesFailed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
				})
				return nil
			}
			record(func() {
				result.FilesProcessed++
				result.Documents = append(result.Documents, doc)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	slices.SortFunc(result.Documents, func(a, b *DocumentResult) int { return strings.Compare(a.Title, b.Title) })
	slices.Sort(result.Errors)
	result.Duration = time.Since(start)
	in.logger.Info("ingest complete",
		zap.Int("files_found", result.FilesFound),
		zap.Int("files_processed", result.FilesProcessed),
		zap.Int("files_failed", result.FilesFailed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// collectFiles returns the source files under root in lexical order.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isSource(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
