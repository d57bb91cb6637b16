package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must stay unchanged before it is
// re-ingested.
const DefaultSettle = 250 * time.Millisecond

// WatchFunc receives the outcome of each re-ingested file.
type WatchFunc func(relativePath string, doc *DocumentResult, err error)

// Watch re-ingests source files under root whenever they are created or
// written, until ctx ends. Directories created later are watched too.
// Existing files are not ingested; run IngestDir first for that.
func (in *Ingester) Watch(ctx context.Context, root string, settle time.Duration, fn WatchFunc) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if err := addTree(w, root); err != nil {
		return err
	}
	in.logger.Info("watching for changes", zap.String("dir", root))

	pending := map[string]time.Time{}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(evt.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if !strings.HasPrefix(info.Name(), ".") {
					if err := addTree(w, evt.Name); err != nil {
						in.logger.Warn("failed to watch directory", zap.String("dir", evt.Name), zap.Error(err))
					}
				}
				continue
			}
			if isSource(evt.Name) {
				pending[evt.Name] = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("watcher error", zap.Error(err))

		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < settle {
					continue
				}
				delete(pending, path)
				rel, _ := filepath.Rel(root, path)
				doc, err := in.ingestPath(ctx, path, rel)
				if err != nil {
					in.logger.Warn("file ingest failed", zap.String("path", rel), zap.Error(err))
				}
				if fn != nil {
					fn(rel, doc, err)
				}
			}
		}
	}
}

func (in *Ingester) ingestPath(ctx context.Context, path, rel string) (*DocumentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return in.IngestFile(ctx, data, rel)
}

// addTree watches dir and its non-hidden subdirectories.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func isSource(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}
