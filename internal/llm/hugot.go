package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// HugotConfig configures the in-process sentence-transformer embedder.
type HugotConfig struct {
	// Model is the Hugging Face model name; names without an owner prefix fall
	// back to sentence-transformers/all-MiniLM-L6-v2 (384-d).
	Model string

	// ModelDir caches downloaded models (default: ./models).
	ModelDir string
}

// HugotEmbedder implements EmbeddingGenerator with a local ONNX model run by
// hugot's pure Go backend. The pipeline is created once and reused.
type HugotEmbedder struct {
	model    string
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.Mutex
}

// NewHugotEmbedder prepares the model (downloading it when missing) and
// builds the feature-extraction pipeline.
func NewHugotEmbedder(cfg HugotConfig) (*HugotEmbedder, error) {
	if !strings.Contains(cfg.Model, "/") {
		cfg.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}

	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "rallygraph-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &HugotEmbedder{
		model:    cfg.Model,
		session:  session,
		pipeline: pipeline,
	}, nil
}

// Embed runs the feature-extraction pipeline on text.
func (e *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return result.Embeddings[0], nil
}

// GetModel returns the model name.
func (e *HugotEmbedder) GetModel() string {
	return e.model
}

// Close releases the hugot session.
func (e *HugotEmbedder) Close() error {
	return e.session.Destroy()
}

// PrepareModel returns the local path of modelName under dir, downloading
// it on first use. onnxFile selects the ONNX file inside the repository
// when it holds several.
func PrepareModel(modelName, dir, onnxFile string) (string, error) {
	modelPath := filepath.Join(dir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	if onnxFile != "" {
		downloadOptions.OnnxFilePath = onnxFile
	}
	downloadedPath, err := hugot.DownloadModel(modelName, dir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", modelName, err)
	}
	return downloadedPath, nil
}

var _ EmbeddingGenerator = (*HugotEmbedder)(nil)
