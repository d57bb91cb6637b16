package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/scrypster/rallygraph/internal/config"
	"github.com/scrypster/rallygraph/internal/llm"
)

// Recognizer is a generic named-entity recognizer.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// HeuristicLabel is the label of entities found by capitalization.
const HeuristicLabel = "ENTITY"

// questionWords open most queries and are never entities on their own.
var questionWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"which": true, "who": true, "can": true, "could": true, "should": true,
	"tell": true, "show": true, "list": true, "give": true, "is": true,
	"are": true, "do": true, "does": true, "i": true, "the": true, "a": true,
}

// HeuristicRecognizer treats every capitalized token of two or more letters
// as an entity.
type HeuristicRecognizer struct{}

// Recognize implements Recognizer.
func (HeuristicRecognizer) Recognize(_ context.Context, text string) ([]Entity, error) {
	var out []Entity
	seen := map[string]bool{}
	for _, field := range strings.Fields(text) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		})
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		first, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(first) || questionWords[strings.ToLower(word)] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, Entity{Text: word, Label: HeuristicLabel, Source: SourceNER})
	}
	return out, nil
}

// HugotRecognizer runs a token-classification model (distilbert-NER by
// default) through hugot's pure Go backend.
type HugotRecognizer struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
	mu       sync.Mutex
}

// NewHugotRecognizer prepares the model (downloading it when missing) and
// builds the NER pipeline.
func NewHugotRecognizer(model, modelDir string) (*HugotRecognizer, error) {
	if model == "" {
		model = "KnightsAnalytics/distilbert-NER"
	}
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath, err := llm.PrepareModel(model, modelDir, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	cfg := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "rallygraph-ner",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	pipeline, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}
	return &HugotRecognizer{session: session, pipeline: pipeline}, nil
}

// Recognize implements Recognizer.
func (r *HugotRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	result, err := r.pipeline.RunPipeline([]string{text})
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var out []Entity
	for _, e := range result.Entities[0] {
		word := strings.TrimSpace(e.Word)
		if word == "" {
			continue
		}
		out = append(out, Entity{Text: word, Label: normalizeLabel(e.Entity), Source: SourceNER})
	}
	return out, nil
}

// Close releases the hugot session.
func (r *HugotRecognizer) Close() error {
	return r.session.Destroy()
}

// normalizeLabel removes B- and I- prefixes from NER labels.
func normalizeLabel(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// NewRecognizer builds the recognizer selected by cfg.NER.Backend. The hugot
// model is loaded on the first Recognize call.
func NewRecognizer(cfg config.NERConfig) (Recognizer, error) {
	switch cfg.Backend {
	case "heuristic", "":
		return HeuristicRecognizer{}, nil
	case "hugot":
		return &LazyRecognizer{build: func() (Recognizer, error) {
			r, err := NewHugotRecognizer(cfg.Model, cfg.ModelDir)
			if err != nil {
				return nil, err
			}
			return r, nil
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported NER backend: %q", cfg.Backend)
	}
}

// LazyRecognizer builds its Recognizer on the first Recognize call. A failed
// build is retried on the next call.
type LazyRecognizer struct {
	build func() (Recognizer, error)

	mu  sync.Mutex
	rec Recognizer
}

func (l *LazyRecognizer) get() (Recognizer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rec != nil {
		return l.rec, nil
	}
	rec, err := l.build()
	if err != nil {
		return nil, err
	}
	l.rec = rec
	return rec, nil
}

// Recognize implements Recognizer.
func (l *LazyRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	rec, err := l.get()
	if err != nil {
		return nil, err
	}
	return rec.Recognize(ctx, text)
}

// Close releases the underlying recognizer if it was built.
func (l *LazyRecognizer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.rec.(interface{ Close() error })
	l.rec = nil
	if ok {
		return c.Close()
	}
	return nil
}
