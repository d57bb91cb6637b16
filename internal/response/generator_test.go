package response

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/internal/availability"
	"github.com/scrypster/rallygraph/internal/llm"
	"github.com/scrypster/rallygraph/pkg/types"
)

type recordingLLM struct {
	reqs []llm.GenerateRequest
	err  error
}

func (r *recordingLLM) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return "", r.err
	}
	return "answer", nil
}

func (r *recordingLLM) GetModel() string { return "test-model" }

type stubOverview struct {
	ov  *types.Overview
	err error
}

func (s stubOverview) Overview(ctx context.Context, sampleSize int) (*types.Overview, error) {
	return s.ov, s.err
}

type stubGate struct {
	closed   map[availability.Subsystem]bool
	reported []error
}

func (g *stubGate) Check(ctx context.Context, s availability.Subsystem) bool { return !g.closed[s] }
func (g *stubGate) Report(s availability.Subsystem, err error)               { g.reported = append(g.reported, err) }

func populated() *types.Overview {
	return &types.Overview{
		EntityCounts:  map[types.EntityType]int{types.EntitySkill: 2, types.EntityDrill: 1},
		Examples:      map[types.EntityType][]string{types.EntitySkill: {"passing", "serving"}, types.EntityDrill: {"Target Practice"}},
		DocumentCount: 1,
		SampleTitles:  []string{"Serve Mechanics"},
	}
}

func analysis(query string, intents ...analyzer.Intent) *analyzer.Analysis {
	return &analyzer.Analysis{Query: query, SearchTerms: []string{query}, Intents: intents}
}

func TestGenerate_Branches(t *testing.T) {
	tests := []struct {
		name    string
		an      *analyzer.Analysis
		context string
		store   OverviewSource
		gate    *stubGate
		want    Branch
		prompt  string
	}{
		{
			name:    "context available",
			an:      analysis("serving"),
			context: "## Documents\n### Serve Mechanics",
			store:   stubOverview{ov: populated()},
			want:    BranchContext,
			prompt:  "## Documents",
		},
		{
			name:    "context wins over overview intent",
			an:      analysis("what is serving", analyzer.IntentOverview),
			context: "## Documents",
			store:   stubOverview{ov: populated()},
			want:    BranchContext,
			prompt:  "using only the context provided",
		},
		{
			name:   "overview",
			an:     analysis("what topics are available", analyzer.IntentOverview),
			store:  stubOverview{ov: populated()},
			want:   BranchOverview,
			prompt: "- Skill (2): passing, serving",
		},
		{
			name:   "overview of empty store",
			an:     analysis("list topics", analyzer.IntentOverview),
			store:  stubOverview{ov: &types.Overview{}},
			want:   BranchEmptyStore,
			prompt: "appears to be empty",
		},
		{
			name:   "overview query fails",
			an:     analysis("what topics are available", analyzer.IntentOverview),
			store:  stubOverview{err: errors.New("connection refused")},
			want:   BranchEmptyStore,
			prompt: "Documents need to be uploaded first",
		},
		{
			name:   "store unavailable",
			an:     analysis("what topics are available", analyzer.IntentOverview),
			store:  stubOverview{ov: populated()},
			gate:   &stubGate{closed: map[availability.Subsystem]bool{availability.GraphStore: true}},
			want:   BranchEmptyStore,
			prompt: "appears to be empty",
		},
		{
			name:   "no match",
			an:     analysis("tell a joke"),
			store:  stubOverview{ov: populated()},
			want:   BranchNoMatch,
			prompt: "rephrase",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &recordingLLM{}
			opts := Options{}
			if tt.gate != nil {
				opts.Gate = tt.gate
			}
			resp := New(model, tt.store, opts).Generate(context.Background(), tt.an, tt.context)

			assert.Equal(t, tt.want, resp.Branch)
			assert.Equal(t, "answer", resp.Text)
			assert.False(t, resp.Failed)
			require.Len(t, model.reqs, 1)
			assert.Equal(t, SystemPersona, model.reqs[0].SystemPrompt)
			assert.Contains(t, model.reqs[0].Prompt, tt.prompt)
			assert.Equal(t, 1000, model.reqs[0].MaxTokens)
			assert.InDelta(t, 0.7, model.reqs[0].Temperature, 1e-9)
		})
	}
}

func TestGenerate_NilStoreFallsToEmptyStore(t *testing.T) {
	resp := New(&recordingLLM{}, nil, Options{}).
		Generate(context.Background(), analysis("show me drills", analyzer.IntentOverview), "")
	assert.Equal(t, BranchEmptyStore, resp.Branch)
}

func TestGenerate_FailureReturnsApology(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		reported bool
	}{
		{"single failure", errors.New("502 bad gateway"), false},
		{"open breaker", fmt.Errorf("ollama: %w", llm.ErrCircuitOpen), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &stubGate{}
			resp := New(&recordingLLM{err: tt.err}, nil, Options{Gate: gate}).
				Generate(context.Background(), analysis("serving"), "## Documents")

			assert.Equal(t, Apology, resp.Text)
			assert.Equal(t, BranchContext, resp.Branch)
			assert.True(t, resp.Failed)
			if tt.reported {
				require.Len(t, gate.reported, 1)
				assert.Equal(t, availability.ConnectivityFault, availability.KindOf(gate.reported[0]))
			} else {
				assert.Empty(t, gate.reported)
			}
		})
	}
}

func TestGenerate_UsesConfiguredSampling(t *testing.T) {
	model := &recordingLLM{}
	New(model, nil, Options{MaxTokens: 300, Temperature: 0.2}).
		Generate(context.Background(), analysis("serving"), "ctx")

	require.Len(t, model.reqs, 1)
	assert.Equal(t, 300, model.reqs[0].MaxTokens)
	assert.InDelta(t, 0.2, model.reqs[0].Temperature, 1e-9)
}

func TestFormatOverview(t *testing.T) {
	got := FormatOverview(populated())
	assert.Equal(t, "Documents: 1 total\nSample documents:\n- Serve Mechanics\n\nTopics and concepts found:\n- Drill (1): Target Practice\n- Skill (2): passing, serving", got)
}
