package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/rallygraph/pkg/types"
)

func TestAssemble_Empty(t *testing.T) {
	ctx := Assemble(nil, AssemblerOptions{})
	assert.True(t, ctx.IsEmpty())
	assert.Empty(t, ctx.Sections)
	assert.Equal(t, "", ctx.Text())
}

func TestAssemble_SectionOrder(t *testing.T) {
	results := []Result{
		NewEntityMatch("Ball Tracking", types.EntityVisualElement, nil, nil, 1),
		NewRelationshipMatch(types.RelDevelops, "Target Practice", "serving", 0.7),
		NewEntityMatch("serving", types.EntitySkill, []RelatedNode{
			{Name: "Target Practice", Type: types.EntityDrill, Relation: types.RelDevelops},
			{Name: "toss", Type: types.EntitySkill, Relation: types.RelRequires, Outgoing: true},
		}, []string{"Serve Mechanics"}, 1),
		NewDocumentMatch(StrategyContent, "Serve Mechanics", "Serving starts with a consistent toss.", []string{"serving", "toss"}, 0.7),
	}

	ctx := Assemble(results, AssemblerOptions{})
	text := ctx.Text()

	require.Len(t, ctx.Sections, 4)
	headers := []string{"## Documents", "## Skills & Entities", "## Relationships", "## Visual & Domain Concepts"}
	last := -1
	for _, h := range headers {
		idx := strings.Index(text, h)
		require.GreaterOrEqual(t, idx, 0, h)
		assert.Greater(t, idx, last, "%s out of order", h)
		last = idx
	}

	assert.Contains(t, text, "### Serve Mechanics\nServing starts with a consistent toss.\nRelated entities: serving, toss")
	assert.Contains(t, text, "### serving (Skill)")
	assert.Contains(t, text, "Target Practice (Drill) DEVELOPS this")
	assert.Contains(t, text, "REQUIRES toss (Skill)")
	assert.Contains(t, text, "Mentioned in: Serve Mechanics")
	assert.Contains(t, text, "- Target Practice DEVELOPS serving")
	assert.Contains(t, text, "### Ball Tracking (VisualElement)")
}

func TestAssemble_BoundsRelatedItems(t *testing.T) {
	related := []string{"a", "b", "c", "d", "e", "f", "g"}
	ctx := Assemble([]Result{NewDocumentMatch(StrategyContent, "Doc", "text", related, 0.5)}, AssemblerOptions{RelatedLimit: 3})
	assert.Contains(t, ctx.Text(), "Related entities: a, b, c and 4 more")
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "serve", 10, "serve"},
		{"exact", "serve", 5, "serve"},
		{"truncated", "serve receive", 6, "serve..."},
		{"multibyte", "día de saque", 3, "día..."},
		{"trimmed", "  toss  ", 10, "toss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excerpt(tt.in, tt.limit))
		})
	}
}

func TestExcerpt_DefaultBudget(t *testing.T) {
	long := strings.Repeat("x", 800)
	ctx := Assemble([]Result{NewDocumentMatch(StrategyContent, "Long", long, nil, 0.5)}, AssemblerOptions{})
	assert.Contains(t, ctx.Text(), strings.Repeat("x", 500)+"...")
	assert.NotContains(t, ctx.Text(), strings.Repeat("x", 501))
}

func TestJoinLimited(t *testing.T) {
	assert.Equal(t, "", JoinLimited(nil, 5))
	assert.Equal(t, "a, b", JoinLimited([]string{"a", "b"}, 5))
	assert.Equal(t, "a and 2 more", JoinLimited([]string{"a", "b", "c"}, 1))
}
