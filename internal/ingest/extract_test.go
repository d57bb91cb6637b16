package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/rallygraph/pkg/types"
)

func TestExtract_SentenceCooccurrence(t *testing.T) {
	pf := &ParsedFile{
		Title:   "Serving Notes",
		Content: "Target practice develops serving accuracy. Setting requires passing.",
	}
	ex := NewExtractor().Extract(pf)

	assert.Equal(t, []EntityRef{
		{Name: "target practice", Type: types.EntityDrill},
		{Name: "serving", Type: types.EntitySkill},
		{Name: "setting", Type: types.EntitySkill},
		{Name: "passing", Type: types.EntitySkill},
	}, ex.Entities)

	assert.Equal(t, []Edge{
		{
			From:      EntityRef{Name: "target practice", Type: types.EntityDrill},
			To:        EntityRef{Name: "serving", Type: types.EntitySkill},
			Type:      types.RelDevelops,
			Sentences: 1,
		},
		{
			From:      EntityRef{Name: "setting", Type: types.EntitySkill},
			To:        EntityRef{Name: "passing", Type: types.EntitySkill},
			Type:      types.RelRequires,
			Sentences: 1,
		},
	}, ex.Edges, "entities in different sentences are not related")
}

func TestExtract_RuleDirection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		from    string
		rel     types.RelationType
		to      string
	}{
		{"drill to skill regardless of order", "Serving improves through target practice.", "target practice", types.RelDevelops, "serving"},
		{"drill to visual element", "Pepper trains ball tracking.", "pepper", types.RelFocusesOn, "ball tracking"},
		{"framework to drill", "The constraint-led approach shapes the wash drill.", "constraint-led approach", types.RelInforms, "wash drill"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewExtractor().Extract(&ParsedFile{Content: tt.content})
			if assert.Len(t, ex.Edges, 1) {
				assert.Equal(t, tt.from, ex.Edges[0].From.Name)
				assert.Equal(t, tt.rel, ex.Edges[0].Type)
				assert.Equal(t, tt.to, ex.Edges[0].To.Name)
			}
		})
	}
}

func TestExtract_RepeatedSentencesStrengthen(t *testing.T) {
	ex := NewExtractor().Extract(&ParsedFile{
		Content: "Pepper builds passing. Pepper also sharpens passing and passing again.",
	})
	if assert.Len(t, ex.Edges, 1) {
		assert.Equal(t, 2, ex.Edges[0].Sentences)
		assert.InDelta(t, 0.6, ex.Edges[0].Strength(), 1e-9)
	}
	assert.InDelta(t, 1.0, Edge{Sentences: 12}.Strength(), 1e-9)
}

func TestExtract_SubjectEntity(t *testing.T) {
	pf := &ParsedFile{
		Title:   "Tuesday Session",
		Subject: types.EntityPracticePlan,
		Content: "Warm up with pepper. Finish with queen of the court.",
	}
	ex := NewExtractor().Extract(pf)

	plan := EntityRef{Name: "Tuesday Session", Type: types.EntityPracticePlan}
	assert.Equal(t, []EntityRef{
		plan,
		{Name: "pepper", Type: types.EntityDrill},
		{Name: "queen of the court", Type: types.EntityDrill},
		{Name: "court", Type: types.EntityEquipment},
	}, ex.Entities)

	var includes []string
	for _, e := range ex.Edges {
		assert.Equal(t, plan, e.From)
		assert.Equal(t, types.RelIncludes, e.Type)
		includes = append(includes, e.To.Name)
	}
	assert.Equal(t, []string{"pepper", "queen of the court"}, includes)
}

func TestExtract_NoVocabulary(t *testing.T) {
	ex := NewExtractor().Extract(&ParsedFile{Content: "Bring water and arrive early."})
	assert.Empty(t, ex.Entities)
	assert.Empty(t, ex.Edges)
}
