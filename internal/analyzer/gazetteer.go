package analyzer

import (
	"regexp"
	"sort"

	"github.com/scrypster/rallygraph/pkg/types"
)

// Entity sources.
const (
	SourcePatternMatch = "pattern-match"
	SourceNER          = "named-entity-recognition"
)

// Entity is a term found in query or document text.
type Entity struct {
	Text   string `json:"text"`   // span as written in the text
	Label  string `json:"label"`  // entity type or NER label
	Source string `json:"source"` // SourcePatternMatch or SourceNER
}

// domainTerms is the volleyball coaching vocabulary, per entity type.
var domainTerms = []struct {
	label types.EntityType
	terms []string
}{
	{types.EntitySkill, []string{
		"passing", "setting", "hitting", "attacking", "blocking", "serving",
		"defense", "digging", "jump serve", "float serve", "cut shot",
		"line shot", "pokey", "hand setting", "bump setting", "split blocking",
		"reading",
	}},
	{types.EntityDrill, []string{
		"pepper", "queen of the court", "mini-game", "scrimmage", "wash drill",
		"target practice", "serve receive", "block touch", "transition drill",
		"side-out drill", "defensive drill", "passing progression",
	}},
	{types.EntityVisualElement, []string{
		"ball tracking", "peripheral vision", "trajectory prediction",
		"opponent reading", "visual focus", "depth perception",
		"target awareness", "spatial recognition", "anticipation",
		"visual scanning", "court awareness", "environmental adaptation",
		"visual-motor integration",
	}},
	{types.EntityFramework, []string{
		"visual-motor integration", "constraint-led approach",
		"skill acquisition", "motor learning",
	}},
	{types.EntityEquipment, []string{
		"volleyball", "court", "net", "antenna", "targets", "cones",
		"agility ladder", "platform", "vision goggles", "resistance bands",
	}},
}

type gazetteerEntry struct {
	label types.EntityType
	re    *regexp.Regexp
}

// Gazetteer matches a fixed vocabulary case-insensitively on word
// boundaries. It is immutable and safe for concurrent use.
type Gazetteer struct {
	entries []gazetteerEntry
}

// NewGazetteer compiles the built-in volleyball vocabulary.
func NewGazetteer() *Gazetteer {
	g := &Gazetteer{}
	for _, group := range domainTerms {
		for _, term := range group.terms {
			g.entries = append(g.entries, gazetteerEntry{
				label: group.label,
				re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
			})
		}
	}
	return g
}

// Match returns every vocabulary term occurring in text, once per term and
// type, ordered by first occurrence. Overlapping terms are all returned.
func (g *Gazetteer) Match(text string) []Entity {
	type hit struct {
		pos, order int
		entity     Entity
	}
	var hits []hit
	for i, e := range g.entries {
		loc := e.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		hits = append(hits, hit{
			pos:   loc[0],
			order: i,
			entity: Entity{
				Text:   text[loc[0]:loc[1]],
				Label:  string(e.label),
				Source: SourcePatternMatch,
			},
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].order < hits[j].order
	})

	out := make([]Entity, len(hits))
	for i, h := range hits {
		out[i] = h.entity
	}
	return out
}
