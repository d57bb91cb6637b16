package ingest

import (
	"strings"

	"github.com/scrypster/rallygraph/internal/analyzer"
	"github.com/scrypster/rallygraph/pkg/types"
)

// relationRules maps (source type, target type) to the edge inferred when
// both occur in one sentence. Pairs not listed get no edge.
var relationRules = map[[2]types.EntityType]types.RelationType{
	{types.EntityDrill, types.EntitySkill}:         types.RelDevelops,
	{types.EntitySkill, types.EntitySkill}:         types.RelRequires,
	{types.EntityDrill, types.EntityVisualElement}: types.RelFocusesOn,
	{types.EntityFramework, types.EntityDrill}:     types.RelInforms,
	{types.EntityPracticePlan, types.EntityDrill}:  types.RelIncludes,
}

// EntityRef identifies an extracted entity by display name and type.
type EntityRef struct {
	Name string
	Type types.EntityType
}

func (r EntityRef) key() string {
	return types.NormalizeKey(r.Name) + "\x00" + string(r.Type)
}

// Edge is an inferred relationship between two extracted entities.
// Sentences counts the sentences supporting it.
type Edge struct {
	From      EntityRef
	To        EntityRef
	Type      types.RelationType
	Sentences int
}

// Strength maps supporting sentences to [0.5, 1].
func (e Edge) Strength() float64 {
	return min(1.0, 0.5+0.1*float64(e.Sentences-1))
}

// Extraction is the graph content found in one document.
type Extraction struct {
	Entities []EntityRef // first occurrence order
	Edges    []Edge      // first inference order
}

// Extractor finds vocabulary entities and infers typed edges between them.
type Extractor struct {
	gazetteer *analyzer.Gazetteer
}

// NewExtractor creates an Extractor over the built-in vocabulary.
func NewExtractor() *Extractor {
	return &Extractor{gazetteer: analyzer.NewGazetteer()}
}

// Extract scans pf sentence by sentence. Within a sentence, entities of
// the two types of a rule yield an edge in the rule's direction; two skills
// yield REQUIRES from the earlier mention to the later one. A declared
// subject entity co-occurs with every sentence.
func (x *Extractor) Extract(pf *ParsedFile) *Extraction {
	out := &Extraction{}
	seen := map[string]bool{}
	edgeIdx := map[string]int{}

	add := func(ref EntityRef) {
		if !seen[ref.key()] {
			seen[ref.key()] = true
			out.Entities = append(out.Entities, ref)
		}
	}

	var subject *EntityRef
	if pf.Subject != "" {
		subject = &EntityRef{Name: pf.Title, Type: pf.Subject}
		add(*subject)
	}

	for _, sentence := range SplitSentences(pf.Content) {
		var refs []EntityRef
		inSentence := map[string]bool{}
		if subject != nil {
			refs = append(refs, *subject)
			inSentence[subject.key()] = true
		}
		for _, m := range x.gazetteer.Match(sentence) {
			ref := EntityRef{Name: strings.ToLower(m.Text), Type: types.EntityType(m.Label)}
			if inSentence[ref.key()] {
				continue
			}
			inSentence[ref.key()] = true
			refs = append(refs, ref)
			add(ref)
		}

		counted := map[string]bool{}
		for i := range refs {
			for j := i + 1; j < len(refs); j++ {
				edge, ok := infer(refs[i], refs[j])
				if !ok {
					continue
				}
				k := edge.From.key() + "\x00" + string(edge.Type) + "\x00" + edge.To.key()
				if counted[k] {
					continue
				}
				counted[k] = true
				if idx, ok := edgeIdx[k]; ok {
					out.Edges[idx].Sentences++
					continue
				}
				edge.Sentences = 1
				edgeIdx[k] = len(out.Edges)
				out.Edges = append(out.Edges, edge)
			}
		}
	}
	return out
}

// infer applies relationRules to a and b, where a occurs first.
func infer(a, b EntityRef) (Edge, bool) {
	if a.key() == b.key() {
		return Edge{}, false
	}
	if rel, ok := relationRules[[2]types.EntityType{a.Type, b.Type}]; ok {
		return Edge{From: a, To: b, Type: rel}, true
	}
	if rel, ok := relationRules[[2]types.EntityType{b.Type, a.Type}]; ok {
		return Edge{From: b, To: a, Type: rel}, true
	}
	return Edge{}, false
}
