package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/scrypster/rallygraph/pkg/types"
)

// EdgeFilter selects typed entity-to-entity relationships. Empty fields
// match anything; FromKey and ToKey are compared with normalized names.
type EdgeFilter struct {
	Relation types.RelationType
	FromType types.EntityType
	ToType   types.EntityType
	FromKey  string
	ToKey    string
}

// Edge is one relationship with both endpoints resolved.
type Edge struct {
	FromName string
	FromType types.EntityType
	ToName   string
	ToType   types.EntityType
	Relation types.RelationType
	Strength float64
}

// EdgeReader lists relationships; backends order rows by source name, then
// target name.
type EdgeReader interface {
	Edges(ctx context.Context, filter EdgeFilter) ([]Edge, error)
}

// TemplateRunner executes catalog queries by category and name.
type TemplateRunner interface {
	RunTemplate(ctx context.Context, category, name string, params map[string]string) ([]TemplateRow, error)
}

// TemplateRow is one result row of a template query.
type TemplateRow map[string]interface{}

// Template describes one named query of the catalog.
type Template struct {
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params,omitempty"`

	run func(ctx context.Context, r EdgeReader, params map[string]string) ([]TemplateRow, error)
}

// StrengthLink is a weighted edge endpoint in template rows.
type StrengthLink struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

// DrillContext lists the skills a drill develops.
type DrillContext struct {
	Drill  string   `json:"drill"`
	Skills []string `json:"skills"`
}

var catalog = []Template{
	{
		Category:    "skill",
		Name:        "skill_drills",
		Description: "Drills that develop a skill and the visual elements those drills focus on",
		Params:      []string{"skill_name"},
		run:         skillDrills,
	},
	{
		Category:    "skill",
		Name:        "skill_prerequisites",
		Description: "Skills a skill requires, with edge strength",
		Params:      []string{"skill_name"},
		run:         skillPrerequisites,
	},
	{
		Category:    "drill",
		Name:        "drill_details",
		Description: "Skills a drill develops and visual elements it focuses on",
		Params:      []string{"drill_name"},
		run:         drillDetails,
	},
	{
		Category:    "drill",
		Name:        "drill_progression",
		Description: "Drills with a visual focus, ordered by how many skills they develop",
		run:         drillProgression,
	},
	{
		Category:    "visual",
		Name:        "visual_element_usage",
		Description: "Drills focusing on a visual element and the skills each develops",
		Params:      []string{"element_name"},
		run:         visualElementUsage,
	},
	{
		Category:    "relationship",
		Name:        "skill_network",
		Description: "Every skill prerequisite edge grouped by skill",
		run:         skillNetwork,
	},
	{
		Category:    "relationship",
		Name:        "visual_skill_connections",
		Description: "Skills reachable from each visual element through drills, ordered by drill count",
		run:         visualSkillConnections,
	},
}

// Templates returns the catalog ordered by category, then name.
func Templates() []Template {
	out := slices.Clone(catalog)
	slices.SortFunc(out, func(a, b Template) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// LookupTemplate finds a template. Category and name are case-insensitive.
func LookupTemplate(category, name string) (Template, error) {
	category, name = strings.ToLower(category), strings.ToLower(name)
	for _, t := range catalog {
		if t.Category == category && t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("query template %s/%s: %w", category, name, ErrNotFound)
}

// RunTemplate validates params and executes the named template over r.
// Parameter values are only ever compared as normalized names.
func RunTemplate(ctx context.Context, r EdgeReader, category, name string, params map[string]string) ([]TemplateRow, error) {
	t, err := LookupTemplate(category, name)
	if err != nil {
		return nil, err
	}
	for _, p := range t.Params {
		if types.NormalizeKey(params[p]) == "" {
			return nil, fmt.Errorf("query template %s/%s: parameter %q is required: %w", t.Category, t.Name, p, ErrInvalidInput)
		}
	}
	rows, err := t.run(ctx, r, params)
	if err != nil {
		return nil, fmt.Errorf("query template %s/%s: %w", t.Category, t.Name, err)
	}
	if rows == nil {
		rows = []TemplateRow{}
	}
	return rows, nil
}

func develops(ctx context.Context, r EdgeReader, f EdgeFilter) ([]Edge, error) {
	f.Relation, f.FromType, f.ToType = types.RelDevelops, types.EntityDrill, types.EntitySkill
	return r.Edges(ctx, f)
}

func focusesOn(ctx context.Context, r EdgeReader, f EdgeFilter) ([]Edge, error) {
	f.Relation, f.FromType, f.ToType = types.RelFocusesOn, types.EntityDrill, types.EntityVisualElement
	return r.Edges(ctx, f)
}

func requires(ctx context.Context, r EdgeReader, f EdgeFilter) ([]Edge, error) {
	f.Relation, f.FromType, f.ToType = types.RelRequires, types.EntitySkill, types.EntitySkill
	return r.Edges(ctx, f)
}

// targetsBySource groups edge targets by source name, sorted and deduplicated.
func targetsBySource(edges []Edge) map[string][]string {
	out := map[string][]string{}
	for _, e := range edges {
		out[e.FromName] = append(out[e.FromName], e.ToName)
	}
	for k, v := range out {
		slices.Sort(v)
		out[k] = slices.Compact(v)
	}
	return out
}

func distinctSorted(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}

func skillDrills(ctx context.Context, r EdgeReader, params map[string]string) ([]TemplateRow, error) {
	dev, err := develops(ctx, r, EdgeFilter{ToKey: types.NormalizeKey(params["skill_name"])})
	if err != nil || len(dev) == 0 {
		return nil, err
	}
	focus, err := focusesOn(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}

	var drills, visuals []string
	visualByDrill := targetsBySource(focus)
	for _, e := range dev {
		drills = append(drills, e.FromName)
		visuals = append(visuals, visualByDrill[e.FromName]...)
	}
	return []TemplateRow{{
		"skill":           dev[0].ToName,
		"drills":          distinctSorted(drills),
		"visual_elements": distinctSorted(visuals),
	}}, nil
}

func skillPrerequisites(ctx context.Context, r EdgeReader, params map[string]string) ([]TemplateRow, error) {
	req, err := requires(ctx, r, EdgeFilter{FromKey: types.NormalizeKey(params["skill_name"])})
	if err != nil || len(req) == 0 {
		return nil, err
	}
	prereqs := make([]StrengthLink, 0, len(req))
	for _, e := range req {
		prereqs = append(prereqs, StrengthLink{Name: e.ToName, Strength: e.Strength})
	}
	return []TemplateRow{{"skill": req[0].FromName, "prerequisites": prereqs}}, nil
}

func drillDetails(ctx context.Context, r EdgeReader, params map[string]string) ([]TemplateRow, error) {
	key := types.NormalizeKey(params["drill_name"])
	dev, err := develops(ctx, r, EdgeFilter{FromKey: key})
	if err != nil || len(dev) == 0 {
		return nil, err
	}
	focus, err := focusesOn(ctx, r, EdgeFilter{FromKey: key})
	if err != nil {
		return nil, err
	}

	var skills, visuals []string
	for _, e := range dev {
		skills = append(skills, e.ToName)
	}
	for _, e := range focus {
		visuals = append(visuals, e.ToName)
	}
	return []TemplateRow{{
		"drill":           dev[0].FromName,
		"skills":          distinctSorted(skills),
		"visual_elements": distinctSorted(visuals),
	}}, nil
}

func drillProgression(ctx context.Context, r EdgeReader, _ map[string]string) ([]TemplateRow, error) {
	dev, err := develops(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}
	focus, err := focusesOn(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}

	skillsByDrill := targetsBySource(dev)
	visualByDrill := targetsBySource(focus)
	drills := make([]string, 0, len(skillsByDrill))
	for d := range skillsByDrill {
		if len(visualByDrill[d]) > 0 {
			drills = append(drills, d)
		}
	}
	slices.SortFunc(drills, func(a, b string) int {
		if na, nb := len(skillsByDrill[a]), len(skillsByDrill[b]); na != nb {
			return nb - na
		}
		return strings.Compare(a, b)
	})

	rows := make([]TemplateRow, 0, len(drills))
	for _, d := range drills {
		rows = append(rows, TemplateRow{
			"drill":            d,
			"developed_skills": skillsByDrill[d],
			"visual_focus":     visualByDrill[d],
		})
	}
	return rows, nil
}

func visualElementUsage(ctx context.Context, r EdgeReader, params map[string]string) ([]TemplateRow, error) {
	focus, err := focusesOn(ctx, r, EdgeFilter{ToKey: types.NormalizeKey(params["element_name"])})
	if err != nil || len(focus) == 0 {
		return nil, err
	}
	dev, err := develops(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}

	skillsByDrill := targetsBySource(dev)
	var drills []string
	for _, e := range focus {
		drills = append(drills, e.FromName)
	}
	contexts := []DrillContext{}
	for _, d := range distinctSorted(drills) {
		skills := skillsByDrill[d]
		if skills == nil {
			skills = []string{}
		}
		contexts = append(contexts, DrillContext{Drill: d, Skills: skills})
	}
	return []TemplateRow{{"visual_element": focus[0].ToName, "drill_contexts": contexts}}, nil
}

func skillNetwork(ctx context.Context, r EdgeReader, _ map[string]string) ([]TemplateRow, error) {
	req, err := requires(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}

	var rows []TemplateRow
	for i := 0; i < len(req); {
		skill := req[i].FromName
		var links []StrengthLink
		for ; i < len(req) && req[i].FromName == skill; i++ {
			links = append(links, StrengthLink{Name: req[i].ToName, Strength: req[i].Strength})
		}
		rows = append(rows, TemplateRow{"skill": skill, "relationships": links})
	}
	return rows, nil
}

func visualSkillConnections(ctx context.Context, r EdgeReader, _ map[string]string) ([]TemplateRow, error) {
	focus, err := focusesOn(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}
	dev, err := develops(ctx, r, EdgeFilter{})
	if err != nil {
		return nil, err
	}

	skillsByDrill := targetsBySource(dev)
	type connection struct {
		element string
		skills  []string
		drills  []string
	}
	byElement := map[string]*connection{}
	for _, e := range focus {
		skills := skillsByDrill[e.FromName]
		if len(skills) == 0 {
			continue
		}
		c := byElement[e.ToName]
		if c == nil {
			c = &connection{element: e.ToName}
			byElement[e.ToName] = c
		}
		c.skills = append(c.skills, skills...)
		c.drills = append(c.drills, e.FromName)
	}

	conns := make([]*connection, 0, len(byElement))
	for _, c := range byElement {
		c.skills = distinctSorted(c.skills)
		c.drills = distinctSorted(c.drills)
		conns = append(conns, c)
	}
	slices.SortFunc(conns, func(a, b *connection) int {
		if len(a.drills) != len(b.drills) {
			return len(b.drills) - len(a.drills)
		}
		return strings.Compare(a.element, b.element)
	})

	rows := make([]TemplateRow, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, TemplateRow{
			"visual_element":   c.element,
			"connected_skills": c.skills,
			"drill_count":      len(c.drills),
		})
	}
	return rows, nil
}
