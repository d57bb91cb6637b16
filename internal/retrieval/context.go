package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category groups results in the rendered context.
type Category string

// Categories in rendering order.
const (
	CategoryDocuments     Category = "documents"
	CategoryEntities      Category = "entities"
	CategoryRelationships Category = "relationships"
	CategoryConcepts      Category = "concepts"
)

var categoryHeaders = []struct {
	category Category
	header   string
}{
	{CategoryDocuments, "## Documents"},
	{CategoryEntities, "## Skills & Entities"},
	{CategoryRelationships, "## Relationships"},
	{CategoryConcepts, "## Visual & Domain Concepts"},
}

// AssemblerOptions bounds the rendered context.
type AssemblerOptions struct {
	ExcerptChars int // per-document excerpt budget in characters (default 500)
	RelatedLimit int // per-entity related items shown (default 5)
}

func (o AssemblerOptions) withDefaults() AssemblerOptions {
	if o.ExcerptChars <= 0 {
		o.ExcerptChars = 500
	}
	if o.RelatedLimit <= 0 {
		o.RelatedLimit = 5
	}
	return o
}

// Section is the rendered text of one category.
type Section struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// AggregatedContext is the ranked result list with its rendering.
type AggregatedContext struct {
	Results  []Result
	Sections []Section
}

// Text joins the sections; empty when there are no results.
func (c *AggregatedContext) Text() string {
	if c == nil || len(c.Sections) == 0 {
		return ""
	}
	parts := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n\n")
}

// IsEmpty reports whether no results were retrieved.
func (c *AggregatedContext) IsEmpty() bool {
	return c == nil || len(c.Results) == 0
}

// Assemble renders results grouped by category. Empty categories are
// omitted.
func Assemble(results []Result, opts AssemblerOptions) *AggregatedContext {
	opts = opts.withDefaults()
	ctx := &AggregatedContext{Results: results}
	if len(results) == 0 {
		return ctx
	}

	bodies := map[Category][]string{}
	for _, r := range results {
		switch m := r.(type) {
		case *DocumentMatch:
			bodies[CategoryDocuments] = append(bodies[CategoryDocuments], renderDocument(m, opts))
		case *EntityMatch:
			cat := CategoryEntities
			if m.Type.IsDomainConcept() {
				cat = CategoryConcepts
			}
			bodies[cat] = append(bodies[cat], renderEntity(m, opts))
		case *RelationshipMatch:
			bodies[CategoryRelationships] = append(bodies[CategoryRelationships],
				fmt.Sprintf("- %s %s %s", m.SourceName, m.RelationType, m.TargetName))
		}
	}

	for _, h := range categoryHeaders {
		items, ok := bodies[h.category]
		if !ok {
			continue
		}
		sep := "\n\n"
		if h.category == CategoryRelationships {
			sep = "\n"
		}
		ctx.Sections = append(ctx.Sections, Section{
			Category: h.category,
			Text:     h.header + "\n" + strings.Join(items, sep),
		})
	}
	return ctx
}

func renderDocument(m *DocumentMatch, opts AssemblerOptions) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(m.Title)
	b.WriteString("\n")
	b.WriteString(Excerpt(m.Content, opts.ExcerptChars))
	if len(m.RelatedEntities) > 0 {
		b.WriteString("\nRelated entities: ")
		b.WriteString(JoinLimited(m.RelatedEntities, opts.RelatedLimit))
	}
	return b.String()
}

func renderEntity(m *EntityMatch, opts AssemblerOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s (%s)", m.Name, m.Type)
	if len(m.RelatedNodes) > 0 {
		related := make([]string, len(m.RelatedNodes))
		for i, n := range m.RelatedNodes {
			if n.Outgoing {
				related[i] = fmt.Sprintf("%s %s (%s)", n.Relation, n.Name, n.Type)
			} else {
				related[i] = fmt.Sprintf("%s (%s) %s this", n.Name, n.Type, n.Relation)
			}
		}
		b.WriteString("\nRelated: ")
		b.WriteString(JoinLimited(related, opts.RelatedLimit))
	}
	if len(m.Documents) > 0 {
		b.WriteString("\nMentioned in: ")
		b.WriteString(JoinLimited(m.Documents, opts.RelatedLimit))
	}
	return b.String()
}

// Excerpt truncates s to at most limit characters, appending "..." when
// truncated. It never splits a multi-byte character.
func Excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit]), func(r rune) bool { return r == ' ' }) + "..."
}

// JoinLimited joins up to limit items with ", " and appends "and N more"
// for the rest.
func JoinLimited(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:limit], ", "), len(items)-limit)
}
