package types

import "time"

// Document is a source text stored in the knowledge graph.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"` // File path or URL the document came from
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a bounded span of document text and the unit of vector search.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Overview is a coarse summary of the store's contents.
type Overview struct {
	// EntityCounts maps entity type to the number of entities of that type.
	EntityCounts map[EntityType]int `json:"entity_counts"`

	// Examples holds up to a handful of entity names per type, sorted by name.
	Examples map[EntityType][]string `json:"examples"`

	// DocumentCount is the total number of documents.
	DocumentCount int `json:"document_count"`

	// SampleTitles holds a few document titles, sorted.
	SampleTitles []string `json:"sample_titles"`
}

// IsEmpty reports whether the overview describes an empty store.
func (o *Overview) IsEmpty() bool {
	if o == nil {
		return true
	}
	if o.DocumentCount > 0 {
		return false
	}
	for _, n := range o.EntityCounts {
		if n > 0 {
			return false
		}
	}
	return true
}
