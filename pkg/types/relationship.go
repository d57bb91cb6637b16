package types

import "time"

// RelationType is the label of a graph edge.
type RelationType string

// Relationship type constants.
const (
	// RelContains links a Document to an Entity mentioned in it.
	RelContains RelationType = "CONTAINS"

	// RelDevelops links a Drill to the Skill it trains.
	RelDevelops RelationType = "DEVELOPS"

	// RelRequires links a Skill to a prerequisite Skill.
	RelRequires RelationType = "REQUIRES"

	// RelFocusesOn links a Drill to a VisualElement it exercises.
	RelFocusesOn RelationType = "FOCUSES_ON"

	// RelInforms links a Framework to a Drill it shapes.
	RelInforms RelationType = "INFORMS"

	// RelIncludes links a PracticePlan to one of its Drills.
	RelIncludes RelationType = "INCLUDES"

	// RelRelatedTo is the fallback for co-occurring entities with no typed rule.
	RelRelatedTo RelationType = "RELATED_TO"
)

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID        string       `json:"id"`
	FromID    string       `json:"from_id"`
	ToID      string       `json:"to_id"`
	Type      RelationType `json:"type"`
	Strength  float64      `json:"strength,omitempty"` // 0.0-1.0
	CreatedAt time.Time    `json:"created_at"`
}
