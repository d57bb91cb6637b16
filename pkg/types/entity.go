package types

import "time"

// EntityType classifies a node of the knowledge graph.
type EntityType string

// Entity type constants.
const (
	// EntitySkill is a technical skill (passing, setting, serving, ...).
	EntitySkill EntityType = "Skill"

	// EntityDrill is a practice drill that develops one or more skills.
	EntityDrill EntityType = "Drill"

	// EntityVisualElement is a visual-training concept (ball tracking, court awareness, ...).
	EntityVisualElement EntityType = "VisualElement"

	// EntityFramework is a coaching or learning framework.
	EntityFramework EntityType = "Framework"

	// EntityEquipment is a piece of training equipment.
	EntityEquipment EntityType = "Equipment"

	// EntityPracticePlan is a planned session made of drills.
	EntityPracticePlan EntityType = "PracticePlan"

	// EntityGeneric is an entity found by generic named-entity recognition.
	EntityGeneric EntityType = "Entity"
)

// ValidEntityTypes lists every entity type accepted by the store.
var ValidEntityTypes = []EntityType{
	EntitySkill,
	EntityDrill,
	EntityVisualElement,
	EntityFramework,
	EntityEquipment,
	EntityPracticePlan,
	EntityGeneric,
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	for _, v := range ValidEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsDomainConcept reports whether t belongs to the visual/domain concept group
// rather than the skills group.
func (t EntityType) IsDomainConcept() bool {
	switch t {
	case EntityVisualElement, EntityFramework, EntityEquipment:
		return true
	}
	return false
}

// Entity is a named node of the knowledge graph.
type Entity struct {
	ID        string     `json:"id"`               // Unique identifier (uuid)
	Name      string     `json:"name"`             // Display name, original casing
	Type      EntityType `json:"type"`             // See EntityType constants
	Source    string     `json:"source,omitempty"` // Extraction source (pattern-match, named-entity-recognition)
	CreatedAt time.Time  `json:"created_at"`
}
