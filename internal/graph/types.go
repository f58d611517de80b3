package graph

// Memory is a unit of recorded text: one conversational turn or one
// ingested document.
type Memory struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Source    string         `json:"source"` // "user", "assistant", or a document identifier
	Timestamp float64        `json:"timestamp"`
	DateStr   string         `json:"date_str"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Entity is a named real-world thing mentioned in text. Name is the
// natural key; re-extraction upserts the remaining fields.
type Entity struct {
	Name        string         `json:"name"`
	EntityType  string         `json:"entity_type"`
	Aliases     []string       `json:"aliases,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Relationship is a directed, typed edge between two entities. Type is
// used literally as the edge label after sanitizing.
type Relationship struct {
	Source      string         `json:"source"`
	Target      string         `json:"target"`
	Type        string         `json:"relationship_type"`
	Description string         `json:"description,omitempty"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExtractedEntities bundles one extraction call's output. It is the
// contract between the extraction service and the repository and is
// never persisted as a node itself.
type ExtractedEntities struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Topics        []string       `json:"topics"`
}

// Empty reports whether the aggregate carries nothing worth persisting.
func (e ExtractedEntities) Empty() bool {
	return len(e.Entities) == 0 && len(e.Relationships) == 0 && len(e.Topics) == 0
}

// ConnectedEntity is a neighbor of an entity together with the type of
// the edge between them.
type ConnectedEntity struct {
	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type"`
}

// EntityInfo is the aggregated answer to an entity lookup. Enabled is
// false when the durable store is not available at all.
type EntityInfo struct {
	Enabled     bool              `json:"enabled"`
	Found       bool              `json:"found"`
	Name        string            `json:"name"`
	EntityType  string            `json:"entity_type,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Description string            `json:"description,omitempty"`
	Connected   []ConnectedEntity `json:"connected,omitempty"`
	Memories    []string          `json:"memories,omitempty"`
}
