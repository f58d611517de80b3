package graph

import (
	"context"
	"fmt"
	"strings"
)

// maxConnectedEntities and maxEntityMemories bound the entity summary
// so a heavily connected entity stays readable.
const (
	maxConnectedEntities = 10
	maxEntityMemories    = 5
)

// UpsertEntity creates or refreshes an Entity node keyed by name.
func (r *Repository) UpsertEntity(ctx context.Context, entity Entity) error {
	if entity.Name == "" {
		return fmt.Errorf("upsert entity: name is required")
	}

	query := `
		MERGE (e:Entity {name: $name})
		ON CREATE SET e.entity_type = $entity_type,
		              e.aliases = $aliases,
		              e.description = $description,
		              e.created_at = timestamp()
		ON MATCH SET e.entity_type = $entity_type,
		             e.aliases = $aliases,
		             e.description = $description,
		             e.updated_at = timestamp()
		RETURN e.name AS name`
	params := map[string]any{
		"name":        entity.Name,
		"entity_type": entity.EntityType,
		"aliases":     entity.Aliases,
		"description": entity.Description,
	}

	if _, err := r.runner.RunQuery(ctx, query, params); err != nil {
		return fmt.Errorf("upsert entity %q: %w", entity.Name, err)
	}
	return nil
}

// UpsertRelationship creates or refreshes a typed edge between two
// existing entities. Either endpoint missing makes the MATCH produce
// no rows, which is not an error. The relationship type becomes the
// edge label, so it is sanitized before being spliced into the query;
// parameters cannot carry labels in Cypher.
func (r *Repository) UpsertRelationship(ctx context.Context, rel Relationship) error {
	if rel.Source == "" || rel.Target == "" {
		return fmt.Errorf("upsert relationship: source and target are required")
	}

	relType := SanitizeRelationshipType(rel.Type)
	query := fmt.Sprintf(`
		MATCH (source:Entity {name: $source})
		MATCH (target:Entity {name: $target})
		MERGE (source)-[r:%s]->(target)
		ON CREATE SET r.description = $description,
		              r.confidence = $confidence,
		              r.created_at = timestamp()
		ON MATCH SET r.description = $description,
		             r.confidence = $confidence,
		             r.updated_at = timestamp()
		RETURN type(r) AS relationship_type`, relType)
	params := map[string]any{
		"source":      rel.Source,
		"target":      rel.Target,
		"description": rel.Description,
		"confidence":  rel.Confidence,
	}

	if _, err := r.runner.RunQuery(ctx, query, params); err != nil {
		return fmt.Errorf("upsert relationship %s-[%s]->%s: %w", rel.Source, relType, rel.Target, err)
	}
	return nil
}

// UpsertTopic creates a Topic node if it does not exist yet.
func (r *Repository) UpsertTopic(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("upsert topic: name is required")
	}

	query := `
		MERGE (t:Topic {name: $name})
		ON CREATE SET t.created_at = timestamp()
		RETURN t.name AS name`

	if _, err := r.runner.RunQuery(ctx, query, map[string]any{"name": name}); err != nil {
		return fmt.Errorf("upsert topic %q: %w", name, err)
	}
	return nil
}

// EntityInformation aggregates what the graph knows about one entity:
// its own properties, up to ten neighbors in either direction, and the
// content of up to five memories that mention it. Neighbor and memory
// lookups are best-effort once the entity itself resolves.
func (r *Repository) EntityInformation(ctx context.Context, name string) (*EntityInfo, error) {
	info := &EntityInfo{Enabled: true, Name: name}

	query := `
		MATCH (e:Entity {name: $name})
		RETURN e.name AS name, e.entity_type AS entity_type,
		       e.aliases AS aliases, e.description AS description`
	rows, err := r.runner.RunQuery(ctx, query, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("look up entity %q: %w", name, err)
	}
	if len(rows) == 0 {
		return info, nil
	}

	info.Found = true
	if v, ok := asString(rows[0]["entity_type"]); ok {
		info.EntityType = v
	}
	if v, ok := asString(rows[0]["description"]); ok {
		info.Description = v
	}
	info.Aliases = asStringSlice(rows[0]["aliases"])

	connectedQuery := `
		MATCH (e:Entity {name: $name})-[r]-(other:Entity)
		RETURN other.name AS name, type(r) AS relationship_type
		LIMIT $limit`
	connectedRows, err := r.runner.RunQuery(ctx, connectedQuery, map[string]any{
		"name":  name,
		"limit": maxConnectedEntities,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("entity", name).Msg("connected entity lookup failed")
	}
	for _, row := range connectedRows {
		otherName, ok := asString(row["name"])
		if !ok || otherName == "" {
			continue
		}
		relType, _ := asString(row["relationship_type"])
		info.Connected = append(info.Connected, ConnectedEntity{
			Name:             otherName,
			RelationshipType: relType,
		})
	}

	memoryQuery := `
		MATCH (m:Memory)-[:MENTIONS]->(e:Entity {name: $name})
		RETURN m.content AS content
		ORDER BY m.timestamp DESC
		LIMIT $limit`
	memoryRows, err := r.runner.RunQuery(ctx, memoryQuery, map[string]any{
		"name":  name,
		"limit": maxEntityMemories,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("entity", name).Msg("entity memory lookup failed")
	}
	for _, row := range memoryRows {
		if content, ok := asString(row["content"]); ok && content != "" {
			info.Memories = append(info.Memories, content)
		}
	}

	return info, nil
}

// SanitizeRelationshipType reduces an arbitrary extracted relationship
// type to a safe edge label: letters, digits and underscores survive,
// spaces and hyphens become underscores, everything else is dropped.
// An empty result falls back to RELATED_TO.
func SanitizeRelationshipType(relType string) string {
	var b strings.Builder
	for _, r := range relType {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "RELATED_TO"
	}
	return out
}
