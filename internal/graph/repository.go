package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02 15:04:05"

// Runner executes Cypher and returns rows as column-keyed maps. Store
// satisfies it; tests substitute a fake.
type Runner interface {
	RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Repository implements the durable memory and entity operations on
// top of a Runner. It owns the node and edge shapes; callers never see
// Cypher.
type Repository struct {
	runner Runner
	log    zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewRepository(runner Runner, logger zerolog.Logger) *Repository {
	return &Repository{
		runner: runner,
		log:    logger.With().Str("component", "repository").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// StoreMemory creates one Memory node and returns its generated id.
// Metadata is stored as a JSON string because the database cannot hold
// nested maps as a property value.
func (r *Repository) StoreMemory(ctx context.Context, content, source string, metadata map[string]any) (string, error) {
	id := r.newID()
	now := r.now()

	query := `
		CREATE (m:Memory {
			id: $id,
			content: $content,
			source: $source,
			timestamp: $timestamp,
			date_str: $date_str,
			metadata: $metadata
		})
		RETURN m.id AS id`
	params := map[string]any{
		"id":        id,
		"content":   content,
		"source":    source,
		"timestamp": unixSeconds(now),
		"date_str":  now.Format(dateLayout),
		"metadata":  encodeMetadata(metadata),
	}

	if _, err := r.runner.RunQuery(ctx, query, params); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	r.log.Debug().Str("id", id).Str("source", source).Msg("memory stored")
	return id, nil
}

// RetrieveRecent returns up to limit memories, newest first.
func (r *Repository) RetrieveRecent(ctx context.Context, limit int) ([]Memory, error) {
	query := `
		MATCH (m:Memory)
		RETURN m.id AS id, m.content AS content, m.source AS source,
		       m.timestamp AS timestamp, m.date_str AS date_str, m.metadata AS metadata
		ORDER BY m.timestamp DESC
		LIMIT $limit`

	rows, err := r.runner.RunQuery(ctx, query, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("retrieve recent memories: %w", err)
	}
	return r.mapMemories(rows), nil
}

// SearchMemories returns up to limit memories whose content contains
// the query text, newest first.
func (r *Repository) SearchMemories(ctx context.Context, queryText string, limit int) ([]Memory, error) {
	query := `
		MATCH (m:Memory)
		WHERE m.content CONTAINS $query_text
		RETURN m.id AS id, m.content AS content, m.source AS source,
		       m.timestamp AS timestamp, m.date_str AS date_str, m.metadata AS metadata
		ORDER BY m.timestamp DESC
		LIMIT $limit`
	params := map[string]any{"query_text": queryText, "limit": limit}

	rows, err := r.runner.RunQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	return r.mapMemories(rows), nil
}

// RetrieveByEntity returns up to limit memories that mention the named
// entity, newest first.
func (r *Repository) RetrieveByEntity(ctx context.Context, entityName string, limit int) ([]Memory, error) {
	query := `
		MATCH (m:Memory)-[:MENTIONS]->(e:Entity {name: $entity_name})
		RETURN m.id AS id, m.content AS content, m.source AS source,
		       m.timestamp AS timestamp, m.date_str AS date_str, m.metadata AS metadata
		ORDER BY m.timestamp DESC
		LIMIT $limit`
	params := map[string]any{"entity_name": entityName, "limit": limit}

	rows, err := r.runner.RunQuery(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve memories by entity: %w", err)
	}
	return r.mapMemories(rows), nil
}

// LinkToEntities connects a memory to already-existing entities with
// MENTIONS edges. Entities that do not exist are silently skipped by
// the MATCH, and a failed link is logged and skipped rather than
// aborting the remaining links.
func (r *Repository) LinkToEntities(ctx context.Context, memoryID string, entityNames []string) {
	query := `
		MATCH (m:Memory {id: $memory_id})
		MATCH (e:Entity {name: $entity_name})
		MERGE (m)-[r:MENTIONS]->(e)
		RETURN e.name AS name`

	for _, name := range entityNames {
		if name == "" {
			continue
		}
		params := map[string]any{"memory_id": memoryID, "entity_name": name}
		if _, err := r.runner.RunQuery(ctx, query, params); err != nil {
			r.log.Warn().Err(err).Str("memory_id", memoryID).Str("entity", name).Msg("link to entity failed")
		}
	}
}

// LinkToTopics connects a memory to topics with ABOUT edges, creating
// the Topic nodes as needed. Same best-effort contract as
// LinkToEntities.
func (r *Repository) LinkToTopics(ctx context.Context, memoryID string, topics []string) {
	query := `
		MATCH (m:Memory {id: $memory_id})
		MERGE (t:Topic {name: $topic})
		MERGE (m)-[r:ABOUT]->(t)
		RETURN t.name AS name`

	for _, topic := range topics {
		if topic == "" {
			continue
		}
		params := map[string]any{"memory_id": memoryID, "topic": topic}
		if _, err := r.runner.RunQuery(ctx, query, params); err != nil {
			r.log.Warn().Err(err).Str("memory_id", memoryID).Str("topic", topic).Msg("link to topic failed")
		}
	}
}

// ClearMemories deletes every Memory node and its edges. Entities and
// topics stay.
func (r *Repository) ClearMemories(ctx context.Context) error {
	if _, err := r.runner.RunQuery(ctx, "MATCH (m:Memory) DETACH DELETE m", nil); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	r.log.Info().Msg("durable memories cleared")
	return nil
}

// mapMemories converts raw rows to Memory values. A row missing its
// required fields is dropped with a warning; the rest of the batch is
// kept.
func (r *Repository) mapMemories(rows []map[string]any) []Memory {
	memories := make([]Memory, 0, len(rows))
	for _, row := range rows {
		id, okID := asString(row["id"])
		content, okContent := asString(row["content"])
		if !okID || !okContent || id == "" {
			r.log.Warn().Interface("row", row).Msg("dropping malformed memory row")
			continue
		}
		source, _ := asString(row["source"])
		dateStr, _ := asString(row["date_str"])
		ts, _ := asFloat(row["timestamp"])
		memories = append(memories, Memory{
			ID:        id,
			Content:   content,
			Source:    source,
			Timestamp: ts,
			DateStr:   dateStr,
			Metadata:  decodeMetadata(row["metadata"]),
		})
	}
	return memories
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeMetadata(value any) map[string]any {
	raw, ok := asString(value)
	if !ok || raw == "" || raw == "{}" {
		return nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil
	}
	return metadata
}

func asString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func asStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
