package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/quinn/internal/graph"
)

const extractionSystemPrompt = "You are an expert text analysis assistant. " +
	"Extract all relevant entities, topics, and relationships from the text. " +
	"For entities, identify their 'name', 'entity_type', and optionally 'aliases' and 'description'. " +
	"For topics, identify the main subjects discussed. " +
	"For relationships, identify connections between entities with 'source', 'target', 'relationship_type', " +
	"and optionally 'description' and 'confidence'. " +
	"Return a JSON object with keys 'entities', 'relationships' and 'topics'."

// EntitySink receives extracted knowledge. The graph repository is the
// real implementation.
type EntitySink interface {
	UpsertEntity(ctx context.Context, entity graph.Entity) error
	UpsertRelationship(ctx context.Context, rel graph.Relationship) error
	UpsertTopic(ctx context.Context, name string) error
}

// Extractor turns free text into entities, relationships and topics by
// asking an LLM. It is strictly best-effort: any failure yields an
// empty aggregate, never an error, because extraction quality must not
// affect whether a conversation is remembered.
type Extractor struct {
	client CompletionClient
	log    zerolog.Logger
}

func NewExtractor(client CompletionClient, logger zerolog.Logger) *Extractor {
	return &Extractor{
		client: client,
		log:    logger.With().Str("component", "extractor").Logger(),
	}
}

func (x *Extractor) Extract(ctx context.Context, text, instructions string) graph.ExtractedEntities {
	userPrompt := fmt.Sprintf("Text: %s\nInstructions: %s", text, instructions)

	raw, err := x.client.Complete(ctx, extractionSystemPrompt, userPrompt)
	if err != nil {
		x.log.Warn().Err(err).Msg("entity extraction call failed")
		return emptyExtraction()
	}

	extracted, err := parseExtraction(raw)
	if err != nil {
		x.log.Warn().Err(err).Str("response", raw).Msg("entity extraction returned unusable JSON")
		return emptyExtraction()
	}

	x.log.Debug().
		Int("entities", len(extracted.Entities)).
		Int("relationships", len(extracted.Relationships)).
		Int("topics", len(extracted.Topics)).
		Msg("extraction complete")
	return extracted
}

// Persist writes the aggregate into the sink record by record. A failed
// record is logged and skipped so one bad entity cannot block the rest.
func (x *Extractor) Persist(ctx context.Context, extracted graph.ExtractedEntities, sink EntitySink) {
	for _, entity := range extracted.Entities {
		if err := sink.UpsertEntity(ctx, entity); err != nil {
			x.log.Warn().Err(err).Str("entity", entity.Name).Msg("persist entity failed")
		}
	}
	for _, rel := range extracted.Relationships {
		if err := sink.UpsertRelationship(ctx, rel); err != nil {
			x.log.Warn().Err(err).Str("source", rel.Source).Str("target", rel.Target).Msg("persist relationship failed")
		}
	}
	for _, topic := range extracted.Topics {
		if err := sink.UpsertTopic(ctx, topic); err != nil {
			x.log.Warn().Err(err).Str("topic", topic).Msg("persist topic failed")
		}
	}
}

func parseExtraction(raw string) (graph.ExtractedEntities, error) {
	var payload struct {
		Entities []struct {
			Name        string         `json:"name"`
			EntityType  string         `json:"entity_type"`
			Aliases     []string       `json:"aliases"`
			Description string         `json:"description"`
			Metadata    map[string]any `json:"metadata"`
		} `json:"entities"`
		Relationships []struct {
			Source           string         `json:"source"`
			Target           string         `json:"target"`
			RelationshipType string         `json:"relationship_type"`
			Description      string         `json:"description"`
			Confidence       *float64       `json:"confidence"`
			Metadata         map[string]any `json:"metadata"`
		} `json:"relationships"`
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return graph.ExtractedEntities{}, fmt.Errorf("parse extraction response: %w", err)
	}

	out := emptyExtraction()
	for _, e := range payload.Entities {
		name := e.Name
		if name == "" {
			name = "Unknown"
		}
		entityType := e.EntityType
		if entityType == "" {
			entityType = "unknown"
		}
		aliases := e.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		out.Entities = append(out.Entities, graph.Entity{
			Name:        name,
			EntityType:  entityType,
			Aliases:     aliases,
			Description: e.Description,
			Metadata:    e.Metadata,
		})
	}
	for _, r := range payload.Relationships {
		source := r.Source
		if source == "" {
			source = "Unknown"
		}
		target := r.Target
		if target == "" {
			target = "Unknown"
		}
		confidence := 1.0
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		out.Relationships = append(out.Relationships, graph.Relationship{
			Source:      source,
			Target:      target,
			Type:        graph.SanitizeRelationshipType(r.RelationshipType),
			Description: r.Description,
			Confidence:  confidence,
			Metadata:    r.Metadata,
		})
	}
	out.Topics = append(out.Topics, payload.Topics...)

	return out, nil
}

func emptyExtraction() graph.ExtractedEntities {
	return graph.ExtractedEntities{
		Entities:      []graph.Entity{},
		Relationships: []graph.Relationship{},
		Topics:        []string{},
	}
}
