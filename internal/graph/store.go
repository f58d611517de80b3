package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/quinn/internal/config"
)

// Store is the single gateway to the neo4j graph database. All Cypher
// issued by the rest of the program goes through RunQuery.
type Store struct {
	cfg    config.GraphConfig
	driver neo4j.DriverWithContext
	log    zerolog.Logger
}

// NewStore creates an unconnected store. Call Connect before use.
func NewStore(cfg config.GraphConfig, logger zerolog.Logger) *Store {
	return &Store{
		cfg: cfg,
		log: logger.With().Str("component", "graph").Logger(),
	}
}

// Connect dials the database and verifies it is reachable. An empty
// password is refused up front so a misconfigured install fails with a
// clear message instead of an auth error from the server.
func (s *Store) Connect(ctx context.Context) error {
	if s.cfg.Password == "" {
		return fmt.Errorf("graph password is required (set NEO4J_PASSWORD or graph.password in config)")
	}

	driver, err := neo4j.NewDriverWithContext(s.cfg.URI, neo4j.BasicAuth(s.cfg.Username, s.cfg.Password, ""))
	if err != nil {
		return fmt.Errorf("create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("verify graph connectivity: %w", err)
	}

	s.driver = driver
	s.log.Info().Str("uri", s.cfg.URI).Msg("connected to graph database")
	return nil
}

// Close releases the driver. Safe to call on an unconnected store.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// RunQuery executes one Cypher statement in a fresh session and
// returns every record as a column-name keyed map. Failed queries are
// logged with their text and parameters before the error propagates.
func (s *Store) RunQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if s.driver == nil {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		s.logQueryError(err, query, params)
		return nil, fmt.Errorf("run query: %w", err)
	}

	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	if err := result.Err(); err != nil {
		s.logQueryError(err, query, params)
		return nil, fmt.Errorf("consume query result: %w", err)
	}
	return rows, nil
}

func (s *Store) logQueryError(err error, query string, params map[string]any) {
	s.log.Error().
		Err(err).
		Str("query", query).
		Interface("params", params).
		Msg("graph query failed")
}

// Setup prepares the database for use. Currently that means making
// sure the lookup indexes exist.
func (s *Store) Setup(ctx context.Context) error {
	if err := s.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("setup graph database: %w", err)
	}
	return nil
}

// CreateIndexes creates the indexes backing the hot lookup paths.
// Every statement is idempotent, so running this on each start is fine.
func (s *Store) CreateIndexes(ctx context.Context) error {
	statements := []string{
		"CREATE INDEX memory_id IF NOT EXISTS FOR (m:Memory) ON (m.id)",
		"CREATE INDEX document_id IF NOT EXISTS FOR (d:Document) ON (d.id)",
		"CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)",
		"CREATE INDEX topic_name IF NOT EXISTS FOR (t:Topic) ON (t.name)",
	}
	for _, stmt := range statements {
		if _, err := s.RunQuery(ctx, stmt, nil); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	s.log.Debug().Int("count", len(statements)).Msg("graph indexes ensured")
	return nil
}
