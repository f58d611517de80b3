package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/quinn/internal/config"
	"github.com/stellarlinkco/quinn/internal/graph"
)

const dateLayout = "2006-01-02 15:04:05"

// Mode is the manager's operating tier, decided once at construction.
type Mode int

const (
	// ModeDegraded keeps memories only in the in-process buffer.
	ModeDegraded Mode = iota
	// ModeDual additionally persists memories to the graph database.
	ModeDual
)

func (m Mode) String() string {
	if m == ModeDual {
		return "dual"
	}
	return "degraded"
}

// Repository is the durable-store surface the manager depends on. The
// graph repository satisfies it; tests substitute a fake.
type Repository interface {
	EntitySink
	StoreMemory(ctx context.Context, content, source string, metadata map[string]any) (string, error)
	RetrieveRecent(ctx context.Context, limit int) ([]graph.Memory, error)
	SearchMemories(ctx context.Context, query string, limit int) ([]graph.Memory, error)
	RetrieveByEntity(ctx context.Context, entityName string, limit int) ([]graph.Memory, error)
	LinkToEntities(ctx context.Context, memoryID string, entityNames []string)
	LinkToTopics(ctx context.Context, memoryID string, topics []string)
	ClearMemories(ctx context.Context) error
	EntityInformation(ctx context.Context, name string) (*graph.EntityInfo, error)
}

// ExtractionService is the knowledge-extraction surface the manager
// depends on.
type ExtractionService interface {
	Extract(ctx context.Context, text, instructions string) graph.ExtractedEntities
	Persist(ctx context.Context, extracted graph.ExtractedEntities, sink EntitySink)
}

// record is one entry in the ephemeral buffer.
type record struct {
	Text      string
	Source    string
	Timestamp float64
	Date      string
	Fields    map[string]any
}

// Manager is the memory facade the agent talks to. It always keeps an
// in-process buffer; in dual mode every stored memory also goes to the
// graph, where durable-write failures are absorbed and logged so the
// conversation never breaks on a database problem.
//
// Manager is not safe for concurrent use. It assumes a single logical
// caller, matching the one-conversation-at-a-time loop driving it.
type Manager struct {
	mode       Mode
	repo       Repository
	extraction ExtractionService
	store      *graph.Store
	records    []record
	now        func() time.Time
	log        zerolog.Logger
}

// Options inject test doubles. A non-nil Repository skips the database
// connection entirely and forces dual mode.
type Options struct {
	Repository Repository
	Extraction ExtractionService
	Now        func() time.Time
}

// NewManager builds the memory subsystem. It never fails: when the
// graph database cannot be reached or prepared, the manager comes up
// in degraded mode and stays there for its lifetime.
func NewManager(cfg *config.Config, logger zerolog.Logger) *Manager {
	return NewManagerWithOptions(cfg, logger, Options{})
}

func NewManagerWithOptions(cfg *config.Config, logger zerolog.Logger, opts Options) *Manager {
	m := &Manager{
		mode: ModeDegraded,
		now:  time.Now,
		log:  logger.With().Str("component", "memory").Logger(),
	}
	if opts.Now != nil {
		m.now = opts.Now
	}
	if opts.Repository != nil {
		m.repo = opts.Repository
		m.extraction = opts.Extraction
		m.mode = ModeDual
		return m
	}

	ctx := context.Background()
	store := graph.NewStore(cfg.Graph, logger)
	if err := store.Connect(ctx); err != nil {
		m.log.Warn().Err(err).Msg("graph database unavailable, memory is ephemeral only")
		return m
	}
	if err := store.Setup(ctx); err != nil {
		m.log.Warn().Err(err).Msg("graph database setup failed, memory is ephemeral only")
		_ = store.Close(ctx)
		return m
	}

	m.store = store
	m.repo = graph.NewRepository(store, logger)
	m.extraction = NewExtractor(NewCompletionClient(cfg), logger)
	m.mode = ModeDual
	m.log.Info().Msg("dual-tier memory enabled")
	return m
}

// Mode reports the tier decided at construction.
func (m *Manager) Mode() Mode {
	return m.mode
}

// EphemeralCount reports how many records the in-process buffer holds.
func (m *Manager) EphemeralCount() int {
	return len(m.records)
}

// Close releases the graph connection if one was established.
func (m *Manager) Close(ctx context.Context) {
	if m.store != nil {
		if err := m.store.Close(ctx); err != nil {
			m.log.Warn().Err(err).Msg("close graph store")
		}
	}
}

// StoreConversation records one user/assistant exchange. Both messages
// share the captured wall-clock second; the assistant message is offset
// by a tenth of a second so ordering between the two is stable.
func (m *Manager) StoreConversation(ctx context.Context, userText, replyText string) {
	now := m.now()
	ts := unixSeconds(now)
	date := now.Format(dateLayout)

	m.records = append(m.records,
		record{Text: userText, Source: "user", Timestamp: ts, Date: date},
		record{Text: replyText, Source: "assistant", Timestamp: ts + 0.1, Date: date},
	)

	if m.mode == ModeDual {
		m.persist(ctx, userText, "user", nil)
		m.persist(ctx, replyText, "assistant", nil)
	}
}

// StoreDocument records a standalone piece of text such as an ingested
// file. Metadata rides along into both tiers.
func (m *Manager) StoreDocument(ctx context.Context, content, source string, metadata map[string]any) {
	now := m.now()
	m.records = append(m.records, record{
		Text:      content,
		Source:    source,
		Timestamp: unixSeconds(now),
		Date:      now.Format(dateLayout),
		Fields:    metadata,
	})

	if m.mode == ModeDual {
		m.persist(ctx, content, source, metadata)
	}
}

// persist writes one memory durably and enriches the graph with what
// can be extracted from it. Every failure is logged and absorbed.
func (m *Manager) persist(ctx context.Context, content, source string, metadata map[string]any) {
	id, err := m.repo.StoreMemory(ctx, content, source, metadata)
	if err != nil {
		m.log.Warn().Err(err).Str("source", source).Msg("durable memory write failed")
		return
	}

	if m.extraction == nil {
		return
	}
	extracted := m.extraction.Extract(ctx, content, "")
	if extracted.Empty() {
		return
	}
	m.extraction.Persist(ctx, extracted, m.repo)

	names := make([]string, 0, len(extracted.Entities))
	for _, e := range extracted.Entities {
		names = append(names, e.Name)
	}
	if len(names) > 0 {
		m.repo.LinkToEntities(ctx, id, names)
	}
	if len(extracted.Topics) > 0 {
		m.repo.LinkToTopics(ctx, id, extracted.Topics)
	}
}

// RetrieveRelevant returns up to limit formatted memory snippets for a
// query, newest first. In dual mode it searches the graph and falls
// back to the ephemeral buffer only when that search fails; an empty
// durable result is an answer, not a failure.
func (m *Manager) RetrieveRelevant(ctx context.Context, query string, limit int) []string {
	if limit <= 0 {
		limit = config.DefaultRetrieveLimit
	}

	if m.mode == ModeDual {
		memories, err := m.repo.SearchMemories(ctx, query, limit)
		if err != nil {
			m.log.Warn().Err(err).Msg("graph search failed, answering from ephemeral buffer")
		} else {
			out := make([]string, 0, len(memories))
			for _, mem := range memories {
				out = append(out, fmt.Sprintf("%s [From: %s, %s]", mem.Content, mem.Source, mem.DateStr))
			}
			return out
		}
	}

	return m.recentEphemeral(limit)
}

func (m *Manager) recentEphemeral(limit int) []string {
	recs := make([]record, len(m.records))
	copy(recs, m.records)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp > recs[j].Timestamp
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, fmt.Sprintf("%s [From: %s, %s]", r.Text, r.Source, r.Date))
	}
	return out
}

// ClearMemory wipes the ephemeral buffer and, in dual mode, the durable
// memories as well. A failed durable wipe is logged; the buffer is
// cleared regardless.
func (m *Manager) ClearMemory(ctx context.Context) {
	m.records = nil
	if m.mode == ModeDual {
		if err := m.repo.ClearMemories(ctx); err != nil {
			m.log.Error().Err(err).Msg("durable memory wipe failed")
		}
	}
}

// EntityInformation answers an entity lookup. Degraded mode has no
// entity graph, reported via Enabled=false rather than an error.
func (m *Manager) EntityInformation(ctx context.Context, name string) *graph.EntityInfo {
	if m.mode != ModeDual {
		return &graph.EntityInfo{Enabled: false, Name: name}
	}

	info, err := m.repo.EntityInformation(ctx, name)
	if err != nil {
		m.log.Warn().Err(err).Str("entity", name).Msg("entity lookup failed")
		return &graph.EntityInfo{Enabled: true, Found: false, Name: name}
	}
	return info
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
