package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/quinn/internal/config"
	"github.com/stellarlinkco/quinn/internal/memory"
)

// Runtime is the agent runtime surface (allows mocking in tests).
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime.
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime instance.
type RuntimeFactory func(cfg *config.Config, sysPrompt string) (Runtime, error)

// Options for creating an Agent.
type Options struct {
	RuntimeFactory RuntimeFactory
}

// DefaultRuntimeFactory creates the default agentsdk-go runtime.
func DefaultRuntimeFactory(cfg *config.Config, sysPrompt string) (Runtime, error) {
	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "anthropic":
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default: // "openai" or empty
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:   cfg.Agent.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  sysPrompt,
		MaxIterations: cfg.Agent.MaxToolIterations,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// Agent ties the model runtime to the memory subsystem: retrieved
// memories are folded into each prompt and every exchange is stored
// back afterwards.
type Agent struct {
	cfg     *config.Config
	runtime Runtime
	memory  *memory.Manager
	log     zerolog.Logger
}

// New creates an Agent with the default runtime.
func New(cfg *config.Config, mem *memory.Manager, logger zerolog.Logger) (*Agent, error) {
	return NewWithOptions(cfg, mem, logger, Options{})
}

// NewWithOptions creates an Agent with custom options for testing.
func NewWithOptions(cfg *config.Config, mem *memory.Manager, logger zerolog.Logger, opts Options) (*Agent, error) {
	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}

	rt, err := factory(cfg, buildSystemPrompt(cfg))
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	return &Agent{
		cfg:     cfg,
		runtime: rt,
		memory:  mem,
		log:     logger.With().Str("component", "agent").Logger(),
	}, nil
}

func buildSystemPrompt(cfg *config.Config) string {
	return fmt.Sprintf("You are %s, a helpful, friendly and knowledgeable assistant.\n\n"+
		"Provide accurate and thoughtful responses. Past conversation snippets may appear "+
		"under [Relevant Memory]; use them when they help answer the current message.",
		cfg.Agent.Name)
}

// Process runs one conversational turn: retrieve relevant memories,
// ask the model, store the exchange. The original user message is what
// gets remembered, not the augmented prompt.
func (a *Agent) Process(ctx context.Context, message string) (string, error) {
	prompt := message
	if memories := a.memory.RetrieveRelevant(ctx, message, config.DefaultRetrieveLimit); len(memories) > 0 {
		prompt = fmt.Sprintf("[Relevant Memory]\n%s\n\n[User Message]\n%s", strings.Join(memories, "\n"), message)
	}

	resp, err := a.runtime.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: "chat",
	})
	if err != nil {
		return "", fmt.Errorf("agent error: %w", err)
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	reply := resp.Result.Output

	if strings.TrimSpace(reply) != "" {
		a.memory.StoreConversation(ctx, message, reply)
	}
	return reply, nil
}

// Close releases the runtime.
func (a *Agent) Close() {
	a.runtime.Close()
}
