package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/quinn/internal/config"
	"github.com/stellarlinkco/quinn/internal/memory"
)

type mockRuntime struct {
	response *api.Response
	err      error
	requests []api.Request
	closed   bool
}

func (m *mockRuntime) Run(_ context.Context, req api.Request) (*api.Response, error) {
	m.requests = append(m.requests, req)
	return m.response, m.err
}

func (m *mockRuntime) Close() {
	m.closed = true
}

func newTestAgent(t *testing.T, rt Runtime) (*Agent, *memory.Manager) {
	t.Helper()
	cfg := config.DefaultConfig() // empty graph password keeps memory degraded
	mem := memory.NewManager(cfg, zerolog.Nop())

	var gotPrompt string
	ag, err := NewWithOptions(cfg, mem, zerolog.Nop(), Options{
		RuntimeFactory: func(_ *config.Config, sysPrompt string) (Runtime, error) {
			gotPrompt = sysPrompt
			return rt, nil
		},
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	if !strings.Contains(gotPrompt, config.DefaultAgentName) {
		t.Errorf("system prompt should introduce the agent by name: %q", gotPrompt)
	}
	return ag, mem
}

func TestProcess(t *testing.T) {
	rt := &mockRuntime{response: &api.Response{Result: &api.Result{Output: "hello back"}}}
	ag, mem := newTestAgent(t, rt)

	reply, err := ag.Process(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("requests = %d", len(rt.requests))
	}
	if rt.requests[0].Prompt != "hello" {
		t.Errorf("first message should go through unaugmented: %q", rt.requests[0].Prompt)
	}
	if rt.requests[0].SessionID != "chat" {
		t.Errorf("session = %q", rt.requests[0].SessionID)
	}
	if mem.EphemeralCount() != 2 {
		t.Errorf("exchange should be remembered, got %d records", mem.EphemeralCount())
	}
}

func TestProcess_FoldsMemoriesIntoPrompt(t *testing.T) {
	rt := &mockRuntime{response: &api.Response{Result: &api.Result{Output: "noted"}}}
	ag, _ := newTestAgent(t, rt)
	ctx := context.Background()

	if _, err := ag.Process(ctx, "I live in Lisbon"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := ag.Process(ctx, "where do I live?"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	second := rt.requests[1].Prompt
	if !strings.HasPrefix(second, "[Relevant Memory]\n") {
		t.Errorf("second prompt should carry memory context: %q", second)
	}
	if !strings.Contains(second, "I live in Lisbon [From: user, ") {
		t.Errorf("memory snippet missing: %q", second)
	}
	if !strings.Contains(second, "\n\n[User Message]\nwhere do I live?") {
		t.Errorf("user message section missing: %q", second)
	}
}

func TestProcess_RuntimeError(t *testing.T) {
	rt := &mockRuntime{err: errors.New("model unavailable")}
	ag, mem := newTestAgent(t, rt)

	if _, err := ag.Process(context.Background(), "hello"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if mem.EphemeralCount() != 0 {
		t.Errorf("failed turns must not be remembered, got %d records", mem.EphemeralCount())
	}
}

func TestProcess_NilResult(t *testing.T) {
	rt := &mockRuntime{response: &api.Response{Result: nil}}
	ag, mem := newTestAgent(t, rt)

	reply, err := ag.Process(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q", reply)
	}
	if mem.EphemeralCount() != 0 {
		t.Errorf("empty replies must not be remembered, got %d records", mem.EphemeralCount())
	}
}

func TestClose(t *testing.T) {
	rt := &mockRuntime{}
	ag, _ := newTestAgent(t, rt)

	ag.Close()
	if !rt.closed {
		t.Error("Close should release the runtime")
	}
}
