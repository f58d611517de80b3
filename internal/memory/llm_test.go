package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stellarlinkco/quinn/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "test-key"
	cfg.Provider.BaseURL = baseURL
	return cfg
}

func TestComplete(t *testing.T) {
	var gotReq map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"entities":[]}`}},
			},
		})
	}))
	defer server.Close()

	client := NewCompletionClient(testConfig(server.URL))
	out, err := client.Complete(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"entities":[]}` {
		t.Errorf("content = %q", out)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq["model"] != config.DefaultModel {
		t.Errorf("model = %v", gotReq["model"])
	}
	if gotReq["temperature"] != 0.2 {
		t.Errorf("temperature = %v", gotReq["temperature"])
	}
	format, _ := gotReq["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v", gotReq["response_format"])
	}
	messages, _ := gotReq["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", messages)
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "system text" {
		t.Errorf("system message = %v", first)
	}
}

func TestComplete_MissingAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	client := NewCompletionClient(cfg)

	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "api key") {
		t.Errorf("expected missing api key error, got %v", err)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewCompletionClient(testConfig(server.URL))
	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected http status error, got %v", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewCompletionClient(testConfig(server.URL))
	_, err := client.Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "empty choices") {
		t.Errorf("expected empty choices error, got %v", err)
	}
}

func TestNewCompletionClient_MemoryProviderOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "main-key"
	cfg.Provider.BaseURL = "https://main.example.com/v1"
	cfg.Memory.Model = "gpt-4o-mini"
	cfg.Memory.MaxTokens = 512
	cfg.Memory.Provider = &config.ProviderConfig{APIKey: "memory-key"}

	c, ok := NewCompletionClient(cfg).(*llmClient)
	if !ok {
		t.Fatal("unexpected client type")
	}
	if c.apiKey != "memory-key" {
		t.Errorf("apiKey = %q, want memory override", c.apiKey)
	}
	if c.baseURL != "https://main.example.com/v1" {
		t.Errorf("baseURL = %q, want fallback to main provider", c.baseURL)
	}
	if c.model != "gpt-4o-mini" || c.maxTokens != 512 {
		t.Errorf("model/maxTokens = %q/%d", c.model, c.maxTokens)
	}
}
