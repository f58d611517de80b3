package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/quinn/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// CompletionClient is the LLM surface the extraction service needs: one
// system-plus-user completion that must come back as a JSON object.
type CompletionClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type llmClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewCompletionClient builds a chat-completions client from the memory
// provider settings, falling back to the main provider where the memory
// section leaves a field blank.
func NewCompletionClient(cfg *config.Config) CompletionClient {
	c := &llmClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if cfg.Memory.Provider != nil {
		c.apiKey = cfg.Memory.Provider.APIKey
		c.baseURL = cfg.Memory.Provider.BaseURL
	}
	if c.apiKey == "" {
		c.apiKey = cfg.Provider.APIKey
	}
	if c.baseURL == "" {
		c.baseURL = cfg.Provider.BaseURL
	}
	if c.baseURL == "" {
		c.baseURL = defaultOpenAIBaseURL
	}
	if cfg.Memory.Model != "" {
		c.model = cfg.Memory.Model
	} else {
		c.model = cfg.Agent.Model
	}
	if cfg.Memory.MaxTokens > 0 {
		c.maxTokens = cfg.Memory.MaxTokens
	} else {
		c.maxTokens = cfg.Agent.MaxTokens
	}

	return c
}

func (c *llmClient) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing extraction api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing extraction base url")
	}
	if c.model == "" {
		return "", fmt.Errorf("missing extraction model")
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"max_tokens":  c.maxTokens,
		"temperature": 0.2,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("extraction model http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}
