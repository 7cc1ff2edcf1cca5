package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"regime-trading-bot/config"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

var defaultBaseURLs = map[Provider]string{
	ProviderClaude:   "https://api.anthropic.com/v1/messages",
	ProviderOpenAI:   "https://api.openai.com/v1/chat/completions",
	ProviderDeepSeek: "https://api.deepseek.com/v1/chat/completions",
}

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("llm client not configured")

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// FromConfig builds a client config from the app settings.
func FromConfig(cfg config.LLMConfig, timeout time.Duration) ClientConfig {
	return ClientConfig{
		Provider:    Provider(cfg.Provider),
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   256,
		Temperature: 0,
		Timeout:     timeout,
	}
}

// Client is the LLM API client
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new LLM client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Provider]
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Complete sends a completion request to the LLM
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	var payload any
	headers := map[string]string{"Content-Type": "application/json"}
	textPath := "choices.0.message.content"

	switch c.config.Provider {
	case ProviderClaude:
		payload = claudeRequest{
			Model:       c.config.Model,
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
			System:      systemPrompt,
			Messages:    []Message{{Role: "user", Content: userPrompt}},
		}
		headers["x-api-key"] = c.config.APIKey
		headers["anthropic-version"] = "2023-06-01"
		textPath = "content.0.text"
	case ProviderOpenAI, ProviderDeepSeek:
		payload = openAIRequest{
			Model: c.config.Model,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		}
		headers["Authorization"] = "Bearer " + c.config.APIKey
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}

	body, err := c.post(ctx, payload, headers)
	if err != nil {
		return "", err
	}

	if e := gjson.GetBytes(body, "error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return "", fmt.Errorf("API error: %s", msg)
	}
	text := gjson.GetBytes(body, textPath)
	if !text.Exists() || strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("empty response from %s", c.config.Provider)
	}
	return text.String(), nil
}

func (c *Client) post(ctx context.Context, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d: %s", c.config.Provider, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetProvider returns the configured provider
func (c *Client) GetProvider() Provider {
	return c.config.Provider
}

// IsConfigured checks if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
