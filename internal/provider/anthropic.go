package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Anthropic implements Provider for the Claude Messages API.
type Anthropic struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewAnthropic creates a new Anthropic provider.
func NewAnthropic(cfg Config, logger *zap.Logger) *Anthropic {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	return &Anthropic{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *Anthropic) ID() string   { return p.config.ID }
func (p *Anthropic) Name() string { return p.config.Name }

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string         `json:"model"`
	Messages  []anthropicMsg `json:"messages"`
	System    string         `json:"system,omitempty"`
	MaxTokens int            `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate sends a non-streaming request to Claude and returns the reply text.
func (p *Anthropic) Generate(ctx context.Context, system, user string, history []Turn) (string, error) {
	msgs := make([]anthropicMsg, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, anthropicMsg{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, anthropicMsg{Role: "user", Content: user})

	body, err := json.Marshal(anthropicRequest{
		Model:     p.config.Model,
		Messages:  msgs,
		System:    system,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var claudeResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(claudeResp.Content) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return claudeResp.Content[0].Text, nil
}
