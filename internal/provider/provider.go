// Package provider is the language-model gateway: HTTP clients for the
// supported LLM APIs plus a fallback chain that always produces a reply.
package provider

import (
	"context"
	"time"
)

// Turn is one prior message in a conversation, passed as model context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a single LLM backend.
type Provider interface {
	ID() string
	Name() string
	Generate(ctx context.Context, system, user string, history []Turn) (string, error)
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Model    string            `json:"model"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
}
