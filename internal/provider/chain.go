package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultCallTimeout = 30 * time.Second

// Chain tries providers in a fixed order and falls back to a canned
// keyword reply when every provider fails, so Generate never returns an
// error. Every provider call runs under its own deadline.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewChain builds a chain over the given providers, tried in order.
func NewChain(providers []Provider, timeout time.Duration, logger *zap.Logger) *Chain {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Chain{providers: providers, timeout: timeout, logger: logger}
}

// Generate returns the first successful provider reply, or a canned
// reply derived from the user message when all providers fail.
func (c *Chain) Generate(ctx context.Context, system, user string, history []Turn) string {
	for _, p := range c.providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		reply, err := p.Generate(callCtx, system, user, history)
		cancel()
		if err == nil && reply != "" {
			return reply
		}
		c.logger.Warn("provider failed, trying next",
			zap.String("provider", p.ID()), zap.Error(err))
	}
	return cannedReply(user)
}

// cannedReply is the final fallback: a fixed response chosen by keyword
// so the caller always gets something actionable back.
func cannedReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "post") || strings.Contains(lower, "social"):
		return "I can help you create and schedule social media content. Tell me the topic and platforms and I'll draft a post."
	case strings.Contains(lower, "email") || strings.Contains(lower, "campaign"):
		return "I can help you put together an email campaign. Share the audience and goal and I'll outline it."
	case strings.Contains(lower, "lead") || strings.Contains(lower, "follow"):
		return "I can help you prioritize leads and draft follow-ups. Let me know which contacts you want to focus on."
	case strings.Contains(lower, "support") || strings.Contains(lower, "help"):
		return "I'm here to help. Describe the issue and I'll either answer directly or open a ticket for you."
	default:
		return "I'm your marketing assistant. I can handle social posts, email campaigns, lead follow-ups and support questions."
	}
}
