package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Per-type executors. Each is a pure function over (action, params,
// knowledge lookup); result shapes are action-specific and only need to
// be JSON-serializable. Actions permitted by the catalog but without a
// branch here fall through to genericResult.

func (d *Dispatcher) execSocial(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "create_post":
		topic := strParam(params, "topic", "our latest update")
		content := fmt.Sprintf("✨ %s — here's what you need to know.", topic)
		if snippet := d.topSnippet(ctx, topic); snippet != "" {
			content = fmt.Sprintf("✨ %s\n\n%s", topic, snippet)
		}
		return map[string]any{
			"content":  content,
			"platform": strParam(params, "platform", "instagram"),
			"status":   "draft",
		}, nil
	case "schedule_content":
		when := strParam(params, "scheduled_for", time.Now().UTC().Add(24*time.Hour).Format(time.RFC3339))
		return map[string]any{
			"platform":      strParam(params, "platform", "instagram"),
			"scheduled_for": when,
			"status":        "scheduled",
		}, nil
	case "analyze_engagement":
		return map[string]any{
			"period":          strParam(params, "period", "7d"),
			"top_platform":    "instagram",
			"engagement_rate": "4.2%",
			"recommendation":  "Post between 11am and 1pm for best reach.",
		}, nil
	case "suggest_hashtags":
		topic := strParam(params, "topic", "marketing")
		tag := strings.ReplaceAll(strings.ToLower(topic), " ", "")
		return map[string]any{
			"hashtags": []string{"#" + tag, "#smallbusiness", "#growth", "#marketing"},
		}, nil
	default:
		return genericResult(action), nil
	}
}

func (d *Dispatcher) execEmail(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "create_campaign":
		name := strParam(params, "name", "Untitled campaign")
		return map[string]any{
			"name":    name,
			"subject": strParam(params, "subject", name),
			"status":  "draft",
		}, nil
	case "send_email":
		to := strParam(params, "to", "")
		if to == "" {
			to = "segment:all-contacts"
		}
		return map[string]any{
			"to":      to,
			"subject": strParam(params, "subject", "A note from the team"),
			"status":  "queued",
		}, nil
	case "create_sequence":
		return map[string]any{
			"name": strParam(params, "name", "Nurture sequence"),
			"steps": []map[string]any{
				{"day": 0, "subject": "Welcome!"},
				{"day": 3, "subject": "Here's how we can help"},
				{"day": 7, "subject": "Ready for the next step?"},
			},
			"status": "draft",
		}, nil
	case "analyze_performance":
		return map[string]any{
			"open_rate":      "31.5%",
			"click_rate":     "4.8%",
			"recommendation": "Shorter subject lines improved opens last month.",
		}, nil
	default:
		return genericResult(action), nil
	}
}

func (d *Dispatcher) execSales(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "qualify_lead":
		lead := strParam(params, "lead", "unknown")
		return map[string]any{
			"lead":      lead,
			"score":     72,
			"qualified": true,
			"notes":     "Engaged with two campaigns in the last week.",
		}, nil
	case "follow_up":
		contact := strParam(params, "contact", "lead")
		return map[string]any{
			"contact": contact,
			"message": fmt.Sprintf("Hi %s, just checking in on our last conversation — any questions I can answer?", contact),
			"status":  "drafted",
		}, nil
	case "create_proposal":
		return map[string]any{
			"client":   strParam(params, "client", "prospect"),
			"sections": []string{"Overview", "Scope", "Pricing", "Timeline"},
			"status":   "draft",
		}, nil
	case "suggest_followups":
		return map[string]any{
			"contacts": []map[string]any{
				{"contact": "Jordan Lee", "priority": 1, "reason": "Opened proposal twice, no reply"},
				{"contact": "Sam Ortiz", "priority": 2, "reason": "Asked for pricing last week"},
				{"contact": "Casey Kim", "priority": 3, "reason": "Trial ends in 3 days"},
			},
		}, nil
	default:
		return genericResult(action), nil
	}
}

func (d *Dispatcher) execSupport(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "answer_question":
		question := strParam(params, "question", "")
		answer := "Let me look into that and get back to you."
		if snippet := d.topSnippet(ctx, question); snippet != "" {
			answer = snippet
		}
		return map[string]any{
			"question": question,
			"answer":   answer,
		}, nil
	case "create_ticket":
		return map[string]any{
			"ticket_id": uuid.New().String(),
			"summary":   strParam(params, "summary", "Customer issue"),
			"status":    "open",
		}, nil
	case "escalate_issue":
		return map[string]any{
			"ticket_id":    strParam(params, "ticket_id", ""),
			"escalated_to": "account-manager",
			"status":       "escalated",
		}, nil
	default:
		return genericResult(action), nil
	}
}

func (d *Dispatcher) execOperations(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "generate_report":
		return map[string]any{
			"report":     strParam(params, "kind", "weekly-summary"),
			"highlights": []string{"3 campaigns sent", "12 leads followed up", "engagement up 6%"},
			"status":     "generated",
		}, nil
	case "sync_data":
		return map[string]any{
			"source": strParam(params, "source", "crm"),
			"status": "synced",
		}, nil
	case "manage_workflow":
		return map[string]any{
			"workflow": strParam(params, "workflow", "default"),
			"status":   "updated",
		}, nil
	default:
		// sync_crm lands here: permitted by the catalog, no branch yet.
		return genericResult(action), nil
	}
}

// genericResult is the fallback shape for permitted actions that no
// executor handles specifically.
func genericResult(action string) map[string]any {
	return map[string]any{
		"action": action,
		"status": "completed",
	}
}

// topSnippet returns the best knowledge snippet for a query, or "".
func (d *Dispatcher) topSnippet(ctx context.Context, query string) string {
	if d.kb == nil || query == "" {
		return ""
	}
	snippets, err := d.kb.Query(ctx, query, 1)
	if err != nil || len(snippets) == 0 {
		return ""
	}
	return snippets[0].Content
}

func strParam(params map[string]any, key, fallback string) string {
	if params == nil {
		return fallback
	}
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
