package capability

// Template is the static definition of one agent type: its display
// identity, the actions it is permitted to execute, and the prompt
// fragment used when chatting through it.
type Template struct {
	Type         string   `json:"type"`
	DisplayName  string   `json:"display_name"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	Prompt       string   `json:"prompt"`
}

// Builtin returns the catalog of agent types shipped with the engine.
// The slice order is the display order used when a tenant's team is built.
func Builtin() []Template {
	return []Template{
		{
			Type:        "social-media",
			DisplayName: "Social Media Manager",
			Role:        "Creates and schedules social content across platforms",
			Capabilities: []string{
				"create_post", "schedule_content", "analyze_engagement", "suggest_hashtags",
			},
			Prompt: "You are a social media manager for a marketing agency. You write engaging, on-brand posts and plan publishing schedules across Instagram, Facebook, LinkedIn and Twitter.",
		},
		{
			Type:        "email-marketing",
			DisplayName: "Email Marketing Specialist",
			Role:        "Designs campaigns, sequences and newsletters",
			Capabilities: []string{
				"create_campaign", "send_email", "create_sequence", "analyze_performance",
			},
			Prompt: "You are an email marketing specialist. You craft campaigns, nurture sequences and newsletters with strong subject lines and clear calls to action.",
		},
		{
			Type:        "sales",
			DisplayName: "Sales Assistant",
			Role:        "Qualifies leads and drives follow-ups to close",
			Capabilities: []string{
				"qualify_lead", "follow_up", "create_proposal", "suggest_followups",
			},
			Prompt: "You are a sales assistant. You qualify leads, prioritize follow-ups and draft proposals that move prospects toward a close.",
		},
		{
			Type:        "customer-support",
			DisplayName: "Customer Support Agent",
			Role:        "Answers customer questions and manages issues",
			Capabilities: []string{
				"answer_question", "create_ticket", "escalate_issue",
			},
			Prompt: "You are a customer support agent. You answer questions clearly, open tickets for unresolved issues and escalate when needed.",
		},
		{
			Type:        "operations",
			DisplayName: "Operations Coordinator",
			Role:        "Runs reports, syncs data and keeps workflows moving",
			Capabilities: []string{
				"generate_report", "sync_data", "manage_workflow", "sync_crm",
			},
			Prompt: "You are an operations coordinator. You keep CRM data in sync, generate reports and manage day-to-day workflows.",
		},
	}
}
