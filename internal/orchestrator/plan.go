package orchestrator

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreatePlan decomposes a complex goal into ordered steps. Keyword
// families are applied independently, not first-match: a goal touching
// social, email and sales produces three steps, in that fixed order.
// When no family matches, a single support step is appended.
func CreatePlan(goal string) *Plan {
	lower := strings.ToLower(goal)
	var steps []PlanStep

	if containsAny(lower, "post", "social") {
		steps = append(steps, PlanStep{
			ID:          uuid.New().String(),
			Description: "Create social media content",
			AgentType:   "social-media",
			Action:      "create_post",
			Params:      map[string]any{"topic": goal},
			Status:      StepPending,
		})
	}
	if strings.Contains(lower, "email") {
		steps = append(steps, PlanStep{
			ID:          uuid.New().String(),
			Description: "Prepare email campaign",
			AgentType:   "email-marketing",
			Action:      "create_campaign",
			Params:      map[string]any{"name": goal},
			Status:      StepPending,
		})
	}
	if containsAny(lower, "lead", "follow") {
		steps = append(steps, PlanStep{
			ID:          uuid.New().String(),
			Description: "Follow up with leads",
			AgentType:   "sales",
			Action:      "follow_up",
			Params:      map[string]any{"contact": "warm leads"},
			Status:      StepPending,
		})
	}
	if len(steps) == 0 {
		steps = append(steps, PlanStep{
			ID:          uuid.New().String(),
			Description: "Handle request",
			AgentType:   "customer-support",
			Action:      "answer_question",
			Params:      map[string]any{"question": goal},
			Status:      StepPending,
		})
	}

	return &Plan{
		ID:        uuid.New().String(),
		Goal:      goal,
		Steps:     steps,
		Status:    PlanPlanning,
		CreatedAt: time.Now().UTC(),
	}
}
