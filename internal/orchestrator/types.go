package orchestrator

import "time"

// historyCap bounds a tenant's conversation history.
const historyCap = 50

// Turn is one message in a tenant's conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id,omitempty"`
}

// ManagerState is the durable per-tenant orchestrator state.
type ManagerState struct {
	TenantID     string    `json:"tenant_id"`
	DisplayName  string    `json:"display_name"`
	CRMType      string    `json:"crm_type"`
	History      []Turn    `json:"history"`
	ActiveAgents []string  `json:"active_agents"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// PlanStatus tracks a plan's lifecycle. Completed and failed are terminal.
type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// StepStatus tracks one step's lifecycle. Completed and failed are
// terminal within a single execution pass; a re-run starts steps over.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// PlanStep is one unit of a plan, bound to an agent type and action.
// Steps execute strictly in list order.
type PlanStep struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	AgentType   string         `json:"agent_type"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	Status      StepStatus     `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Plan is an ordered decomposition of a complex request.
type Plan struct {
	ID        string     `json:"id"`
	Goal      string     `json:"goal"`
	Steps     []PlanStep `json:"steps"`
	Status    PlanStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// clone deep-copies the state so readers never share History or
// ActiveAgents backing arrays with the live actor copy.
func (m *ManagerState) clone() *ManagerState {
	if m == nil {
		return nil
	}
	cp := *m
	cp.History = append([]Turn(nil), m.History...)
	cp.ActiveAgents = append([]string(nil), m.ActiveAgents...)
	return &cp
}

// clone deep-copies the plan, including step params. Step results are
// never mutated once set, so they are shared as-is.
func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = make([]PlanStep, len(p.Steps))
	copy(cp.Steps, p.Steps)
	for i := range cp.Steps {
		if src := p.Steps[i].Params; src != nil {
			m := make(map[string]any, len(src))
			for k, v := range src {
				m[k] = v
			}
			cp.Steps[i].Params = m
		}
	}
	return &cp
}

// ChatResponse is the outcome of one orchestrator chat turn.
type ChatResponse struct {
	Message     string   `json:"message"`
	DelegatedTo string   `json:"delegated_to,omitempty"`
	Actions     []string `json:"actions,omitempty"`
	Plan        *Plan    `json:"plan,omitempty"`
}

// StatusView is the read model returned by Status.
type StatusView struct {
	State *ManagerState `json:"state"`
	Plan  *Plan         `json:"plan,omitempty"`
}
