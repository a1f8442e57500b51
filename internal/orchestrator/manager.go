// Package orchestrator hosts the per-tenant manager actor: it classifies
// inbound messages, delegates single-step requests to the dispatcher and
// decomposes complex ones into ordered plans.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/actor"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/capability"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/dispatch"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/provider"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/store"
)

// ErrNotInitialized is returned for tenants that never ran Init.
var ErrNotInitialized = errors.New("tenant not initialized")

// ErrNoPlan is returned when a plan operation finds no current plan.
var ErrNoPlan = errors.New("no current plan")

const defaultStepTimeout = 60 * time.Second

const managerPrompt = "You are the manager of an AI marketing team for %s. Answer briefly and point the user at what the team can do: social posts, email campaigns, lead follow-ups, customer support and CRM operations."

// Orchestrator owns every tenant's manager state. Each tenant's
// operations run on a single-writer shard, so load-mutate-persist
// against one tenant never interleaves.
type Orchestrator struct {
	registry   *capability.Registry
	dispatcher *dispatch.Dispatcher
	chain      *provider.Chain
	kv         store.KV
	shards     *actor.Shards

	mu     sync.RWMutex
	states map[string]*ManagerState
	plans  map[string]*Plan

	stepTimeout time.Duration
	logger      *zap.Logger
}

// New creates the orchestrator.
func New(registry *capability.Registry, dispatcher *dispatch.Dispatcher, chain *provider.Chain, kv store.KV, stepTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	return &Orchestrator{
		registry:    registry,
		dispatcher:  dispatcher,
		chain:       chain,
		kv:          kv,
		shards:      actor.NewShards(),
		states:      make(map[string]*ManagerState),
		plans:       make(map[string]*Plan),
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

// Close stops the tenant shards.
func (o *Orchestrator) Close() {
	o.shards.Close()
}

// Init creates a tenant's manager state with every catalog type active,
// builds the agent team and returns a templated welcome message.
func (o *Orchestrator) Init(ctx context.Context, tenantID, displayName, crmType string) (string, error) {
	var welcome string
	var opErr error
	err := o.shards.Do(ctx, tenantID, func() {
		now := time.Now().UTC()
		state := &ManagerState{
			TenantID:     tenantID,
			DisplayName:  displayName,
			CRMType:      crmType,
			ActiveAgents: o.registry.Types(),
			CreatedAt:    now,
			LastActivity: now,
		}
		if opErr = o.persistState(ctx, state); opErr != nil {
			return
		}
		if _, opErr = o.dispatcher.BuildAgentTeam(ctx, tenantID, state.ActiveAgents); opErr != nil {
			return
		}
		welcome = fmt.Sprintf(
			"Welcome, %s! Your AI marketing team is ready: %d agents covering social, email, sales, support and operations, connected to your %s CRM. What should we work on first?",
			displayName, len(state.ActiveAgents), strings.ToUpper(crmType))
	})
	if err != nil {
		return "", err
	}
	if opErr != nil {
		return "", fmt.Errorf("init tenant %s: %w", tenantID, opErr)
	}
	o.logger.Info("tenant initialized",
		zap.String("tenant", tenantID), zap.String("crm", crmType))
	return welcome, nil
}

// Chat runs one conversation turn: classify, route to exactly one
// handler, record both turns and persist.
func (o *Orchestrator) Chat(ctx context.Context, tenantID, message string, chatCtx map[string]any) (*ChatResponse, error) {
	var resp *ChatResponse
	var opErr error
	err := o.shards.Do(ctx, tenantID, func() {
		resp, opErr = o.chat(ctx, tenantID, message, chatCtx)
	})
	if err != nil {
		return nil, err
	}
	return resp, opErr
}

func (o *Orchestrator) chat(ctx context.Context, tenantID, message string, chatCtx map[string]any) (*ChatResponse, error) {
	state, err := o.loadState(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	state.History = append(state.History, Turn{Role: "user", Content: message, Timestamp: now})

	intent := Classify(message)
	o.logger.Debug("classified intent",
		zap.String("tenant", tenantID), zap.String("intent", string(intent)))

	var resp *ChatResponse
	switch intent {
	case IntentStatus:
		resp = o.handleStatus(ctx, state)
	case IntentComplex:
		resp, err = o.handleComplex(ctx, tenantID, message)
	case IntentGeneral:
		resp = o.handleGeneral(ctx, state, message)
	default:
		resp, err = o.delegate(ctx, state, intent, message, chatCtx)
	}
	if err != nil {
		return nil, err
	}

	state.History = append(state.History, Turn{
		Role:      "assistant",
		Content:   resp.Message,
		Timestamp: time.Now().UTC(),
		AgentID:   resp.DelegatedTo,
	})
	if len(state.History) > historyCap {
		state.History = state.History[len(state.History)-historyCap:]
	}
	state.LastActivity = time.Now().UTC()
	if err := o.persistState(ctx, state); err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) handleStatus(ctx context.Context, state *ManagerState) *ChatResponse {
	staff, err := o.dispatcher.StaffStatus(ctx, state.TenantID)
	if err != nil {
		o.logger.Warn("staff status failed", zap.Error(err))
	}
	active := 0
	for _, inst := range staff {
		if inst.Status == "active" {
			active++
		}
	}
	msg := fmt.Sprintf(
		"Here's where things stand for %s: %d of %d agents active, connected to your %s CRM.",
		state.DisplayName, active, len(staff), strings.ToUpper(state.CRMType))
	if plan := o.currentPlan(ctx, state.TenantID); plan != nil {
		msg += fmt.Sprintf(" Current plan %q is %s with %d steps.", plan.Goal, plan.Status, len(plan.Steps))
	}
	return &ChatResponse{Message: msg}
}

func (o *Orchestrator) handleComplex(ctx context.Context, tenantID, message string) (*ChatResponse, error) {
	plan := CreatePlan(message)
	o.mu.Lock()
	o.plans[tenantID] = plan
	o.mu.Unlock()
	if err := o.persistPlan(ctx, tenantID, plan); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "That's a multi-step request, so I've drafted a plan with %d steps:\n", len(plan.Steps))
	for i, s := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, s.Description, s.AgentType)
	}
	b.WriteString("Say the word and I'll execute it.")
	return &ChatResponse{Message: b.String(), Plan: plan.clone()}, nil
}

func (o *Orchestrator) handleGeneral(ctx context.Context, state *ManagerState, message string) *ChatResponse {
	system := fmt.Sprintf(managerPrompt, state.DisplayName)
	// The current user turn is already in History; pass only the turns
	// before it as context.
	history := recentTurns(state.History[:len(state.History)-1], 6)
	reply := o.chain.Generate(ctx, system, message, history)
	return &ChatResponse{Message: reply}
}

func (o *Orchestrator) delegate(ctx context.Context, state *ManagerState, intent Intent, message string, chatCtx map[string]any) (*ChatResponse, error) {
	agentType := intentAgent[intent]
	merged := map[string]any{"crmType": state.CRMType}
	for k, v := range chatCtx {
		merged[k] = v
	}
	cr, err := o.dispatcher.Chat(ctx, state.TenantID, agentType, message, merged)
	if err != nil {
		return nil, fmt.Errorf("delegate to %s: %w", agentType, err)
	}
	return &ChatResponse{
		Message:     cr.Message,
		DelegatedTo: agentType,
		Actions:     cr.Actions,
	}, nil
}

// PlanAction executes or cancels the current plan on the tenant's
// shard; any other action returns a snapshot of the plan.
func (o *Orchestrator) PlanAction(ctx context.Context, tenantID, action string) (*Plan, error) {
	var snapshot *Plan
	var opErr error
	err := o.shards.Do(ctx, tenantID, func() {
		switch action {
		case "execute":
			snapshot, opErr = o.executePlan(ctx, tenantID)
		case "cancel":
			o.mu.Lock()
			delete(o.plans, tenantID)
			o.mu.Unlock()
			opErr = store.PutJSON(ctx, o.kv, store.PlanKey(tenantID), (*Plan)(nil))
		default:
			plan := o.currentPlan(ctx, tenantID)
			if plan == nil {
				opErr = ErrNoPlan
				return
			}
			snapshot = plan.clone()
		}
	})
	if err != nil {
		return nil, err
	}
	return snapshot, opErr
}

// ExecutePlan runs every step strictly in order, under its own deadline,
// serialized on the tenant's shard. Step failure never short-circuits
// the loop, and previously completed steps are executed again on a
// re-run. The plan completes only if every step did.
func (o *Orchestrator) ExecutePlan(ctx context.Context, tenantID string) (*Plan, error) {
	var snapshot *Plan
	var opErr error
	err := o.shards.Do(ctx, tenantID, func() {
		snapshot, opErr = o.executePlan(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return snapshot, opErr
}

// executePlan is the shard-side body of ExecutePlan. Callers must
// already hold the tenant's shard.
func (o *Orchestrator) executePlan(ctx context.Context, tenantID string) (*Plan, error) {
	plan := o.currentPlan(ctx, tenantID)
	if plan == nil {
		return nil, ErrNoPlan
	}

	o.setPlan(ctx, tenantID, plan, func() { plan.Status = PlanExecuting })

	for i := range plan.Steps {
		step := &plan.Steps[i]
		o.setPlan(ctx, tenantID, plan, func() {
			step.Status = StepInProgress
			step.Result = nil
			step.Error = ""
		})

		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		res := o.dispatcher.ExecuteAction(stepCtx, tenantID, step.AgentType, step.Action, step.Params)
		cancel()

		o.setPlan(ctx, tenantID, plan, func() {
			if res.Success {
				step.Status = StepCompleted
				step.Result = res.Result
			} else {
				step.Status = StepFailed
				step.Error = res.Error
			}
		})
		o.logger.Info("plan step finished",
			zap.String("tenant", tenantID),
			zap.String("step", step.Description),
			zap.Bool("success", res.Success))
	}

	o.setPlan(ctx, tenantID, plan, func() {
		plan.Status = PlanCompleted
		for _, s := range plan.Steps {
			if s.Status != StepCompleted {
				plan.Status = PlanFailed
				break
			}
		}
	})
	return plan.clone(), nil
}

// Status returns the manager state (reloaded from storage on cache miss)
// and the current plan. The view is a deep copy; it never aliases the
// live actor state.
func (o *Orchestrator) Status(ctx context.Context, tenantID string) (*StatusView, error) {
	var view *StatusView
	var opErr error
	err := o.shards.Do(ctx, tenantID, func() {
		var state *ManagerState
		state, opErr = o.loadState(ctx, tenantID)
		if opErr != nil {
			return
		}
		view = &StatusView{
			State: state.clone(),
			Plan:  o.currentPlan(ctx, tenantID).clone(),
		}
	})
	if err != nil {
		return nil, err
	}
	return view, opErr
}

// loadState returns the cached state or reloads it from storage.
func (o *Orchestrator) loadState(ctx context.Context, tenantID string) (*ManagerState, error) {
	o.mu.RLock()
	state, ok := o.states[tenantID]
	o.mu.RUnlock()
	if ok {
		return state, nil
	}

	state = &ManagerState{}
	err := store.GetJSON(ctx, o.kv, store.ManagerKey(tenantID), state)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, tenantID)
	}
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.states[tenantID] = state
	o.mu.Unlock()
	return state, nil
}

func (o *Orchestrator) persistState(ctx context.Context, state *ManagerState) error {
	o.mu.Lock()
	o.states[state.TenantID] = state
	o.mu.Unlock()
	return store.PutJSON(ctx, o.kv, store.ManagerKey(state.TenantID), state)
}

// currentPlan returns the live cached plan, reloading from storage on
// miss. Callers must hold the tenant's shard and clone before letting
// the plan escape it.
func (o *Orchestrator) currentPlan(ctx context.Context, tenantID string) *Plan {
	o.mu.RLock()
	plan, ok := o.plans[tenantID]
	o.mu.RUnlock()
	if ok {
		return plan
	}

	var loaded *Plan
	if err := store.GetJSON(ctx, o.kv, store.PlanKey(tenantID), &loaded); err != nil || loaded == nil {
		return nil
	}
	o.mu.Lock()
	o.plans[tenantID] = loaded
	o.mu.Unlock()
	return loaded
}

// setPlan applies a mutation and persists the plan, best-effort.
func (o *Orchestrator) setPlan(ctx context.Context, tenantID string, plan *Plan, mutate func()) {
	mutate()
	if err := o.persistPlan(ctx, tenantID, plan); err != nil {
		o.logger.Warn("plan persist failed", zap.String("tenant", tenantID), zap.Error(err))
	}
}

func (o *Orchestrator) persistPlan(ctx context.Context, tenantID string, plan *Plan) error {
	o.mu.Lock()
	o.plans[tenantID] = plan
	o.mu.Unlock()
	return store.PutJSON(ctx, o.kv, store.PlanKey(tenantID), plan)
}

func recentTurns(history []Turn, n int) []provider.Turn {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	out := make([]provider.Turn, 0, len(history)-start)
	for _, t := range history[start:] {
		out = append(out, provider.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}
