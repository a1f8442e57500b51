// Package dispatch resolves (agentType, action) pairs to executors and
// runs agent chats through the language-model gateway. Capability gating
// happens here, before any side effect.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/agentstate"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/capability"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/knowledge"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/provider"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/store"
)

// Result is the structured outcome of ExecuteAction. Errors are carried
// in-band; the method itself only fails on storage problems.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`

	rejected bool
}

// Rejected reports whether the failure was a configuration rejection
// (unknown type or ungranted capability) rather than an execution error.
// Rejections mutate no state and are not worth retrying.
func (r Result) Rejected() bool { return r.rejected }

// ChatResult is an agent reply plus cosmetic suggested actions derived
// from the reply text.
type ChatResult struct {
	Message string   `json:"message"`
	Actions []string `json:"actions,omitempty"`
}

// Instance is one agent's entry in a tenant's staff registry.
type Instance struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	LastAction     string    `json:"last_action"`
	LastActionTime time.Time `json:"last_action_time"`
	Capabilities   []string  `json:"capabilities"`
}

// Dispatcher routes chats and actions to capability-bound agents.
type Dispatcher struct {
	registry *capability.Registry
	chain    *provider.Chain
	kb       knowledge.Lookup
	agents   *agentstate.Agents
	kv       store.KV

	mu    sync.RWMutex
	cache map[string][]Instance

	logger *zap.Logger
}

// New creates a Dispatcher.
func New(registry *capability.Registry, chain *provider.Chain, kb knowledge.Lookup, agents *agentstate.Agents, kv store.KV, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		chain:    chain,
		kb:       kb,
		agents:   agents,
		kv:       kv,
		cache:    make(map[string][]Instance),
		logger:   logger,
	}
}

// BuildAgentTeam constructs an Instance for every requested type present
// in the catalog and persists the tenant's full staff list.
func (d *Dispatcher) BuildAgentTeam(ctx context.Context, tenantID string, types []string) ([]Instance, error) {
	now := time.Now().UTC()
	var staff []Instance
	for _, t := range types {
		tmpl, ok := d.registry.Get(t)
		if !ok {
			d.logger.Warn("skipping unknown agent type", zap.String("type", t))
			continue
		}
		staff = append(staff, Instance{
			ID:             uuid.New().String(),
			Type:           tmpl.Type,
			DisplayName:    tmpl.DisplayName,
			Role:           tmpl.Role,
			Status:         "active",
			LastAction:     "Initialized",
			LastActionTime: now,
			Capabilities:   tmpl.Capabilities,
		})
	}
	if err := d.putStaff(ctx, tenantID, staff); err != nil {
		return nil, fmt.Errorf("persist staff for %s: %w", tenantID, err)
	}
	return staff, nil
}

// Chat builds the agent's system prompt (template + knowledge snippets +
// CRM awareness), runs the gateway chain and derives suggested actions.
// The chain never fails, so neither does Chat unless the type is unknown.
func (d *Dispatcher) Chat(ctx context.Context, tenantID, agentType, message string, chatCtx map[string]any) (*ChatResult, error) {
	tmpl, err := d.registry.MustGet(agentType)
	if err != nil {
		return nil, err
	}

	system := tmpl.Prompt
	if d.kb != nil {
		snippets, kbErr := d.kb.Query(ctx, message, 3)
		if kbErr != nil {
			d.logger.Warn("knowledge lookup failed", zap.Error(kbErr))
		} else if len(snippets) > 0 {
			var b strings.Builder
			b.WriteString("\n\nRelevant brand knowledge:\n")
			for _, s := range snippets {
				b.WriteString("- ")
				b.WriteString(s.Content)
				b.WriteString("\n")
			}
			system += b.String()
		}
	}
	if crm, ok := chatCtx["crmType"].(string); ok && crm != "" {
		system += fmt.Sprintf("\n\nThis business runs on %s CRM; tailor any workflow suggestions to it.", strings.ToUpper(crm))
	}

	reply := d.chain.Generate(ctx, system, message, nil)

	if err := d.touchInstance(ctx, tenantID, agentType, "Chat", "active"); err != nil {
		d.logger.Warn("instance update failed", zap.Error(err))
	}

	return &ChatResult{
		Message: reply,
		Actions: suggestActions(reply),
	}, nil
}

// ExecuteAction gates the action against the type's capability list,
// runs the matching executor and records the outcome on the agent actor.
// Gating rejections mutate nothing.
func (d *Dispatcher) ExecuteAction(ctx context.Context, tenantID, agentType, action string, params map[string]any) Result {
	tmpl, ok := d.registry.Get(agentType)
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown agent type: %s", agentType), rejected: true}
	}
	if !d.registry.Allows(agentType, action) {
		return Result{Success: false, Error: fmt.Sprintf("%s doesn't have capability: %s", tmpl.DisplayName, action), rejected: true}
	}

	start := time.Now()
	res, execErr := d.run(ctx, agentType, action, params)
	duration := time.Since(start)

	success := execErr == nil
	recorded := res
	status := "active"
	if !success {
		recorded = execErr.Error()
		status = "error"
	}
	if err := d.agents.RecordAction(ctx, tenantID, agentType, action, params, recorded, success, duration); err != nil {
		d.logger.Error("record action failed", zap.String("action", action), zap.Error(err))
	}
	if err := d.touchInstance(ctx, tenantID, agentType, action, status); err != nil {
		d.logger.Warn("instance update failed", zap.Error(err))
	}

	if !success {
		return Result{Success: false, Error: execErr.Error()}
	}
	return Result{Success: true, Result: res}
}

// run invokes the per-type executor, converting panics into errors.
func (d *Dispatcher) run(ctx context.Context, agentType, action string, params map[string]any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	switch agentType {
	case "social-media":
		return d.execSocial(ctx, action, params)
	case "email-marketing":
		return d.execEmail(ctx, action, params)
	case "sales":
		return d.execSales(ctx, action, params)
	case "customer-support":
		return d.execSupport(ctx, action, params)
	case "operations":
		return d.execOperations(ctx, action, params)
	default:
		return genericResult(action), nil
	}
}

// StaffStatus returns the persisted staff registry, falling back to the
// in-memory cache when storage misses.
func (d *Dispatcher) StaffStatus(ctx context.Context, tenantID string) ([]Instance, error) {
	var staff []Instance
	err := store.GetJSON(ctx, d.kv, store.StaffKey(tenantID), &staff)
	if err == nil {
		return staff, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("staff load failed, using cache", zap.String("tenant", tenantID), zap.Error(err))
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	cached := d.cache[tenantID]
	out := make([]Instance, len(cached))
	copy(out, cached)
	return out, nil
}

func (d *Dispatcher) putStaff(ctx context.Context, tenantID string, staff []Instance) error {
	d.mu.Lock()
	d.cache[tenantID] = staff
	d.mu.Unlock()
	return store.PutJSON(ctx, d.kv, store.StaffKey(tenantID), staff)
}

// touchInstance updates one instance's last action and status in the
// tenant's staff list.
func (d *Dispatcher) touchInstance(ctx context.Context, tenantID, agentType, lastAction, status string) error {
	staff, err := d.StaffStatus(ctx, tenantID)
	if err != nil {
		return err
	}
	changed := false
	for i := range staff {
		if staff[i].Type == agentType {
			staff[i].LastAction = lastAction
			staff[i].LastActionTime = time.Now().UTC()
			staff[i].Status = status
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.putStaff(ctx, tenantID, staff)
}

// suggestActions scans reply text for phrases that map to queueable
// actions. Substring heuristics only; this is cosmetic, not NLU.
func suggestActions(reply string) []string {
	lower := strings.ToLower(reply)
	var actions []string
	if strings.Contains(lower, "schedule") || strings.Contains(lower, "post") {
		actions = append(actions, "schedule_content")
	}
	if strings.Contains(lower, "send") || strings.Contains(lower, "email") {
		actions = append(actions, "send_email")
	}
	if strings.Contains(lower, "follow up") || strings.Contains(lower, "contact") {
		actions = append(actions, "follow_up")
	}
	return actions
}
