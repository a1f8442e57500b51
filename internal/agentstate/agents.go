package agentstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/actor"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/capability"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/store"
)

// StatusView is the read model returned by Status.
type StatusView struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	Role         string         `json:"role"`
	Status       Status         `json:"status"`
	LastActiveAt time.Time      `json:"last_active_at"`
	RecentActions []ActionRecord `json:"recent_actions"`
}

// MetricsView is the read model returned by Metrics.
type MetricsView struct {
	Metrics     Metrics `json:"metrics"`
	Uptime      string  `json:"uptime"`
	SuccessRate string  `json:"success_rate"`
}

// Agents manages every agent's durable state. All mutation runs on a
// per (tenant, type) shard, so load-mutate-persist never interleaves.
type Agents struct {
	kv       store.KV
	registry *capability.Registry
	shards   *actor.Shards
	logger   *zap.Logger
}

// New creates the agent state manager.
func New(kv store.KV, registry *capability.Registry, logger *zap.Logger) *Agents {
	return &Agents{
		kv:       kv,
		registry: registry,
		shards:   actor.NewShards(),
		logger:   logger,
	}
}

// Close stops the shard goroutines.
func (a *Agents) Close() {
	a.shards.Close()
}

// load returns the stored state, or a fresh active one on first touch.
func (a *Agents) load(ctx context.Context, tenantID, agentType string) (*State, error) {
	var s State
	err := store.GetJSON(ctx, a.kv, store.AgentKey(tenantID, agentType), &s)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		return &State{
			TenantID:     tenantID,
			AgentType:    agentType,
			Status:       StatusActive,
			Config:       make(map[string]any),
			CreatedAt:    now,
			LastActiveAt: now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Config == nil {
		s.Config = make(map[string]any)
	}
	return &s, nil
}

func (a *Agents) persist(ctx context.Context, s *State) error {
	return store.PutJSON(ctx, a.kv, store.AgentKey(s.TenantID, s.AgentType), s)
}

// mutate runs fn against the loaded state on the agent's shard, then persists.
func (a *Agents) mutate(ctx context.Context, tenantID, agentType string, fn func(*State)) error {
	var opErr error
	err := a.shards.Do(ctx, store.AgentKey(tenantID, agentType), func() {
		s, err := a.load(ctx, tenantID, agentType)
		if err != nil {
			opErr = err
			return
		}
		fn(s)
		opErr = a.persist(ctx, s)
	})
	if err != nil {
		return err
	}
	return opErr
}

// RecordAction appends an ActionRecord and updates the derived metrics.
func (a *Agents) RecordAction(ctx context.Context, tenantID, agentType, action string, params map[string]any, result any, success bool, duration time.Duration) error {
	now := time.Now().UTC()
	rec := ActionRecord{
		ID:         uuid.New().String(),
		Action:     action,
		Params:     params,
		Result:     result,
		Success:    success,
		DurationMs: duration.Milliseconds(),
		Timestamp:  now,
	}
	err := a.mutate(ctx, tenantID, agentType, func(s *State) {
		s.record(rec, now)
	})
	if err != nil {
		return fmt.Errorf("record action %s for %s/%s: %w", action, tenantID, agentType, err)
	}
	return nil
}

// Configure shallow-merges partial into the agent's configuration map.
// Unknown keys are kept as-is.
func (a *Agents) Configure(ctx context.Context, tenantID, agentType string, partial map[string]any) error {
	return a.mutate(ctx, tenantID, agentType, func(s *State) {
		for k, v := range partial {
			s.Config[k] = v
		}
	})
}

// Pause marks the agent paused. Status and metrics stay queryable.
func (a *Agents) Pause(ctx context.Context, tenantID, agentType string) error {
	return a.mutate(ctx, tenantID, agentType, func(s *State) {
		s.Status = StatusPaused
	})
}

// Resume marks a paused agent active again.
func (a *Agents) Resume(ctx context.Context, tenantID, agentType string) error {
	return a.mutate(ctx, tenantID, agentType, func(s *State) {
		s.Status = StatusActive
	})
}

// Paused reports whether the agent is currently paused.
func (a *Agents) Paused(ctx context.Context, tenantID, agentType string) (bool, error) {
	s, err := a.read(ctx, tenantID, agentType)
	if err != nil {
		return false, err
	}
	return s.Status == StatusPaused, nil
}

func (a *Agents) read(ctx context.Context, tenantID, agentType string) (*State, error) {
	var s *State
	var opErr error
	err := a.shards.Do(ctx, store.AgentKey(tenantID, agentType), func() {
		s, opErr = a.load(ctx, tenantID, agentType)
	})
	if err != nil {
		return nil, err
	}
	return s, opErr
}

// Status returns the agent's identity, lifecycle state and last 5 actions.
func (a *Agents) Status(ctx context.Context, tenantID, agentType string) (*StatusView, error) {
	s, err := a.read(ctx, tenantID, agentType)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		ID:            tenantID + ":" + agentType,
		Status:        s.Status,
		LastActiveAt:  s.LastActiveAt,
		RecentActions: s.lastRecords(5),
	}
	if tmpl, ok := a.registry.Get(agentType); ok {
		view.DisplayName = tmpl.DisplayName
		view.Role = tmpl.Role
	}
	return view, nil
}

// Metrics returns the agent's counters plus formatted uptime and success rate.
func (a *Agents) Metrics(ctx context.Context, tenantID, agentType string) (*MetricsView, error) {
	s, err := a.read(ctx, tenantID, agentType)
	if err != nil {
		return nil, err
	}
	return &MetricsView{
		Metrics:     s.Metrics,
		Uptime:      formatUptime(time.Since(s.CreatedAt)),
		SuccessRate: successRate(s.Metrics),
	}, nil
}

// successRate formats successful/total as a one-decimal percentage,
// or "0%" before any action ran.
func successRate(m Metrics) string {
	if m.TotalActions == 0 {
		return "0%"
	}
	rate := float64(m.SuccessfulActions) / float64(m.TotalActions) * 100
	return fmt.Sprintf("%.1f%%", rate)
}

func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}
