package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// KV is the durable key-value interface all engine state is persisted
// through. Values are JSON blobs; the backend is swappable.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Key builders. All engine state is namespaced per tenant, agent state
// additionally per agent type.

// ManagerKey is the key for a tenant's orchestrator state.
func ManagerKey(tenantID string) string { return "manager:" + tenantID }

// PlanKey is the key for a tenant's current plan.
func PlanKey(tenantID string) string { return "plan:" + tenantID }

// AgentKey is the key for one agent's durable state.
func AgentKey(tenantID, agentType string) string {
	return "agent:" + tenantID + ":" + agentType
}

// StaffKey is the key for a tenant's agent instance registry.
func StaffKey(tenantID string) string { return "staff:" + tenantID }

// GetJSON loads and unmarshals the value at key into v.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and stores it at key.
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, data)
}
