package taskqueue

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/agentstate"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/capability"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/dispatch"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/knowledge"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/provider"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/store"
)

func newConsumer(t *testing.T) (*Consumer, *agentstate.Agents) {
	t.Helper()
	logger := zap.NewNop()
	kv := store.NewMemory()
	reg := capability.NewRegistry(capability.Builtin())
	agents := agentstate.New(kv, reg, logger)
	t.Cleanup(agents.Close)
	chain := provider.NewChain(nil, time.Second, logger)
	d := dispatch.New(reg, chain, knowledge.NewStatic(nil), agents, kv, logger)
	return NewConsumer(d, logger), agents
}

func TestHandleRoutesTask(t *testing.T) {
	ctx := context.Background()
	c, agents := newConsumer(t)

	err := c.Handle(ctx, &Message{
		TenantID: "t1",
		TaskType: "follow_up",
		Params:   map[string]any{"contact": "Jordan"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	mv, _ := agents.Metrics(ctx, "t1", "sales")
	if mv.Metrics.TotalActions != 1 || mv.Metrics.SuccessfulActions != 1 {
		t.Errorf("sales metrics after task: %+v", mv.Metrics)
	}
}

func TestHandleSyncCRMAcks(t *testing.T) {
	// sync_crm has no executor branch; the generic fallback still acks.
	c, _ := newConsumer(t)
	if err := c.Handle(context.Background(), &Message{TenantID: "t1", TaskType: "sync_crm"}); err != nil {
		t.Errorf("sync_crm must ack, got %v", err)
	}
}

func TestHandleUnknownTaskTypeAcks(t *testing.T) {
	c, agents := newConsumer(t)
	if err := c.Handle(context.Background(), &Message{TenantID: "t1", TaskType: "mystery"}); err != nil {
		t.Errorf("unknown task type must ack, got %v", err)
	}
	// Nothing dispatched.
	for _, agentType := range []string{"social-media", "email-marketing", "sales", "operations"} {
		mv, _ := agents.Metrics(context.Background(), "t1", agentType)
		if mv.Metrics.TotalActions != 0 {
			t.Errorf("%s dispatched for unknown task", agentType)
		}
	}
}

func TestHandleAllRoutes(t *testing.T) {
	ctx := context.Background()
	c, agents := newConsumer(t)

	for taskType := range taskRoutes {
		if err := c.Handle(ctx, &Message{TenantID: "t1", TaskType: taskType}); err != nil {
			t.Errorf("handle %s: %v", taskType, err)
		}
	}

	want := map[string]int{
		"social-media":    1,
		"email-marketing": 1,
		"sales":           1,
		"operations":      1,
	}
	for agentType, n := range want {
		mv, _ := agents.Metrics(ctx, "t1", agentType)
		if mv.Metrics.TotalActions != n {
			t.Errorf("%s actions = %d, want %d", agentType, mv.Metrics.TotalActions, n)
		}
	}
}
