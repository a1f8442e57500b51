package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
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

type echoProvider struct{}

func (echoProvider) ID() string   { return "echo" }
func (echoProvider) Name() string { return "echo" }
func (echoProvider) Generate(_ context.Context, _, user string, _ []provider.Turn) (string, error) {
	return "echo: " + user, nil
}

func newOrchestrator(t *testing.T) (*Orchestrator, *agentstate.Agents) {
	t.Helper()
	logger := zap.NewNop()
	kv := store.NewMemory()
	reg := capability.NewRegistry(capability.Builtin())
	agents := agentstate.New(kv, reg, logger)
	t.Cleanup(agents.Close)

	chain := provider.NewChain([]provider.Provider{echoProvider{}}, time.Second, logger)
	kb := knowledge.NewStatic(nil)
	d := dispatch.New(reg, chain, kb, agents, kv, logger)
	o := New(reg, d, chain, kv, time.Second, logger)
	t.Cleanup(o.Close)
	return o, agents
}

func TestInitAndStatusChat(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)

	welcome, err := o.Init(ctx, "t1", "Acme", "ghl")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(welcome, "Acme") || !strings.Contains(welcome, "GHL") {
		t.Errorf("welcome = %q", welcome)
	}

	resp, err := o.Chat(ctx, "t1", "what's my status", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(resp.Message, "GHL") {
		t.Errorf("status reply missing upper-cased CRM: %q", resp.Message)
	}
	if resp.DelegatedTo != "" {
		t.Errorf("status handled by manager, not delegated: %q", resp.DelegatedTo)
	}
}

func TestChatNotInitialized(t *testing.T) {
	o, _ := newOrchestrator(t)
	if _, err := o.Chat(context.Background(), "ghost", "hi", nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("got %v, want ErrNotInitialized", err)
	}
}

func TestChatDelegation(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "hubspot"); err != nil {
		t.Fatalf("init: %v", err)
	}

	resp, err := o.Chat(ctx, "t1", "write an instagram caption", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.DelegatedTo != "social-media" {
		t.Errorf("delegated to %q", resp.DelegatedTo)
	}

	// The assistant turn carries the delegate's id.
	view, _ := o.Status(ctx, "t1")
	last := view.State.History[len(view.State.History)-1]
	if last.Role != "assistant" || last.AgentID != "social-media" {
		t.Errorf("last turn = %+v", last)
	}
}

func TestComplexChatCreatesPlan(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}

	resp, err := o.Chat(ctx, "t1", "post about our sale and then follow up with leads", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Plan == nil {
		t.Fatal("no plan on complex chat")
	}
	if len(resp.Plan.Steps) != 2 {
		t.Fatalf("plan steps = %d, want 2", len(resp.Plan.Steps))
	}
	if resp.Plan.Steps[0].AgentType != "social-media" || resp.Plan.Steps[1].AgentType != "sales" {
		t.Errorf("step order: %s, %s", resp.Plan.Steps[0].AgentType, resp.Plan.Steps[1].AgentType)
	}
}

func TestExecutePlanContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "post about launch and then follow up with leads", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	plan := o.currentPlan(ctx, "t1")
	// Force the first step through the capability gate rejection.
	plan.Steps[0].Action = "send_email"

	done, err := o.ExecutePlan(ctx, "t1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if done.Steps[0].Status != StepFailed {
		t.Errorf("step 0 = %s, want failed", done.Steps[0].Status)
	}
	if done.Steps[1].Status != StepCompleted {
		t.Errorf("step 1 = %s, want completed (no short-circuit)", done.Steps[1].Status)
	}
	if done.Status != PlanFailed {
		t.Errorf("plan = %s, want failed", done.Status)
	}
}

func TestExecutePlanReRunsCompletedSteps(t *testing.T) {
	ctx := context.Background()
	o, agents := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "post about launch and then follow up with leads", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if _, err := o.ExecutePlan(ctx, "t1"); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	done, err := o.ExecutePlan(ctx, "t1")
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if done.Status != PlanCompleted {
		t.Errorf("plan = %s", done.Status)
	}

	// Both runs executed both steps: 2 actions per agent, not 1.
	mv, _ := agents.Metrics(ctx, "t1", "social-media")
	if mv.Metrics.TotalActions != 2 {
		t.Errorf("social actions = %d, want 2 (steps re-run, no skip guard)", mv.Metrics.TotalActions)
	}
}

func TestPlanActionCancelAndSnapshot(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "post about launch and then follow up", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	snap, err := o.PlanAction(ctx, "t1", "view")
	if err != nil || snap == nil {
		t.Fatalf("snapshot: %v, %v", snap, err)
	}

	if _, err := o.PlanAction(ctx, "t1", "cancel"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := o.PlanAction(ctx, "t1", "view"); !errors.Is(err, ErrNoPlan) {
		t.Errorf("got %v, want ErrNoPlan after cancel", err)
	}
}

func TestHistoryCap(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}

	for i := 0; i < 30; i++ {
		if _, err := o.Chat(ctx, "t1", fmt.Sprintf("note %d", i), nil); err != nil {
			t.Fatalf("chat %d: %v", i, err)
		}
	}
	view, err := o.Status(ctx, "t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(view.State.History) != historyCap {
		t.Errorf("history = %d, want %d", len(view.State.History), historyCap)
	}
	// Oldest evicted first: turn 0 is gone, latest note survives.
	first := view.State.History[0]
	if first.Content == "note 0" || first.Content == "echo: note 0" {
		t.Errorf("oldest turn not evicted: %q", first.Content)
	}
	last := view.State.History[len(view.State.History)-1]
	if !strings.Contains(last.Content, "note 29") {
		t.Errorf("latest turn missing: %q", last.Content)
	}
}

func TestStatusViewDoesNotAliasLiveState(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "post about launch and then follow up with leads", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	view, err := o.Status(ctx, "t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Plan == nil {
		t.Fatal("no plan in view")
	}
	turns := len(view.State.History)

	if _, err := o.ExecutePlan(ctx, "t1"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "hello", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// The view is a snapshot: later execution and chat turns must not
	// show through it.
	if got := view.Plan.Steps[0].Status; got != StepPending {
		t.Errorf("view step status = %s, want pending", got)
	}
	if len(view.State.History) != turns {
		t.Errorf("view history grew from %d to %d", turns, len(view.State.History))
	}
}

func TestConcurrentStatusDuringExecute(t *testing.T) {
	ctx := context.Background()
	o, _ := newOrchestrator(t)
	if _, err := o.Init(ctx, "t1", "Acme", "ghl"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := o.Chat(ctx, "t1", "post about launch and then follow up with leads", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// Encode status views while the plan executes; the views are deep
	// copies, so encoding never reads a step mid-write.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			view, err := o.Status(ctx, "t1")
			if err != nil {
				t.Errorf("status: %v", err)
				return
			}
			if _, err := json.Marshal(view); err != nil {
				t.Errorf("marshal: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		if _, err := o.ExecutePlan(ctx, "t1"); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStatusReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	kv := store.NewMemory()
	reg := capability.NewRegistry(capability.Builtin())
	agents := agentstate.New(kv, reg, logger)
	defer agents.Close()
	chain := provider.NewChain(nil, time.Second, logger)
	d := dispatch.New(reg, chain, knowledge.NewStatic(nil), agents, kv, logger)

	o1 := New(reg, d, chain, kv, time.Second, logger)
	if _, err := o1.Init(ctx, "t1", "Acme", "vbout"); err != nil {
		t.Fatalf("init: %v", err)
	}
	o1.Close()

	// Fresh orchestrator over the same store: cache miss, reload.
	o2 := New(reg, d, chain, kv, time.Second, logger)
	defer o2.Close()
	view, err := o2.Status(ctx, "t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.State.CRMType != "vbout" || view.State.DisplayName != "Acme" {
		t.Errorf("reloaded state: %+v", view.State)
	}
}
