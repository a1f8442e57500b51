package taskqueue

import (
	"errors"
	"testing"
)

func TestDecideAcksOnSuccess(t *testing.T) {
	msg := &Message{TenantID: "t1", TaskType: "send_email"}
	if v := decide(msg, nil, 5); v != verdictAck {
		t.Errorf("verdict = %d, want ack", v)
	}
	if msg.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 on success", msg.Attempts)
	}
}

func TestDecideRetryBumpsAttempts(t *testing.T) {
	msg := &Message{TenantID: "t1", TaskType: "send_email"}
	if v := decide(msg, errors.New("smtp down"), 5); v != verdictRetry {
		t.Errorf("verdict = %d, want retry", v)
	}
	if msg.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", msg.Attempts)
	}
}

func TestDecideDeadLettersAtCap(t *testing.T) {
	const maxAttempts = 5
	msg := &Message{TenantID: "t1", TaskType: "follow_up"}
	fail := errors.New("crm timeout")

	// A message that never succeeds retries until the cap, then dies on
	// exactly the maxAttempts-th delivery.
	deliveries := 0
	for {
		deliveries++
		v := decide(msg, fail, maxAttempts)
		if v == verdictDead {
			break
		}
		if v != verdictRetry {
			t.Fatalf("delivery %d: verdict = %d, want retry", deliveries, v)
		}
		if deliveries > maxAttempts {
			t.Fatal("message never dead-lettered")
		}
	}
	if deliveries != maxAttempts {
		t.Errorf("dead-lettered after %d deliveries, want %d", deliveries, maxAttempts)
	}
	if msg.Attempts != maxAttempts {
		t.Errorf("attempts = %d, want %d", msg.Attempts, maxAttempts)
	}
}

func TestDecideRecoveryMidway(t *testing.T) {
	msg := &Message{TenantID: "t1", TaskType: "schedule_post"}
	_ = decide(msg, errors.New("flaky"), 5)
	_ = decide(msg, errors.New("flaky"), 5)
	if v := decide(msg, nil, 5); v != verdictAck {
		t.Errorf("verdict = %d, want ack after recovery", v)
	}
	if msg.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", msg.Attempts)
	}
}
