package recovery

import (
	"testing"
	"time"

	"bookline/agent/internal/sessions"
)

func testPolicy() *Policy {
	return New(Config{MaxRetries: 2, MaxNoise: 3, MaxSilence: 3, MaxRouterVisits: 2})
}

func TestRetryBudgetThenEscalate(t *testing.T) {
	p := testPolicy()
	s := sessions.New("t", "c", "voice", time.Now())

	d := p.Step(s, CtxName)
	if d.Action != ActionRetry || d.Attempt != 1 {
		t.Fatalf("first failure should retry attempt 1, got %+v", d)
	}
	d = p.Step(s, CtxName)
	if d.Action != ActionRetry || d.Attempt != 2 {
		t.Fatalf("second failure should retry attempt 2, got %+v", d)
	}
	d = p.Step(s, CtxName)
	if d.Action != ActionEscalate {
		t.Fatalf("third failure should escalate to the menu, got %+v", d)
	}
	if p.Count(s, CtxName) != 0 {
		t.Fatal("escalation must clear the counter")
	}
}

func TestNoiseBudgetEscalatesToMenuNotTransfer(t *testing.T) {
	p := testPolicy()
	s := sessions.New("t", "c", "voice", time.Now())

	var d Decision
	for i := 0; i < 4; i++ {
		d = p.Step(s, CtxNoise)
	}
	if d.Action != ActionEscalate {
		t.Fatalf("noise overflow must escalate to the menu, got %+v", d)
	}
}

func TestRouterOverflowTransfers(t *testing.T) {
	p := testPolicy()
	s := sessions.New("t", "c", "voice", time.Now())

	var d Decision
	for i := 0; i < 3; i++ {
		d = p.Step(s, CtxRouter)
	}
	if d.Action != ActionTransfer {
		t.Fatalf("router overflow must transfer, got %+v", d)
	}
}

func TestSucceedResets(t *testing.T) {
	p := testPolicy()
	s := sessions.New("t", "c", "voice", time.Now())

	p.Step(s, CtxPhone)
	p.Step(s, CtxPhone)
	p.Succeed(s, CtxPhone)
	if p.Count(s, CtxPhone) != 0 {
		t.Fatal("success must reset the counter")
	}
	// Counter starts over, full budget again.
	if d := p.Step(s, CtxPhone); d.Action != ActionRetry || d.Attempt != 1 {
		t.Fatalf("expected fresh retry after success, got %+v", d)
	}
}

func TestContextsAreIndependent(t *testing.T) {
	p := testPolicy()
	s := sessions.New("t", "c", "voice", time.Now())

	p.Step(s, CtxName)
	p.Step(s, CtxName)
	if d := p.Step(s, CtxSlot); d.Action != ActionRetry || d.Attempt != 1 {
		t.Fatalf("slot context must not inherit name failures, got %+v", d)
	}
}
