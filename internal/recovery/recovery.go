// Package recovery tracks per-context failure counters against configured
// budgets and decides between asking again, escalating to the numbered
// menu, and transferring to a human.
package recovery

import "bookline/agent/internal/sessions"

// Context names one recoverable failure context. Counters are monotone
// within a context until success resets them or an escalation fires.
type Context string

const (
	CtxName       Context = "name"
	CtxPhone      Context = "phone"
	CtxSlot       Context = "slot"
	CtxPreference Context = "preference"
	CtxSilence    Context = "silence"
	CtxNoise      Context = "noise"
	CtxUnclear    Context = "unclear"
	CtxFAQNoMatch Context = "faq_no_match"
	CtxRouter     Context = "router"
)

// Action is the policy decision after a failure.
type Action int

const (
	// ActionRetry asks again with the attempt-numbered clarification.
	ActionRetry Action = iota
	// ActionEscalate routes to the numbered menu.
	ActionEscalate
	// ActionTransfer hands off to a human. Only the router context reaches
	// this directly; everywhere else escalates to the menu first.
	ActionTransfer
)

// Decision carries the action plus the attempt number for message choice.
type Decision struct {
	Action  Action
	Attempt int
}

// Config holds the per-context budgets.
type Config struct {
	MaxRetries      int // per qualification/clarification context
	MaxNoise        int
	MaxSilence      int
	MaxRouterVisits int
}

// Policy applies budgets to a session's counters.
type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

func (p *Policy) budget(ctx Context) int {
	switch ctx {
	case CtxNoise:
		return p.cfg.MaxNoise
	case CtxSilence:
		return p.cfg.MaxSilence
	case CtxRouter:
		return p.cfg.MaxRouterVisits
	default:
		return p.cfg.MaxRetries
	}
}

// Step records one failure in ctx and returns the decision. The counter is
// left at its incremented value on retry and cleared on escalation so the
// next visit to the context starts fresh.
func (p *Policy) Step(s *sessions.Session, ctx Context) Decision {
	if s.Recovery == nil {
		s.Recovery = map[string]int{}
	}
	s.Recovery[string(ctx)]++
	n := s.Recovery[string(ctx)]
	if n <= p.budget(ctx) {
		return Decision{Action: ActionRetry, Attempt: n}
	}
	s.Recovery[string(ctx)] = 0
	if ctx == CtxRouter {
		return Decision{Action: ActionTransfer, Attempt: n}
	}
	return Decision{Action: ActionEscalate, Attempt: n}
}

// Succeed clears the context counter after a successful exchange.
func (p *Policy) Succeed(s *sessions.Session, ctx Context) {
	if s.Recovery != nil {
		delete(s.Recovery, string(ctx))
	}
}

// Count reports the current counter for a context.
func (p *Policy) Count(s *sessions.Session, ctx Context) int {
	if s.Recovery == nil {
		return 0
	}
	return s.Recovery[string(ctx)]
}
