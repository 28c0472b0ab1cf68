package dialog

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"bookline/agent/internal/calendar"
	"bookline/agent/internal/catalog"
	"bookline/agent/internal/classify"
	"bookline/agent/internal/events"
	"bookline/agent/internal/intent"
	"bookline/agent/internal/recovery"
	"bookline/agent/internal/sessions"
)

// Options are the engine tunables, all sourced from config.
type Options struct {
	SessionTTL      time.Duration
	HistoryTurns    int
	AntiLoopTurns   int
	MaxRouterVisits int
	NoiseCooldown   time.Duration
	MaxInputLen     int

	ConflictRetries     int
	NeighborhoodMinutes int
	ClosingHour         int
	MaxOffersText       int
	MaxConsecRejects    int
	LookaheadDays       int
	CalendarTimeout     time.Duration
}

// Engine is the dialogue orchestrator. All collaborators are injected; the
// engine holds no process-wide mutable state of its own.
type Engine struct {
	store      sessions.Store
	locker     *sessions.Locker
	gateway    calendar.Gateway
	messages   *catalog.Catalog
	faq        *catalog.FAQ
	classifier *classify.Classifier
	policy     *recovery.Policy
	events     *events.Store
	opts       Options
	now        func() time.Time

	handlers map[sessions.State]handlerFunc
}

type handlerFunc func(*Engine, *turnCtx) outcome

// NewEngine wires the orchestrator.
func NewEngine(
	store sessions.Store,
	locker *sessions.Locker,
	gateway calendar.Gateway,
	messages *catalog.Catalog,
	faq *catalog.FAQ,
	classifier *classify.Classifier,
	policy *recovery.Policy,
	ev *events.Store,
	opts Options,
) *Engine {
	e := &Engine{
		store:      store,
		locker:     locker,
		gateway:    gateway,
		messages:   messages,
		faq:        faq,
		classifier: classifier,
		policy:     policy,
		events:     ev,
		opts:       opts,
		now:        time.Now,
	}
	e.handlers = map[sessions.State]handlerFunc{
		sessions.StateStart:          (*Engine).handleStart,
		sessions.StateClarify:        (*Engine).handleClarify,
		sessions.StateFAQAnswer:      (*Engine).handleFAQAnswer,
		sessions.StatePostFAQ:        (*Engine).handlePostFAQ,
		sessions.StatePostFAQChoice:  (*Engine).handlePostFAQChoice,
		sessions.StateQualifName:     (*Engine).handleQualifName,
		sessions.StateQualifMotive:   (*Engine).handleQualifMotive,
		sessions.StateQualifPref:     (*Engine).handleQualifPref,
		sessions.StatePrefConfirm:    (*Engine).handlePrefConfirm,
		sessions.StateQualifContact:  (*Engine).handleQualifContact,
		sessions.StateContactConfirm: (*Engine).handleContactConfirm,
		sessions.StateWaitConfirm:    (*Engine).handleWaitConfirm,
		sessions.StateIntentRouter:   (*Engine).handleRouter,
		sessions.StateCancelName:     (*Engine).handleCancelName,
		sessions.StateCancelNotFound: (*Engine).handleCancelNotFound,
		sessions.StateCancelConfirm:  (*Engine).handleCancelConfirm,
		sessions.StateModifyName:     (*Engine).handleModifyName,
		sessions.StateModifyNotFound: (*Engine).handleModifyNotFound,
	}
	return e
}

// SetNowFunc overrides the clock (tests).
func (e *Engine) SetNowFunc(fn func() time.Time) { e.now = fn }

// TurnRequest is one inbound utterance event.
type TurnRequest struct {
	TenantID   string
	CallID     string
	Channel    string // "voice" | "text"
	Text       string
	Confidence *float64
	Final      bool
}

// TurnReply is the single outgoing message for a turn. NoReply is set only
// for non-turns (partials, overlap) and the deliberate silent transfer.
type TurnReply struct {
	Reply   string
	State   sessions.State
	NoReply bool
}

// turnCtx carries one turn through the handlers.
type turnCtx struct {
	ctx  context.Context
	sess *sessions.Session
	raw  string
	norm string
	int_ intent.Intent
	now  time.Time
	ch   catalog.Channel
}

// outcome is what a handler returns: the next state and the reply. force
// marks cross-cutting jumps (overrides) that bypass the adjacency check.
type outcome struct {
	next     sessions.State
	reply    string
	question bool
	noReply  bool
	silent   bool
	force    bool
}

// Turn processes one inbound event and returns exactly one reply.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) TurnReply {
	start := time.Now()
	metricTurns.Inc()
	defer func() {
		metricTurnLatency.Observe(float64(time.Since(start).Milliseconds()))
	}()

	ch := catalog.ChannelVoice
	if req.Channel == "text" {
		ch = catalog.ChannelText
	}

	if err := e.locker.Lock(ctx, req.TenantID, req.CallID); err != nil {
		metricLockTimeouts.Inc()
		log.Printf("[dialog] lock %s/%s: %v", req.TenantID, req.CallID, err)
		return TurnReply{Reply: e.messages.Render("generic_busy", ch, nil)}
	}
	defer e.locker.Unlock(req.TenantID, req.CallID)

	sess, err := e.store.GetOrCreate(ctx, req.TenantID, req.CallID, req.Channel)
	if err != nil {
		// An unreadable session is an external fault, not a retry case.
		log.Printf("[dialog] load session %s/%s: %v", req.TenantID, req.CallID, err)
		metricTransfers.WithLabelValues("session_store").Inc()
		e.events.Emit(req.TenantID, req.CallID, events.TypeTransfer, map[string]any{"reason": "session_store"})
		return TurnReply{Reply: e.messages.Render("transfer_human", ch, nil), State: sessions.StateTransferred}
	}

	now := e.now().UTC()
	tc := &turnCtx{ctx: ctx, sess: sess, raw: req.Text, now: now, ch: ch}

	// Partials never consume a turn, not even on an idle-expired session.
	if !req.Final {
		return TurnReply{State: sess.State, NoReply: true}
	}

	// Expiry gate: the only soft cancel. Reset and greet over.
	if sess.Expired(now, e.opts.SessionTTL) {
		sess.ResetToStart(now)
		e.events.Emit(sess.TenantID, sess.CallID, events.TypeSessionExpired, nil)
		return e.finish(tc, outcome{next: sessions.StateStart, reply: e.messages.Render("session_expired", ch, nil), question: true})
	}

	var elapsed time.Duration
	if !sess.LastReplyAt.IsZero() {
		elapsed = now.Sub(sess.LastReplyAt)
	}
	res := e.classifier.Classify(classify.Input{
		Text:       req.Text,
		Confidence: req.Confidence,
		Final:      req.Final,
		Voice:      ch == catalog.ChannelVoice,
		SinceReply: elapsed,
		Speaking:   now.Before(sess.SpeakingUntil),
	})
	metricClassifications.WithLabelValues(res.Kind.String()).Inc()
	tc.norm = res.Normalized

	// Terminal gate: a closed conversation stays closed.
	if sess.State.Terminal() {
		return TurnReply{State: sess.State, Reply: e.messages.Render("conversation_closed", ch, nil)}
	}

	sess.TurnCount++

	var out outcome
	switch res.Kind {
	case classify.KindOverlap:
		e.events.Emit(sess.TenantID, sess.CallID, events.TypeOverlap, map[string]any{"text": req.Text})
		out = outcome{next: sess.State, noReply: true}
	case classify.KindSilence:
		out = e.silenceTurn(tc)
	case classify.KindNoise:
		out = e.noiseTurn(tc)
	default:
		out = e.textTurn(tc)
	}
	return e.finish(tc, out)
}

// silenceTurn escalates through the silence prompts into the menu.
func (e *Engine) silenceTurn(tc *turnCtx) outcome {
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeSilence, nil)
	d := e.policy.Step(tc.sess, recovery.CtxSilence)
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeRecoveryStep, map[string]any{"context": "silence", "attempt": d.Attempt})
	if d.Action == recovery.ActionRetry {
		id := "silence_prompt_1"
		if tc.ch == catalog.ChannelText {
			id = "empty_input"
		} else if d.Attempt >= 2 {
			id = "silence_prompt_2"
		}
		return outcome{next: tc.sess.State, reply: e.messages.Render(id, tc.ch, nil), question: true}
	}
	metricEscalations.WithLabelValues("silence").Inc()
	return e.enterRouter(tc)
}

// noiseTurn acknowledges noise at most once per cooldown and escalates to
// the menu after the budget.
func (e *Engine) noiseTurn(tc *turnCtx) outcome {
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeNoise, nil)
	d := e.policy.Step(tc.sess, recovery.CtxNoise)
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeRecoveryStep, map[string]any{"context": "noise", "attempt": d.Attempt})
	if d.Action == recovery.ActionRetry {
		if !tc.sess.LastNoiseAckAt.IsZero() && tc.now.Sub(tc.sess.LastNoiseAckAt) < e.opts.NoiseCooldown {
			return outcome{next: tc.sess.State, noReply: true}
		}
		tc.sess.LastNoiseAckAt = tc.now
		return outcome{next: tc.sess.State, reply: e.messages.Render("noise_ack", tc.ch, nil), question: true}
	}
	metricEscalations.WithLabelValues("noise").Inc()
	return e.enterRouter(tc)
}

// textTurn runs the full pipeline for genuine speech: guards, anti-loop,
// strong override, repeat/correction, then per-state dispatch.
func (e *Engine) textTurn(tc *turnCtx) outcome {
	// Input-fault guards.
	if out, hit := e.guards(tc); hit {
		return out
	}

	// Anti-loop ceiling.
	if e.opts.AntiLoopTurns > 0 && tc.sess.TurnCount > e.opts.AntiLoopTurns && tc.sess.State != sessions.StateIntentRouter {
		metricAntiLoop.Inc()
		e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeAntiLoop, map[string]any{"turns": tc.sess.TurnCount})
		return e.enterRouter(tc)
	}

	// Strong-intent override.
	if out, hit := e.strongOverride(tc); hit {
		return out
	}
	tc.sess.LastStrongIntent = ""

	// Repeat replays the last agent message verbatim, touching nothing.
	if intent.IsRepeat(tc.norm) && tc.sess.LastAgentMsg != "" {
		return outcome{next: tc.sess.State, reply: tc.sess.LastAgentMsg}
	}
	// Correction replays the last question instead.
	if intent.IsCorrection(tc.norm) && tc.sess.LastQuestion != "" {
		return outcome{next: tc.sess.State, reply: tc.sess.LastQuestion, question: true}
	}

	tc.int_ = intent.Detect(tc.norm)

	h := e.handlers[tc.sess.State]
	if h == nil {
		log.Printf("[dialog] no handler for state %s, escalating", tc.sess.State)
		return e.enterRouter(tc)
	}
	return h(e, tc)
}

// strongOverride checks the override set before per-state dispatch. The
// match is suppressed inside the matching flow and on immediate repetition.
func (e *Engine) strongOverride(tc *turnCtx) (outcome, bool) {
	strong, ok := intent.DetectStrong(tc.norm)
	if !ok {
		return outcome{}, false
	}
	if string(strong) == tc.sess.LastStrongIntent {
		return outcome{}, false
	}
	if inFlowOf(strong, tc.sess.State) {
		return outcome{}, false
	}

	tc.sess.LastStrongIntent = string(strong)
	// Entering a new flow discards the in-progress booking working set.
	tc.sess.Booking.Reset()
	metricStrongOverrides.WithLabelValues(string(strong)).Inc()
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeStrongOverride, map[string]any{"intent": string(strong)})

	var out outcome
	switch strong {
	case intent.StrongCancel:
		out = e.askOn(tc, sessions.StateCancelName, "cancel_ask_name", nil)
	case intent.StrongModify:
		out = e.askOn(tc, sessions.StateModifyName, "modify_ask_name", nil)
	case intent.StrongTransfer:
		out = e.transfer(tc, "requested")
	case intent.StrongAbandon:
		out = outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	case intent.StrongPrescription:
		out = e.askOn(tc, sessions.StateQualifName, "prescription_info", nil)
	default:
		return outcome{}, false
	}
	out.force = true
	return out, true
}

// inFlowOf reports whether the session is already inside the flow the
// strong intent targets, which would otherwise restart-loop.
func inFlowOf(s intent.Strong, st sessions.State) bool {
	switch s {
	case intent.StrongCancel:
		return st == sessions.StateCancelName || st == sessions.StateCancelNotFound || st == sessions.StateCancelConfirm
	case intent.StrongModify:
		return st == sessions.StateModifyName || st == sessions.StateModifyNotFound
	case intent.StrongTransfer, intent.StrongAbandon:
		return st.Terminal()
	case intent.StrongPrescription:
		return st == sessions.StateQualifName
	}
	return false
}

// enterRouter moves to the numbered menu, bounded by the visit cap; past
// the cap the call goes to a human instead of looping the menu.
func (e *Engine) enterRouter(tc *turnCtx) outcome {
	tc.sess.RouterVisits++
	if e.opts.MaxRouterVisits > 0 && tc.sess.RouterVisits > e.opts.MaxRouterVisits {
		return e.transfer(tc, "router_overflow")
	}
	return e.askOn(tc, sessions.StateIntentRouter, "router_menu", nil)
}

// transfer hands the call to a human and closes the machine.
func (e *Engine) transfer(tc *turnCtx, reason string) outcome {
	metricTransfers.WithLabelValues(reason).Inc()
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeTransfer, map[string]any{"reason": reason})
	return outcome{next: sessions.StateTransferred, reply: e.messages.Render("transfer_human", tc.ch, nil)}
}

// askOn builds a question outcome; the reply is remembered for corrections.
func (e *Engine) askOn(tc *turnCtx, next sessions.State, msgID string, params map[string]string) outcome {
	return outcome{next: next, reply: e.messages.Render(msgID, tc.ch, params), question: true}
}

// retryOrEscalate applies the recovery budget for ctx: a numbered retry
// message in the same state, or the menu once the budget is burnt.
func (e *Engine) retryOrEscalate(tc *turnCtx, rctx recovery.Context, baseMsg string) outcome {
	d := e.policy.Step(tc.sess, rctx)
	e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeRecoveryStep, map[string]any{"context": string(rctx), "attempt": d.Attempt})
	switch d.Action {
	case recovery.ActionRetry:
		id := baseMsg
		if c := baseMsg + "_retry_" + strconv.Itoa(d.Attempt); e.messages.Has(c) {
			id = c
		}
		return e.askOn(tc, tc.sess.State, id, nil)
	case recovery.ActionTransfer:
		return e.transfer(tc, string(rctx))
	default:
		metricEscalations.WithLabelValues(string(rctx)).Inc()
		return e.enterRouter(tc)
	}
}

// finish validates the transition, enforces the message invariants, records
// the turn, and persists the session.
func (e *Engine) finish(tc *turnCtx, out outcome) TurnReply {
	sess := tc.sess

	if out.noReply {
		sess.LastSeenAt = tc.now
		if err := e.store.Save(tc.ctx, sess); err != nil {
			log.Printf("[dialog] save %s/%s: %v", sess.TenantID, sess.CallID, err)
		}
		return TurnReply{State: sess.State, NoReply: true}
	}

	from := sess.State
	next := out.next
	if next != from && !out.force && !canTransition(from, next) && !crossCutting(next) {
		log.Printf("[dialog] illegal transition %s -> %s, clamping to router", from, next)
		clamped := e.enterRouter(tc)
		next = clamped.next
		out.reply = clamped.reply
		out.question = clamped.question
	}

	// One non-empty message per turn; the silent transfer is the only
	// deliberate exception.
	if out.reply == "" && !out.silent {
		log.Printf("[dialog] empty reply in state %s, rendering fallback", from)
		out.reply = e.messages.Render("fallback", tc.ch, nil)
		next = sessions.StateTransferred
	}

	// Booking working set does not survive outside booking states.
	if !next.BookingState() && next != sessions.StateModifyName && next != sessions.StateModifyNotFound &&
		next != sessions.StateCancelName && next != sessions.StateCancelNotFound && next != sessions.StateCancelConfirm {
		if next.Terminal() {
			sess.Booking.Reset()
		} else if len(sess.Booking.Offered) > 0 || sess.Booking.ChosenIndex >= 0 {
			sess.Booking.Clear()
		}
	}
	sess.IsReadingSlots = next == sessions.StateWaitConfirm && len(sess.Booking.Offered) > 0

	if next != from {
		metricStateTransitions.WithLabelValues(string(from), string(next)).Inc()
	}
	sess.State = next

	sess.RecordTurn(tc.raw, out.reply, tc.now, e.opts.HistoryTurns)
	if out.question && out.reply != "" {
		sess.LastQuestion = out.reply
	}
	sess.LastReplyAt = tc.now
	sess.SpeakingUntil = tc.now.Add(speechEstimate(out.reply))

	if err := e.store.Save(tc.ctx, sess); err != nil {
		log.Printf("[dialog] save %s/%s: %v", sess.TenantID, sess.CallID, err)
	}

	return TurnReply{Reply: out.reply, State: next, NoReply: out.silent}
}

// crossCutting transitions are orchestrator edges, legal from any state.
func crossCutting(to sessions.State) bool {
	switch to {
	case sessions.StateIntentRouter, sessions.StateTransferred, sessions.StateConfirmed, sessions.StateStart:
		return true
	}
	return false
}

// speechEstimate approximates playback duration for barge-in windows.
func speechEstimate(reply string) time.Duration {
	words := len(strings.Fields(reply))
	return 500*time.Millisecond + time.Duration(words)*330*time.Millisecond
}
