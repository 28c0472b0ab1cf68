package dialog

import (
	"context"
	"strings"
	"unicode"

	"bookline/agent/internal/events"
	"bookline/agent/internal/intent"
	"bookline/agent/internal/recovery"
	"bookline/agent/internal/sessions"
)

// calCtx bounds a calendar call independently of the inbound request.
func (e *Engine) calCtx(tc *turnCtx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(tc.ctx, e.opts.CalendarTimeout)
}

func (e *Engine) handleStart(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Yes:
		// A bare "yes" to the greeting tells us nothing; narrow it down.
		return e.askOn(tc, sessions.StateClarify, "clarify", nil)
	case intent.Booking:
		return e.nextQualifStep(tc)
	case intent.Cancel:
		return e.askOn(tc, sessions.StateCancelName, "cancel_ask_name", nil)
	case intent.Modify:
		return e.askOn(tc, sessions.StateModifyName, "modify_ask_name", nil)
	case intent.Transfer:
		return e.transfer(tc, "requested")
	case intent.Abandon:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	default:
		return e.tryFAQ(tc, recovery.CtxUnclear, "unclear")
	}
}

func (e *Engine) handleClarify(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Booking, intent.Yes:
		if tc.int_ == intent.Booking || strings.Contains(tc.norm, "appointment") {
			return e.nextQualifStep(tc)
		}
	case intent.Transfer:
		return e.transfer(tc, "requested")
	case intent.Abandon, intent.No:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	}
	if strings.Contains(tc.norm, "question") || strings.Contains(tc.norm, "ask") {
		return e.askOn(tc, sessions.StateFAQAnswer, "ask_question", nil)
	}
	if ans, _, ok := e.faq.Match(tc.norm); ok {
		return e.faqAnswered(tc, ans)
	}
	return e.retryOrEscalate(tc, recovery.CtxUnclear, "clarify")
}

func (e *Engine) handleFAQAnswer(tc *turnCtx) outcome {
	if ans, _, ok := e.faq.Match(tc.norm); ok {
		return e.faqAnswered(tc, ans)
	}
	if tc.int_ == intent.Booking {
		return e.nextQualifStep(tc)
	}
	return e.retryOrEscalate(tc, recovery.CtxFAQNoMatch, "faq_no_match")
}

func (e *Engine) handlePostFAQ(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Yes:
		// "Yes" to "anything else, or book?" is ambiguous.
		return e.askOn(tc, sessions.StatePostFAQChoice, "post_faq_choice", nil)
	case intent.No, intent.Abandon:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	case intent.Booking:
		return e.nextQualifStep(tc)
	case intent.Transfer:
		return e.transfer(tc, "requested")
	}
	if ans, _, ok := e.faq.Match(tc.norm); ok {
		return e.faqAnswered(tc, ans)
	}
	return e.retryOrEscalate(tc, recovery.CtxUnclear, "post_faq_choice")
}

func (e *Engine) handlePostFAQChoice(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Booking:
		return e.nextQualifStep(tc)
	case intent.No, intent.Abandon:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	case intent.Transfer:
		return e.transfer(tc, "requested")
	}
	if strings.Contains(tc.norm, "question") {
		return e.askOn(tc, sessions.StateFAQAnswer, "ask_question", nil)
	}
	if ans, _, ok := e.faq.Match(tc.norm); ok {
		return e.faqAnswered(tc, ans)
	}
	return e.retryOrEscalate(tc, recovery.CtxUnclear, "post_faq_choice")
}

func (e *Engine) handleQualifName(tc *turnCtx) outcome {
	if name, ok := extractName(tc.norm); ok {
		tc.sess.Qualif.Name = name
		tc.sess.Qualif.NameConfirmed = true
		e.policy.Succeed(tc.sess, recovery.CtxName)
		return e.nextQualifStep(tc)
	}
	return e.retryOrEscalate(tc, recovery.CtxName, "ask_name")
}

func (e *Engine) handleQualifMotive(tc *turnCtx) outcome {
	if tc.int_ == intent.Yes || tc.int_ == intent.No || len(tc.norm) < 3 {
		return e.retryOrEscalate(tc, recovery.CtxUnclear, "unclear")
	}
	tc.sess.Qualif.Motive = tc.norm
	e.policy.Succeed(tc.sess, recovery.CtxUnclear)
	return e.nextQualifStep(tc)
}

func (e *Engine) handleQualifPref(tc *turnCtx) outcome {
	q := &tc.sess.Qualif

	if hour, ok := parseNotBefore(tc.norm); ok {
		q.NotBeforeHour = hour
	}
	pref, direct := parsePreference(tc.norm)
	switch {
	case pref == "any":
		q.Preference = ""
		q.PreferenceConfirmed = true
	case pref != "" && direct:
		q.Preference = pref
		q.PreferenceConfirmed = true
	case pref != "":
		// Inferred from a longer utterance: confirm before acting on it.
		q.PendingPreference = pref
		q.PendingUtterance = tc.norm
		return e.askOn(tc, sessions.StatePrefConfirm, "confirm_preference",
			map[string]string{"preference": pref + "s"})
	default:
		return e.retryOrEscalate(tc, recovery.CtxPreference, "ask_preference")
	}
	e.policy.Succeed(tc.sess, recovery.CtxPreference)
	return e.nextQualifStep(tc)
}

func (e *Engine) handlePrefConfirm(tc *turnCtx) outcome {
	q := &tc.sess.Qualif
	switch {
	case tc.int_ == intent.Yes, tc.norm == q.PendingUtterance && tc.norm != "":
		// Explicit yes, or the caller repeating themselves verbatim.
		q.Preference = q.PendingPreference
		q.PreferenceConfirmed = true
		q.PendingPreference = ""
		q.PendingUtterance = ""
		e.policy.Succeed(tc.sess, recovery.CtxPreference)
		return e.nextQualifStep(tc)
	case tc.int_ == intent.No:
		q.PendingPreference = ""
		q.PendingUtterance = ""
		return e.askOn(tc, sessions.StateQualifPref, "ask_preference", nil)
	}
	if pref, direct := parsePreference(tc.norm); pref != "" && pref != "any" && direct {
		q.Preference = pref
		q.PreferenceConfirmed = true
		q.PendingPreference = ""
		q.PendingUtterance = ""
		e.policy.Succeed(tc.sess, recovery.CtxPreference)
		return e.nextQualifStep(tc)
	}
	return e.retryOrEscalate(tc, recovery.CtxPreference, "confirm_preference")
}

func (e *Engine) handleQualifContact(tc *turnCtx) outcome {
	if num, ok := extractPhone(tc.raw); ok {
		tc.sess.Qualif.Contact = num
		tc.sess.Qualif.ContactChannel = "phone"
		return e.askOn(tc, sessions.StateContactConfirm, "confirm_contact",
			map[string]string{"contact": spellDigits(num)})
	}
	return e.retryOrEscalate(tc, recovery.CtxPhone, "ask_contact")
}

func (e *Engine) handleContactConfirm(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Yes:
		tc.sess.Qualif.ContactConfirmed = true
		e.policy.Succeed(tc.sess, recovery.CtxPhone)
		return e.nextQualifStep(tc)
	case intent.No:
		tc.sess.Qualif.Contact = ""
		return e.askOn(tc, sessions.StateQualifContact, "ask_contact", nil)
	}
	if num, ok := extractPhone(tc.raw); ok {
		tc.sess.Qualif.Contact = num
		return e.askOn(tc, sessions.StateContactConfirm, "confirm_contact",
			map[string]string{"contact": spellDigits(num)})
	}
	return e.retryOrEscalate(tc, recovery.CtxPhone, "confirm_contact")
}

func (e *Engine) handleRouter(tc *turnCtx) outcome {
	choice, ok := intent.ParseMenuChoice(tc.norm, 4)
	if !ok {
		switch tc.int_ {
		case intent.Booking:
			choice, ok = 1, true
		case intent.Cancel, intent.Modify:
			choice, ok = 2, true
		case intent.Transfer:
			choice, ok = 4, true
		case intent.Abandon, intent.No:
			return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
		}
	}
	if !ok {
		if strings.Contains(tc.norm, "question") {
			choice, ok = 3, true
		}
	}
	if !ok {
		return e.retryOrEscalate(tc, recovery.CtxRouter, "router_retry")
	}

	e.policy.Succeed(tc.sess, recovery.CtxRouter)
	switch choice {
	case 1:
		return e.nextQualifStep(tc)
	case 2:
		if tc.int_ == intent.Modify {
			return e.askOn(tc, sessions.StateModifyName, "modify_ask_name", nil)
		}
		return e.askOn(tc, sessions.StateCancelName, "cancel_ask_name", nil)
	case 3:
		return e.askOn(tc, sessions.StateFAQAnswer, "ask_question", nil)
	default:
		return e.transfer(tc, "requested")
	}
}

func (e *Engine) handleCancelName(tc *turnCtx) outcome {
	name, ok := extractName(tc.norm)
	if !ok {
		return e.retryOrEscalate(tc, recovery.CtxName, "cancel_ask_name")
	}
	return e.lookupBooking(tc, name, false)
}

func (e *Engine) handleCancelNotFound(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Transfer:
		return e.transfer(tc, "requested")
	case intent.No, intent.Abandon:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	}
	if strings.Contains(tc.norm, "colleague") || strings.Contains(tc.norm, "someone") {
		return e.transfer(tc, "requested")
	}
	if name, ok := extractName(tc.norm); ok {
		return e.lookupBooking(tc, name, false)
	}
	return e.retryOrEscalate(tc, recovery.CtxName, "cancel_not_found")
}

func (e *Engine) handleCancelConfirm(tc *turnCtx) outcome {
	old := tc.sess.Booking.PendingOld
	switch tc.int_ {
	case intent.Yes:
		if old == nil {
			return e.enterRouter(tc)
		}
		ctx, cancel := e.calCtx(tc)
		defer cancel()
		ok, err := e.gateway.Cancel(ctx, tc.sess.TenantID, old.Ref)
		if err != nil || !ok {
			metricCalendarOutcomes.WithLabelValues("cancel_failed").Inc()
			e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeCalendarFault,
				map[string]any{"op": "cancel"})
			return outcome{next: sessions.StateTransferred, reply: e.messages.Render("calendar_trouble", tc.ch, nil)}
		}
		e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeBookingCancelled,
			map[string]any{"ref": old.Ref})
		tc.sess.Booking.Reset()
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("cancel_done", tc.ch, nil)}
	case intent.No, intent.Abandon:
		tc.sess.Booking.Reset()
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("cancel_kept", tc.ch, nil)}
	case intent.Transfer:
		return e.transfer(tc, "requested")
	}
	return e.retryOrEscalate(tc, recovery.CtxUnclear, "unclear")
}

func (e *Engine) handleModifyName(tc *turnCtx) outcome {
	name, ok := extractName(tc.norm)
	if !ok {
		return e.retryOrEscalate(tc, recovery.CtxName, "modify_ask_name")
	}
	return e.lookupBooking(tc, name, true)
}

func (e *Engine) handleModifyNotFound(tc *turnCtx) outcome {
	switch tc.int_ {
	case intent.Transfer:
		return e.transfer(tc, "requested")
	case intent.No, intent.Abandon:
		return outcome{next: sessions.StateConfirmed, reply: e.messages.Render("goodbye", tc.ch, nil)}
	}
	if strings.Contains(tc.norm, "colleague") || strings.Contains(tc.norm, "someone") {
		return e.transfer(tc, "requested")
	}
	if name, ok := extractName(tc.norm); ok {
		return e.lookupBooking(tc, name, true)
	}
	return e.retryOrEscalate(tc, recovery.CtxName, "cancel_not_found")
}

// lookupBooking resolves a name to an existing appointment for the cancel
// and modify flows.
func (e *Engine) lookupBooking(tc *turnCtx, name string, modify bool) outcome {
	ctx, cancel := e.calCtx(tc)
	defer cancel()
	slot, err := e.gateway.FindBooking(ctx, tc.sess.TenantID, name)
	if err != nil {
		metricCalendarOutcomes.WithLabelValues("lookup_failed").Inc()
		e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeCalendarFault,
			map[string]any{"op": "find"})
		return outcome{next: sessions.StateTransferred, reply: e.messages.Render("calendar_trouble", tc.ch, nil)}
	}
	if slot == nil {
		notFound := sessions.StateCancelNotFound
		if modify {
			notFound = sessions.StateModifyNotFound
		}
		return e.askOn(tc, notFound, "cancel_not_found", map[string]string{"name": name})
	}

	tc.sess.Qualif.Name = name
	tc.sess.Qualif.NameConfirmed = true
	tc.sess.Booking.PendingOld = slot
	if modify {
		// The motive is carried over from the existing appointment; only the
		// time changes. The new booking is committed first and the old one
		// released only after that succeeds.
		if tc.sess.Qualif.Motive == "" {
			tc.sess.Qualif.Motive = "reschedule"
		}
		return e.askOn(tc, sessions.StateQualifPref, "modify_found",
			map[string]string{"slot": slot.Label()})
	}
	return e.askOn(tc, sessions.StateCancelConfirm, "cancel_confirm",
		map[string]string{"slot": slot.Label(), "name": name})
}

// faqAnswered emits the answer plus the follow-up question in one message.
func (e *Engine) faqAnswered(tc *turnCtx, answer string) outcome {
	e.policy.Succeed(tc.sess, recovery.CtxFAQNoMatch)
	e.policy.Succeed(tc.sess, recovery.CtxUnclear)
	reply := answer + " " + e.messages.Render("faq_followup", tc.ch, nil)
	return outcome{next: sessions.StatePostFAQ, reply: reply, question: true}
}

// tryFAQ attempts an FAQ match before burning a recovery attempt.
func (e *Engine) tryFAQ(tc *turnCtx, rctx recovery.Context, baseMsg string) outcome {
	if ans, _, ok := e.faq.Match(tc.norm); ok {
		return e.faqAnswered(tc, ans)
	}
	return e.retryOrEscalate(tc, rctx, baseMsg)
}

// nextQualifStep asks for the first missing qualification field, then hands
// over to the booking sub-machine.
func (e *Engine) nextQualifStep(tc *turnCtx) outcome {
	q := tc.sess.Qualif
	switch {
	case q.Name == "":
		return e.askOn(tc, sessions.StateQualifName, "ask_name", nil)
	case q.Motive == "":
		return e.askOn(tc, sessions.StateQualifMotive, "ask_motive",
			map[string]string{"name": q.Name})
	case !q.PreferenceConfirmed:
		return e.askOn(tc, sessions.StateQualifPref, "ask_preference", nil)
	case !q.ContactConfirmed:
		return e.askOn(tc, sessions.StateQualifContact, "ask_contact", nil)
	default:
		return e.offerSlots(tc, false)
	}
}

var nameStopwords = map[string]bool{
	"my": true, "name": true, "is": true, "the": true, "its": true, "it's": true,
	"im": true, "i'm": true, "this": true, "here": true, "speaking": true,
	"yes": true, "no": true, "under": true, "for": true, "of": true,
	"appointment": true, "booking": true,
}

// extractName pulls a plausible person name out of an utterance: alphabetic
// words left over after stripping fillers, at most four of them.
func extractName(norm string) (string, bool) {
	var words []string
	for _, w := range strings.Fields(norm) {
		if nameStopwords[w] {
			continue
		}
		alpha := true
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' {
				alpha = false
				break
			}
		}
		if !alpha {
			return "", false
		}
		words = append(words, w)
	}
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}
	return strings.Join(words, " "), true
}

// extractPhone accepts anything with at least seven digits, keeping digits
// only. Works for spaced, dashed and dotted renditions.
func extractPhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	if len(num) < 7 || len(num) > 15 {
		return "", false
	}
	return num, true
}

// spellDigits renders a number digit by digit for voice read-back.
func spellDigits(num string) string {
	parts := make([]string, 0, len(num))
	for _, r := range num {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}

var anyPreference = []string{
	"any", "anytime", "whenever", "no preference", "dont care", "don't care",
	"doesnt matter", "doesn't matter", "either",
}

// parsePreference finds a day-period preference in an utterance. direct
// means the utterance was essentially just the preference, so no
// confirmation round-trip is needed.
func parsePreference(norm string) (pref string, direct bool) {
	for _, p := range anyPreference {
		if norm == p || strings.Contains(norm, p) {
			return "any", true
		}
	}
	switch {
	case strings.Contains(norm, "morning"):
		pref = "morning"
	case strings.Contains(norm, "afternoon"), strings.Contains(norm, "evening"):
		pref = "afternoon"
	default:
		return "", false
	}
	return pref, len(strings.Fields(norm)) <= 3
}
