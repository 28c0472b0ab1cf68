package dialog

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bookline/agent/internal/calendar"
	"bookline/agent/internal/catalog"
	"bookline/agent/internal/events"
	"bookline/agent/internal/intent"
	"bookline/agent/internal/recovery"
	"bookline/agent/internal/sessions"
)

// offerSlots queries availability and presents candidates: one at a time on
// voice, a short list on text. Known-rejected times and day-halves are
// filtered out up front.
func (e *Engine) offerSlots(tc *turnCtx, refetch bool) outcome {
	sess := tc.sess
	q := sess.Qualif
	pref := q.Preference
	if pref == "any" {
		pref = ""
	}

	ctx, cancel := e.calCtx(tc)
	defer cancel()
	rng := calendar.Range{From: tc.now, To: tc.now.AddDate(0, 0, e.opts.LookaheadDays)}
	cons := calendar.Constraints{Preference: pref, NotBeforeHour: q.NotBeforeHour}

	// A constraint past closing can never be satisfied; offer the closest
	// feasible slot instead of pretending to search.
	infeasible := q.NotBeforeHour >= e.opts.ClosingHour && e.opts.ClosingHour > 0
	if infeasible {
		cons.NotBeforeHour = 0
	}

	slots, err := e.gateway.ListSlots(ctx, sess.TenantID, rng, cons)
	if err != nil {
		metricCalendarOutcomes.WithLabelValues("list_failed").Inc()
		e.events.Emit(sess.TenantID, sess.CallID, events.TypeCalendarFault,
			map[string]any{"op": "list"})
		return outcome{next: sessions.StateTransferred, reply: e.messages.Render("calendar_trouble", tc.ch, nil)}
	}

	slots = filterRejected(slots, sess.Booking)
	if len(slots) == 0 {
		return outcome{next: sessions.StateTransferred, reply: e.messages.Render("no_slots", tc.ch, nil)}
	}

	// Keep the rejection memory so a refetch never re-offers a refused or
	// conflicted time. Clear keeps PendingOld on its own.
	rejT, rejP := sess.Booking.RejectedTimes, sess.Booking.RejectedPeriods
	sess.Booking.Clear()
	sess.Booking.RejectedTimes, sess.Booking.RejectedPeriods = rejT, rejP

	if infeasible {
		// Latest slot of the day is the closest we can get to "after close".
		best := slots[0]
		for _, s := range slots[1:] {
			if s.Start.Hour() > best.Start.Hour() {
				best = s
			}
		}
		sess.Booking.Offered = []calendar.Slot{best}
		return e.askOn(tc, sessions.StateWaitConfirm, "infeasible_constraint", map[string]string{
			"closing": strconv.Itoa(e.opts.ClosingHour-12) + " PM",
			"slot":    best.Label(),
		})
	}

	if tc.ch == catalog.ChannelText {
		n := e.opts.MaxOffersText
		if n <= 0 || n > len(slots) {
			n = len(slots)
		}
		sess.Booking.Offered = slots[:n]
		labels := make([]string, n)
		for i, s := range slots[:n] {
			labels[i] = strconv.Itoa(i+1) + ") " + s.Label()
		}
		return e.askOn(tc, sessions.StateWaitConfirm, "offer_slots_text",
			map[string]string{"slots": strings.Join(labels, "  ")})
	}

	sess.Booking.Offered = slots
	msg := "offer_slot_voice"
	if refetch {
		msg = "offer_slot_next"
	}
	return e.askOn(tc, sessions.StateWaitConfirm, msg,
		map[string]string{"slot": slots[0].Label()})
}

// handleWaitConfirm runs the two-step offer/confirm loop. A slot is never
// committed off a single ambiguous turn: selection first, explicit yes on
// the read-back second.
func (e *Engine) handleWaitConfirm(tc *turnCtx) outcome {
	b := &tc.sess.Booking
	if len(b.Offered) == 0 {
		return e.offerSlots(tc, false)
	}

	// Read-back phase: a slot is picked, waiting for the final yes.
	if b.ChosenIndex >= 0 && b.ChosenIndex < len(b.Offered) {
		switch tc.int_ {
		case intent.Yes:
			return e.commitChosen(tc)
		case intent.No:
			rejected := b.Offered[b.ChosenIndex]
			b.ChosenIndex = -1
			return e.rejectAndAdvance(tc, rejected)
		}
		if idx, ok := e.selectSlot(tc, b); ok {
			return e.confirmSlot(tc, idx)
		}
		return e.retryOrEscalate(tc, recovery.CtxSlot, "unclear")
	}

	// Offer phase.
	switch tc.int_ {
	case intent.Yes:
		idx := b.Cursor
		if tc.ch == catalog.ChannelText && len(b.Offered) > 1 {
			// "Yes" to a list of three is not a selection.
			return e.retryOrEscalate(tc, recovery.CtxSlot, "offer_which")
		}
		if idx < 0 || idx >= len(b.Offered) {
			idx = 0
		}
		return e.confirmSlot(tc, idx)
	case intent.No:
		idx := b.Cursor
		if idx < 0 || idx >= len(b.Offered) {
			idx = 0
		}
		return e.rejectAndAdvance(tc, b.Offered[idx])
	}

	if idx, ok := e.selectSlot(tc, b); ok {
		return e.confirmSlot(tc, idx)
	}

	// A fresh preference mid-offer restarts the search.
	if pref, direct := parsePreference(tc.norm); pref != "" && direct {
		q := &tc.sess.Qualif
		if pref == "any" {
			q.Preference = ""
		} else {
			q.Preference = pref
		}
		q.PreferenceConfirmed = true
		return e.offerSlots(tc, true)
	}
	if hour, ok := parseNotBefore(tc.norm); ok {
		tc.sess.Qualif.NotBeforeHour = hour
		return e.offerSlots(tc, true)
	}

	return e.retryOrEscalate(tc, recovery.CtxSlot, "unclear")
}

// selectSlot resolves an explicit slot reference: a menu position or an
// exact day-plus-time match. Ambiguity selects nothing.
func (e *Engine) selectSlot(tc *turnCtx, b *sessions.BookingSet) (int, bool) {
	if choice, ok := intent.ParseMenuChoice(tc.norm, len(b.Offered)); ok {
		return choice - 1, true
	}
	if idx, ok := intent.MatchSlot(tc.norm, b.Offered); ok {
		return idx, true
	}
	return 0, false
}

// confirmSlot reads the selection back before anything is committed.
func (e *Engine) confirmSlot(tc *turnCtx, idx int) outcome {
	b := &tc.sess.Booking
	b.ChosenIndex = idx
	b.ConsecRejects = 0
	e.policy.Succeed(tc.sess, recovery.CtxSlot)
	return e.askOn(tc, sessions.StateWaitConfirm, "confirm_slot", map[string]string{
		"slot": b.Offered[idx].Label(),
		"name": tc.sess.Qualif.Name,
	})
}

// rejectAndAdvance records the rejection and moves to the next acceptable
// offer. Two rejections in a row reopen the preference question instead of
// grinding through the whole calendar.
func (e *Engine) rejectAndAdvance(tc *turnCtx, rejected calendar.Slot) outcome {
	b := &tc.sess.Booking
	b.RejectedTimes = append(b.RejectedTimes, rejected.Start)
	b.RejectedPeriods = append(b.RejectedPeriods, calendar.DayPeriodKey(rejected.Start))
	b.ConsecRejects++

	if b.ConsecRejects >= e.opts.MaxConsecRejects {
		b.Clear()
		tc.sess.Qualif.Preference = ""
		tc.sess.Qualif.PreferenceConfirmed = false
		tc.sess.Qualif.NotBeforeHour = 0
		return e.askOn(tc, sessions.StateQualifPref, "ask_open_preference", nil)
	}

	// Skip anything in the immediate neighborhood of the rejected time and
	// anything in an already-rejected day-half.
	near := time.Duration(e.opts.NeighborhoodMinutes) * time.Minute
	for i := b.Cursor + 1; i < len(b.Offered); i++ {
		s := b.Offered[i]
		if absDelta(s.Start, rejected.Start) < near {
			continue
		}
		if containsStr(b.RejectedPeriods, calendar.DayPeriodKey(s.Start)) {
			continue
		}
		b.Cursor = i
		return e.askOn(tc, sessions.StateWaitConfirm, "offer_slot_next",
			map[string]string{"slot": s.Label()})
	}

	// Nothing left in this batch.
	b.Clear()
	tc.sess.Qualif.Preference = ""
	tc.sess.Qualif.PreferenceConfirmed = false
	return e.askOn(tc, sessions.StateQualifPref, "ask_open_preference", nil)
}

// commitChosen writes the booking. Outcomes are classified and each class
// gets its own user-facing path; a provider fault is never narrated as a
// lost slot.
func (e *Engine) commitChosen(tc *turnCtx) outcome {
	sess := tc.sess
	b := &sess.Booking
	slot := b.Offered[b.ChosenIndex]

	ctx, cancel := e.calCtx(tc)
	defer cancel()
	res := e.gateway.Commit(ctx, sess.TenantID, slot, sess.Qualif.Name)
	metricCalendarOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	switch res.Outcome {
	case calendar.OutcomeOK:
		e.events.Emit(sess.TenantID, sess.CallID, events.TypeBookingConfirmed, map[string]any{
			"ref":   res.Ref,
			"start": slot.Start,
			"name":  sess.Qualif.Name,
		})
		msg := "booking_confirmed"
		if old := b.PendingOld; old != nil {
			// New slot is committed; only now is the old one released.
			cctx, ccancel := e.calCtx(tc)
			ok, err := e.gateway.Cancel(cctx, sess.TenantID, old.Ref)
			ccancel()
			if err != nil || !ok {
				log.Printf("[dialog] %s/%s: old booking %s not released: %v", sess.TenantID, sess.CallID, old.Ref, err)
				e.events.Emit(sess.TenantID, sess.CallID, events.TypeCalendarFault,
					map[string]any{"op": "cancel_old", "ref": old.Ref})
			} else {
				e.events.Emit(sess.TenantID, sess.CallID, events.TypeBookingCancelled,
					map[string]any{"ref": old.Ref})
			}
			msg = "modify_done"
		}
		b.Reset()
		return outcome{next: sessions.StateConfirmed,
			reply: e.messages.Render(msg, tc.ch, map[string]string{"slot": slot.Label()})}

	case calendar.OutcomeConflict:
		sess.Recovery["conflict"]++
		if sess.Recovery["conflict"] > e.opts.ConflictRetries {
			return e.transfer(tc, "conflict")
		}
		// Someone else took it between offer and commit. Refetch around the
		// lost slot and try once more.
		b.RejectedTimes = append(b.RejectedTimes, slot.Start)
		b.ChosenIndex = -1
		b.Offered = nil
		b.Cursor = 0
		out := e.offerSlots(tc, true)
		if out.next == sessions.StateWaitConfirm {
			out.reply = e.messages.Render("slot_taken", tc.ch, nil) + " " + out.reply
		}
		return out

	default:
		// Permission and technical faults are provider problems, not
		// availability; the caller is handed off, not re-offered.
		e.events.Emit(sess.TenantID, sess.CallID, events.TypeCalendarFault, map[string]any{
			"op":      "commit",
			"outcome": res.Outcome.String(),
		})
		return outcome{next: sessions.StateTransferred, reply: e.messages.Render("calendar_trouble", tc.ch, nil)}
	}
}

func filterRejected(slots []calendar.Slot, b sessions.BookingSet) []calendar.Slot {
	if len(b.RejectedTimes) == 0 && len(b.RejectedPeriods) == 0 {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		skip := false
		for _, t := range b.RejectedTimes {
			if s.Start.Equal(t) {
				skip = true
				break
			}
		}
		if !skip && containsStr(b.RejectedPeriods, calendar.DayPeriodKey(s.Start)) {
			skip = true
		}
		if !skip {
			out = append(out, s)
		}
	}
	return out
}

var notBeforeRe = regexp.MustCompile(`(?:after|not before|later than|past)\s+(\d{1,2})(?::\d{2})?\s*(am|pm|o'?clock)?`)

// parseNotBefore extracts an explicit lower-bound hour ("only after 5pm").
func parseNotBefore(norm string) (int, bool) {
	m := notBeforeRe.FindStringSubmatch(norm)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return 0, false
	}
	if m[2] == "pm" && h < 12 {
		h += 12
	}
	// A bare small hour in a scheduling context means afternoon.
	if m[2] != "am" && m[2] != "pm" && h >= 1 && h <= 7 {
		h += 12
	}
	return h, true
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func containsStr(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}
