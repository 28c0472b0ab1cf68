package dialog

import (
	"strings"
	"unicode"

	"bookline/agent/internal/events"
	"bookline/agent/internal/sessions"
)

// guards runs the input-fault checks that apply before any state logic.
// hit is true when the turn was fully consumed by a guard.
func (e *Engine) guards(tc *turnCtx) (outcome, bool) {
	if e.opts.MaxInputLen > 0 && len([]rune(tc.raw)) > e.opts.MaxInputLen {
		return e.askOn(tc, tc.sess.State, "overlong_input", nil), true
	}
	if isSpam(tc.norm) {
		// Robocalls and vendor scripts get a silent handoff: no reply that
		// the caller's machine could latch onto.
		metricTransfers.WithLabelValues("spam").Inc()
		e.events.Emit(tc.sess.TenantID, tc.sess.CallID, events.TypeSilentTransfer,
			map[string]any{"reason": "spam"})
		return outcome{next: sessions.StateTransferred, silent: true}, true
	}
	if wrongScript(tc.raw) {
		return e.askOn(tc, tc.sess.State, "wrong_language", nil), true
	}
	return outcome{}, false
}

var spamPhrases = []string{
	"this is an automated call",
	"press 1 to be removed",
	"extended warranty",
	"special offer for your business",
	"you have been selected",
	"limited time offer",
	"final notice regarding",
}

func isSpam(norm string) bool {
	for _, p := range spamPhrases {
		if strings.Contains(norm, p) {
			return true
		}
	}
	return false
}

// wrongScript reports input that is mostly outside the Latin script, which
// the assistant cannot serve.
func wrongScript(raw string) bool {
	letters, foreign := 0, 0
	for _, r := range raw {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			foreign++
		}
	}
	return letters >= 4 && foreign*2 > letters
}
