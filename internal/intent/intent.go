// Package intent maps normalized utterances to coarse intents and strong
// override intents using fixed phrase sets. Matching is deterministic:
// keywords and patterns only, no scoring, no learned models.
package intent

import (
	"strings"
)

// Intent is the coarse per-turn intent.
type Intent int

const (
	Unclear Intent = iota
	Yes
	No
	Booking
	Cancel
	Modify
	Transfer
	Abandon
)

func (i Intent) String() string {
	switch i {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Booking:
		return "booking"
	case Cancel:
		return "cancel"
	case Modify:
		return "modify"
	case Transfer:
		return "transfer"
	case Abandon:
		return "abandon"
	default:
		return "unclear"
	}
}

// Strong is an override intent allowed to preempt any in-progress flow.
type Strong string

const (
	StrongCancel       Strong = "cancel"
	StrongModify       Strong = "modify"
	StrongTransfer     Strong = "transfer"
	StrongAbandon      Strong = "abandon"
	StrongPrescription Strong = "prescription"
)

var yesExact = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "ok": true, "okay": true,
	"sure": true, "correct": true, "right": true, "exactly": true,
	"fine": true, "perfect": true, "absolutely": true, "confirm": true,
}

var yesPhrases = []string{"that's right", "thats right", "that works", "sounds good", "why not", "go ahead", "i confirm"}

var noExact = map[string]bool{
	"no": true, "nope": true, "nah": true,
}

var noPhrases = []string{"no thanks", "no thank you", "not really", "i don't think so", "rather not"}

var transferPhrases = []string{
	"human", "real person", "operator", "receptionist", "someone else",
	"speak to someone", "talk to someone", "speak with someone",
	"an agent", "a colleague", "transfer me",
}

var abandonPhrases = []string{
	"goodbye", "bye", "hang up", "never mind", "nevermind", "forget it",
	"that's all", "thats all", "nothing else", "leave it",
}

var cancelPhrases = []string{"cancel"}

var modifyPhrases = []string{
	"reschedule", "postpone", "move my appointment", "move the appointment",
	"change my appointment", "change the appointment", "change the time",
	"different time", "different day", "another time", "another day",
}

var bookingPhrases = []string{
	"book", "appointment", "schedule", "come in", "see the doctor",
	"make an appointment", "visit",
}

var prescriptionPhrases = []string{"prescription", "renewal", "refill", "renew my"}

// Detect maps normalized text to a coarse intent. Phrase sets are checked
// most-specific first so "cancel my appointment" is a cancel, not a booking.
func Detect(norm string) Intent {
	if norm == "" {
		return Unclear
	}
	if yesExact[norm] || containsAny(norm, yesPhrases) {
		return Yes
	}
	if noExact[norm] || containsAny(norm, noPhrases) || strings.HasPrefix(norm, "no ") {
		return No
	}
	if containsAny(norm, transferPhrases) {
		return Transfer
	}
	if containsAny(norm, abandonPhrases) {
		return Abandon
	}
	if containsAny(norm, cancelPhrases) {
		return Cancel
	}
	if containsAny(norm, modifyPhrases) {
		return Modify
	}
	if containsAny(norm, bookingPhrases) {
		return Booking
	}
	return Unclear
}

// DetectStrong matches the narrower override set. The caller suppresses the
// result when the session is already inside the matching flow or the same
// strong intent fired on the immediately preceding turn.
func DetectStrong(norm string) (Strong, bool) {
	if norm == "" {
		return "", false
	}
	if containsAny(norm, prescriptionPhrases) {
		return StrongPrescription, true
	}
	if containsAny(norm, transferPhrases) {
		return StrongTransfer, true
	}
	if containsAny(norm, abandonPhrases) {
		return StrongAbandon, true
	}
	if containsAny(norm, cancelPhrases) {
		return StrongCancel, true
	}
	if containsAny(norm, modifyPhrases) {
		return StrongModify, true
	}
	return "", false
}

var repeatPhrases = []string{
	"repeat", "say that again", "say it again", "come again", "pardon",
	"what did you say", "once more", "didn't hear", "didnt hear",
}

// IsRepeat reports a request to replay the last agent message verbatim.
func IsRepeat(norm string) bool {
	return containsAny(norm, repeatPhrases)
}

var correctionPhrases = []string{
	"i meant", "i mean", "actually", "that's wrong", "thats wrong",
	"i made a mistake", "let me correct", "wait no", "no wait",
}

// IsCorrection reports a request to fix the previous answer; the engine
// replays the last question instead of the last message.
func IsCorrection(norm string) bool {
	return containsAny(norm, correctionPhrases)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
