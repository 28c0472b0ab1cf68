// Package calendar is the narrow interface to the external calendar
// provider: availability lookup, booking commit/cancel, existing-booking
// search. The dialogue engine never talks to the provider any other way.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// Slot is a candidate appointment window. Ephemeral: never persisted beyond
// the current session's working set.
type Slot struct {
	Ref   string    `json:"ref"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Label renders the slot for caller-facing messages.
func (s Slot) Label() string {
	return s.Start.Format("Monday January 2 at 3:04 PM")
}

// Outcome classifies a commit attempt. Permission and technical faults are
// configuration/infrastructure problems and must never be reported to the
// caller as a scheduling conflict.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeConflict
	OutcomePermissionDenied
	OutcomeTechnical
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomePermissionDenied:
		return "permission_denied"
	default:
		return "technical_error"
	}
}

// CommitResult is the classified result of a commit attempt.
type CommitResult struct {
	Outcome Outcome
	Ref     string // provider booking reference when Outcome == OutcomeOK
	Err     error  // underlying cause for non-OK outcomes, for logs only
}

// Range bounds an availability query.
type Range struct {
	From time.Time
	To   time.Time
}

// Constraints filter an availability query.
type Constraints struct {
	// Preference is "morning", "afternoon" or empty.
	Preference string
	// NotBefore is an explicit caller constraint ("only after 5pm"), zero
	// when absent. Hour-of-day, 0-23.
	NotBeforeHour int
}

// Gateway is the calendar provider seam. Implementations must bound every
// call with the context deadline.
type Gateway interface {
	ListSlots(ctx context.Context, tenant string, rng Range, c Constraints) ([]Slot, error)
	Commit(ctx context.Context, tenant string, slot Slot, holder string) CommitResult
	Cancel(ctx context.Context, tenant string, ref string) (bool, error)
	FindBooking(ctx context.Context, tenant string, name string) (*Slot, error)
}

// MatchesPreference reports whether the slot falls in the named day period.
func MatchesPreference(s Slot, pref string) bool {
	switch pref {
	case "morning":
		return s.Start.Hour() < 12
	case "afternoon":
		return s.Start.Hour() >= 12
	default:
		return true
	}
}

// DayPeriodKey identifies a day half for rejection memory ("2026-09-03/morning").
func DayPeriodKey(t time.Time) string {
	period := "morning"
	if t.Hour() >= 12 {
		period = "afternoon"
	}
	return fmt.Sprintf("%s/%s", t.Format("2006-01-02"), period)
}
