// Package sessions holds the per-call conversation state and its durable
// store. A session is the only thing that threads a call together across
// turns; it is mutated exclusively by the dialogue engine.
package sessions

import (
	"time"

	"bookline/agent/internal/calendar"
)

// State is a dialogue state. The closed set of values and the adjacency
// table live in the dialog package; the session only carries the current one.
type State string

const (
	StateStart          State = "START"
	StateClarify        State = "CLARIFY"
	StateFAQAnswer      State = "FAQ_ANSWER"
	StatePostFAQ        State = "POST_FAQ"
	StatePostFAQChoice  State = "POST_FAQ_CHOICE"
	StateQualifName     State = "QUALIF_NAME"
	StateQualifMotive   State = "QUALIF_MOTIVE"
	StateQualifPref     State = "QUALIF_PREFERENCE"
	StatePrefConfirm    State = "PREFERENCE_CONFIRM"
	StateQualifContact  State = "QUALIF_CONTACT"
	StateContactConfirm State = "CONTACT_CONFIRM"
	StateWaitConfirm    State = "WAIT_CONFIRM"
	StateIntentRouter   State = "INTENT_ROUTER"
	StateCancelName     State = "CANCEL_NAME"
	StateCancelNotFound State = "CANCEL_NOT_FOUND"
	StateCancelConfirm  State = "CANCEL_CONFIRM"
	StateModifyName     State = "MODIFY_NAME"
	StateModifyNotFound State = "MODIFY_NOT_FOUND"
	StateConfirmed      State = "CONFIRMED"
	StateTransferred    State = "TRANSFERRED"
)

// Terminal reports whether st closes the conversation.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateTransferred
}

// BookingState reports whether st belongs to the booking sub-machine. The
// booking working set is only valid inside these states.
func (s State) BookingState() bool {
	switch s {
	case StateQualifPref, StatePrefConfirm, StateQualifContact, StateContactConfirm, StateWaitConfirm:
		return true
	}
	return false
}

// TurnRecord is one exchanged turn, stored by value in the session history.
type TurnRecord struct {
	UserText  string    `json:"user_text"`
	AgentText string    `json:"agent_text"`
	At        time.Time `json:"at"`
}

// Qualification is the data collected before booking. A field is only acted
// on once its confirmed flag is set (or confirmation was implicit).
type Qualification struct {
	Name          string `json:"name,omitempty"`
	NameConfirmed bool   `json:"name_confirmed,omitempty"`

	Motive string `json:"motive,omitempty"`

	Preference          string `json:"preference,omitempty"`
	PendingPreference   string `json:"pending_preference,omitempty"`
	PreferenceConfirmed bool   `json:"preference_confirmed,omitempty"`
	// PendingUtterance is the exact utterance that produced an inferred
	// value; repeating it verbatim counts as implicit confirmation.
	PendingUtterance string `json:"pending_utterance,omitempty"`
	// NotBeforeHour is an explicit caller time constraint ("after 5pm").
	NotBeforeHour int `json:"not_before_hour,omitempty"`

	Contact          string `json:"contact,omitempty"`
	ContactChannel   string `json:"contact_channel,omitempty"`
	ContactConfirmed bool   `json:"contact_confirmed,omitempty"`
}

// BookingSet is the working set of the booking sub-machine: candidate slots
// currently on offer plus rejection memory for voice presentation.
type BookingSet struct {
	Offered     []calendar.Slot `json:"offered,omitempty"`
	ChosenIndex int             `json:"chosen_index"`
	Cursor      int             `json:"cursor"`

	RejectedTimes   []time.Time `json:"rejected_times,omitempty"`
	RejectedPeriods []string    `json:"rejected_periods,omitempty"`
	ConsecRejects   int         `json:"consec_rejects,omitempty"`

	// Modify flow: the appointment being replaced. Never cancelled before
	// the new slot commits.
	PendingOld *calendar.Slot `json:"pending_old,omitempty"`
}

// Clear drops everything except the pending-old reference, which survives
// until the modify flow resolves.
func (b *BookingSet) Clear() {
	old := b.PendingOld
	*b = BookingSet{ChosenIndex: -1, PendingOld: old}
}

// Reset drops the working set entirely, pending-old included.
func (b *BookingSet) Reset() {
	*b = BookingSet{ChosenIndex: -1}
}

// Session is the per-call state. One per (tenant, call).
type Session struct {
	TenantID string `json:"tenant_id"`
	CallID   string `json:"call_id"`
	Channel  string `json:"channel"` // "voice" | "text"

	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`

	History      []TurnRecord `json:"history,omitempty"`
	LastAgentMsg string       `json:"last_agent_msg,omitempty"`
	LastQuestion string       `json:"last_question,omitempty"`

	Qualif  Qualification `json:"qualif"`
	Booking BookingSet    `json:"booking"`

	Recovery     map[string]int `json:"recovery"`
	TurnCount    int            `json:"turn_count"`
	RouterVisits int            `json:"router_visits"`

	LastStrongIntent string `json:"last_strong_intent,omitempty"`
	LastNoiseAckAt   time.Time `json:"last_noise_ack_at,omitzero"`

	SpeakingUntil time.Time `json:"speaking_until,omitzero"`
	LastReplyAt   time.Time `json:"last_reply_at,omitzero"`

	// True only while State == WAIT_CONFIRM; forced false elsewhere on load.
	IsReadingSlots bool `json:"is_reading_slots,omitempty"`
}

// New returns a fresh session in the initial state.
func New(tenant, call, channel string, now time.Time) *Session {
	return &Session{
		TenantID:   tenant,
		CallID:     call,
		Channel:    channel,
		State:      StateStart,
		CreatedAt:  now,
		LastSeenAt: now,
		Booking:    BookingSet{ChosenIndex: -1},
		Recovery:   map[string]int{},
	}
}

// RecordTurn appends a turn to the bounded history ring and updates the
// repeat memory.
func (s *Session) RecordTurn(userText, agentText string, now time.Time, maxTurns int) {
	s.History = append(s.History, TurnRecord{UserText: userText, AgentText: agentText, At: now})
	if maxTurns > 0 && len(s.History) > maxTurns {
		s.History = append([]TurnRecord(nil), s.History[len(s.History)-maxTurns:]...)
	}
	if agentText != "" {
		s.LastAgentMsg = agentText
	}
	s.LastSeenAt = now
}

// Expired reports whether the session passed its inactivity TTL.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastSeenAt) > ttl
}

// ResetToStart wipes conversational state after expiry, keeping identity.
func (s *Session) ResetToStart(now time.Time) {
	fresh := New(s.TenantID, s.CallID, s.Channel, now)
	fresh.CreatedAt = s.CreatedAt
	*s = *fresh
}

// sanitize repairs state/flag mismatches on load. Returns true when
// something had to be healed so the caller can log it.
func (s *Session) sanitize() bool {
	healed := false
	if s.IsReadingSlots && s.State != StateWaitConfirm {
		s.IsReadingSlots = false
		healed = true
	}
	if s.Recovery == nil {
		s.Recovery = map[string]int{}
		healed = true
	}
	if !s.State.BookingState() && s.State != StateModifyName && s.State != StateModifyNotFound {
		if len(s.Booking.Offered) > 0 || s.Booking.ChosenIndex >= 0 {
			s.Booking.Clear()
			healed = true
		}
	}
	return healed
}
