// Package events is the fire-and-forget emission channel for downstream
// reporting. Emission never blocks a turn and never crashes the core.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the dialogue core.
const (
	TypeBookingConfirmed = "booking_confirmed"
	TypeBookingCancelled = "booking_cancelled"
	TypeTransfer         = "transfer"
	TypeSilentTransfer   = "silent_transfer"
	TypeRecoveryStep     = "recovery_step"
	TypeAntiLoop         = "anti_loop"
	TypeCalendarFault    = "calendar_fault"
	TypeNoise            = "noise"
	TypeSilence          = "silence"
	TypeOverlap          = "overlap"
	TypeSessionExpired   = "session_expired"
	TypeStrongOverride   = "strong_override"
	TypeStateHealed      = "state_healed"
)

type Event struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	CallID    string         `json:"call_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Store keeps a bounded per-call event tail for the debug endpoint and logs
// every event for downstream collection.
type Store struct {
	mu     sync.RWMutex
	byCall map[string][]Event
}

func NewStore() *Store {
	return &Store{byCall: make(map[string][]Event)}
}

// maxEvents caps the per-call tail to avoid unbounded growth.
const maxEvents = 200

// Emit records an event. It must never panic: a reporting failure is not
// allowed to take a call down with it.
func (s *Store) Emit(tenant, call, typ string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] emit recovered: %v", r)
		}
	}()

	evt := Event{
		ID:        uuid.New().String(),
		TenantID:  tenant,
		CallID:    call,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	log.Printf("[events] %s tenant=%s call=%s", typ, tenant, call)

	k := tenant + "/" + call
	s.mu.Lock()
	s.byCall[k] = append(s.byCall[k], evt)
	if l := len(s.byCall[k]); l > maxEvents {
		keep := maxEvents - 1
		dropped := l - keep
		s.byCall[k] = append([]Event(nil), s.byCall[k][l-keep:]...)
		warn := Event{
			ID: uuid.New().String(), TenantID: tenant, CallID: call,
			Type: "events_truncated", Timestamp: time.Now().UTC(),
			Payload: map[string]any{"dropped": dropped, "kept": keep},
		}
		s.byCall[k] = append(s.byCall[k], warn)
	}
	s.mu.Unlock()
}

// List returns a copy of the event tail for a call.
func (s *Store) List(tenant, call string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.byCall[tenant+"/"+call]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}
