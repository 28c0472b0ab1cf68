package sessions

import (
	"encoding/json"
	"fmt"
)

// CurrentVersion is the schema version written by this build.
//
// v1: no recovery map, no history ring, no router visit counter.
// v2: current layout.
const CurrentVersion = 2

// envelope wraps the stored session with an explicit schema version so that
// upgrades are a deliberate step instead of silent field defaulting.
type envelope struct {
	Version int             `json:"version"`
	Session json.RawMessage `json:"session"`
}

// Encode marshals a session into its versioned stored form.
func Encode(s *Session) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: CurrentVersion, Session: raw})
}

// Decode unmarshals a stored record, upgrading older versions. A record
// newer than this build is an error (the caller falls back to a fresh
// session rather than misreading it).
func Decode(data []byte) (*Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version > CurrentVersion {
		return nil, fmt.Errorf("session version %d newer than supported %d", env.Version, CurrentVersion)
	}
	var s Session
	if err := json.Unmarshal(env.Session, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := upgrade(&s, env.Version); err != nil {
		return nil, err
	}
	return &s, nil
}

// upgrade fills fields introduced after the stored version.
func upgrade(s *Session, from int) error {
	switch from {
	case 0, 1:
		if s.Recovery == nil {
			s.Recovery = map[string]int{}
		}
		if s.History == nil {
			s.History = []TurnRecord{}
		}
		if s.Booking.ChosenIndex == 0 && len(s.Booking.Offered) == 0 {
			// v1 had no "no choice" sentinel
			s.Booking.ChosenIndex = -1
		}
	case CurrentVersion:
		// Up to date.
	default:
		return fmt.Errorf("unknown session version %d", from)
	}
	return nil
}
