package sessions

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s := New("t1", "call-1", "voice", now)
	s.State = StateQualifName
	s.Recovery["name"] = 1
	s.RecordTurn("hello", "May I have your full name, please?", now, 10)

	data, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != StateQualifName {
		t.Fatalf("expected state QUALIF_NAME, got %s", got.State)
	}
	if got.Recovery["name"] != 1 {
		t.Fatalf("recovery counter lost: %v", got.Recovery)
	}
	if len(got.History) != 1 {
		t.Fatalf("history lost: %d entries", len(got.History))
	}
}

func TestDecodeUpgradesV1(t *testing.T) {
	// v1 record: no recovery map, no history.
	raw, _ := json.Marshal(map[string]any{
		"tenant_id": "t1", "call_id": "c1", "channel": "voice", "state": "START",
	})
	env, _ := json.Marshal(map[string]any{"version": 1, "session": json.RawMessage(raw)})

	s, err := Decode(env)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if s.Recovery == nil {
		t.Fatal("upgrade must default the recovery map")
	}
	if s.History == nil {
		t.Fatal("upgrade must default the history ring")
	}
	if s.Booking.ChosenIndex != -1 {
		t.Fatalf("upgrade must set the no-choice sentinel, got %d", s.Booking.ChosenIndex)
	}
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	env, _ := json.Marshal(map[string]any{"version": 99, "session": json.RawMessage(`{}`)})
	if _, err := Decode(env); err == nil {
		t.Fatal("expected error for future version")
	}
}

func TestSanitizeReadingSlotsFlag(t *testing.T) {
	s := New("t1", "c1", "voice", time.Now())
	s.State = StateStart
	s.IsReadingSlots = true
	if !s.sanitize() {
		t.Fatal("expected heal to be reported")
	}
	if s.IsReadingSlots {
		t.Fatal("reading-slots flag must be forced false outside WAIT_CONFIRM")
	}

	s.State = StateWaitConfirm
	s.IsReadingSlots = true
	s.sanitize()
	if !s.IsReadingSlots {
		t.Fatal("flag must survive in WAIT_CONFIRM")
	}
}

func TestSanitizeClearsStrayBookingSet(t *testing.T) {
	s := New("t1", "c1", "voice", time.Now())
	s.State = StateStart
	s.Booking.ChosenIndex = 1
	s.sanitize()
	if s.Booking.ChosenIndex != -1 {
		t.Fatal("booking working set must be cleared outside booking states")
	}
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	s := New("t1", "c1", "voice", now)
	if s.Expired(now.Add(10*time.Minute), 30*time.Minute) {
		t.Fatal("session should not be expired before TTL")
	}
	if !s.Expired(now.Add(31*time.Minute), 30*time.Minute) {
		t.Fatal("session should be expired after TTL")
	}
}

func TestHistoryRingBounded(t *testing.T) {
	s := New("t1", "c1", "voice", time.Now())
	for i := 0; i < 20; i++ {
		s.RecordTurn("u", "a", time.Now(), 5)
	}
	if len(s.History) != 5 {
		t.Fatalf("history should be capped at 5, got %d", len(s.History))
	}
}

func TestHybridColdStartFallsBackToDurable(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQL(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	h := NewHybrid(db)
	s, err := h.GetOrCreate(ctx, "t1", "c1", "voice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	s.State = StateQualifMotive
	s.Qualif.Name = "Ada Lovelace"
	if err := h.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Fresh hybrid simulates process restart: cache empty, durable intact.
	h2 := NewHybrid(db)
	got, err := h2.GetOrCreate(ctx, "t1", "c1", "voice")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.State != StateQualifMotive || got.Qualif.Name != "Ada Lovelace" {
		t.Fatalf("durable state lost across restart: %+v", got)
	}
}

func TestHybridCorruptedRecordYieldsFresh(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQL(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Save(ctx, "t1", "c1", []byte("not json at all")); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	h := NewHybrid(db)
	got, err := h.GetOrCreate(ctx, "t1", "c1", "voice")
	if err != nil {
		t.Fatalf("get or create over corrupt record: %v", err)
	}
	if got.State != StateStart {
		t.Fatalf("corrupt record must yield a fresh session, got state %s", got.State)
	}
}

func TestLockerSerializesAndTimesOut(t *testing.T) {
	l := NewLocker(50 * time.Millisecond)
	ctx := context.Background()

	if err := l.Lock(ctx, "t1", "c1"); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	// Second acquisition on the same call must time out.
	if err := l.Lock(ctx, "t1", "c1"); err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	// A different call is independent.
	if err := l.Lock(ctx, "t1", "c2"); err != nil {
		t.Fatalf("independent call must not contend: %v", err)
	}
	l.Unlock("t1", "c1")
	if err := l.Lock(ctx, "t1", "c1"); err != nil {
		t.Fatalf("lock after unlock: %v", err)
	}
}
