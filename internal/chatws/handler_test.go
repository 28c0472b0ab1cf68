package chatws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookline/agent/internal/calendar"
	"bookline/agent/internal/catalog"
	"bookline/agent/internal/classify"
	"bookline/agent/internal/config"
	"bookline/agent/internal/dialog"
	"bookline/agent/internal/events"
	"bookline/agent/internal/recovery"
	"bookline/agent/internal/sessions"

	ws "nhooyr.io/websocket"
)

type stubGateway struct{}

func (stubGateway) ListSlots(ctx context.Context, tenant string, rng calendar.Range, c calendar.Constraints) ([]calendar.Slot, error) {
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	return []calendar.Slot{{Ref: "s1", Start: start, End: start.Add(30 * time.Minute)}}, nil
}

func (stubGateway) Commit(ctx context.Context, tenant string, slot calendar.Slot, holder string) calendar.CommitResult {
	return calendar.CommitResult{Outcome: calendar.OutcomeOK, Ref: "bk-1"}
}

func (stubGateway) Cancel(ctx context.Context, tenant, ref string) (bool, error) { return true, nil }

func (stubGateway) FindBooking(ctx context.Context, tenant, name string) (*calendar.Slot, error) {
	return nil, nil
}

type memStore struct{ m map[string]*sessions.Session }

func (s *memStore) GetOrCreate(ctx context.Context, tenant, call, channel string) (*sessions.Session, error) {
	k := tenant + "/" + call
	if got := s.m[k]; got != nil {
		return got, nil
	}
	sess := sessions.New(tenant, call, channel, time.Now().UTC())
	s.m[k] = sess
	return sess, nil
}

func (s *memStore) Save(ctx context.Context, sess *sessions.Session) error { return nil }

func (s *memStore) Delete(ctx context.Context, tenant, call string) error { return nil }

type staticResolver struct{}

func (staticResolver) Resolve(channel, key string) (string, bool) { return "clinic-a", true }

func TestChatRoundTrip(t *testing.T) {
	cfg := config.Load()
	engine := dialog.NewEngine(
		&memStore{m: map[string]*sessions.Session{}},
		sessions.NewLocker(2*time.Second),
		stubGateway{},
		catalog.MustLoad(),
		catalog.MustLoadFAQ(cfg.FAQ.MatchThreshold),
		classify.New(dialog.ClassifierConfig(cfg)),
		recovery.New(dialog.RecoveryConfig(cfg)),
		events.NewStore(),
		dialog.OptionsFromConfig(cfg),
	)
	s := NewServer(engine, staticResolver{}, NewRegistry())

	srv := httptest.NewServer(http.HandlerFunc(s.HandleChatWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?tenant_id=clinic-a&call_id=chat-1"
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	msg, _ := json.Marshal(Inbound{Type: "message", Text: "i would like to book an appointment"})
	if err := c.Write(ctx, ws.MessageText, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out Outbound
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Reply == "" {
		t.Fatalf("empty reply")
	}
	if out.State != "QUALIF_NAME" {
		t.Fatalf("state = %q, want QUALIF_NAME", out.State)
	}
	if out.CallID != "chat-1" {
		t.Fatalf("call_id = %q", out.CallID)
	}
}
