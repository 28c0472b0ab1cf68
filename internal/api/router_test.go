package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

type staticResolver struct{ tenant string }

func (r staticResolver) Resolve(channel, key string) (string, bool) {
	if r.tenant == "" {
		return "", false
	}
	return r.tenant, true
}

func newTestServer(t *testing.T, resolver staticResolver) (*httptest.Server, *events.Store) {
	t.Helper()
	cfg := config.Load()
	ev := events.NewStore()
	engine := dialog.NewEngine(
		&memStore{m: map[string]*sessions.Session{}},
		sessions.NewLocker(2*time.Second),
		stubGateway{},
		catalog.MustLoad(),
		catalog.MustLoadFAQ(cfg.FAQ.MatchThreshold),
		classify.New(dialog.ClassifierConfig(cfg)),
		recovery.New(dialog.RecoveryConfig(cfg)),
		ev,
		dialog.OptionsFromConfig(cfg),
	)
	h := NewHandlers(engine, resolver, ev)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, ev
}

func postTurn(t *testing.T, srv *httptest.Server, body map[string]any) (*http.Response, turnResponse) {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/v1/turn", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var out turnResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	resp.Body.Close()
	return resp, out
}

func TestTurnEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, staticResolver{tenant: "clinic-a"})

	resp, out := postTurn(t, srv, map[string]any{
		"routing_key": "+15550100",
		"call_id":     "call-1",
		"channel":     "voice",
		"text":        "i would like to book an appointment",
		"confidence":  0.9,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out.Reply == "" {
		t.Fatalf("empty reply")
	}
	if out.State != "QUALIF_NAME" {
		t.Fatalf("state = %q, want QUALIF_NAME", out.State)
	}
}

func TestTurnMissingCallID400(t *testing.T) {
	srv, _ := newTestServer(t, staticResolver{tenant: "clinic-a"})
	resp, _ := postTurn(t, srv, map[string]any{"text": "hello"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTurnUnknownRoutingKey404(t *testing.T) {
	srv, _ := newTestServer(t, staticResolver{})
	resp, _ := postTurn(t, srv, map[string]any{
		"routing_key": "+15559999",
		"call_id":     "call-1",
		"text":        "hello",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, ev := newTestServer(t, staticResolver{tenant: "clinic-a"})
	ev.Emit("clinic-a", "call-1", events.TypeTransfer, map[string]any{"reason": "requested"})

	resp, err := http.Get(srv.URL + "/v1/calls/clinic-a/call-1/events")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Events []events.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Type != events.TypeTransfer {
		t.Fatalf("unexpected events %+v", body.Events)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, staticResolver{tenant: "clinic-a"})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
