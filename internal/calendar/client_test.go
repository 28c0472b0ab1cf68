package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testSlot() Slot {
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	return Slot{Ref: "slot-1", Start: start, End: start.Add(30 * time.Minute)}
}

func TestListSlotsSendsConstraints(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", r.Header.Get("Authorization"))
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(map[string]any{"slots": []Slot{testSlot()}})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "test-key", time.Second)
	rng := Range{From: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)}
	slots, err := gw.ListSlots(context.Background(), "clinic-a", rng, Constraints{Preference: "morning", NotBeforeHour: 10})
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(slots) != 1 || slots[0].Ref != "slot-1" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
	if gotQuery["tenant"] != "clinic-a" {
		t.Errorf("tenant = %q", gotQuery["tenant"])
	}
	if gotQuery["preference"] != "morning" {
		t.Errorf("preference = %q", gotQuery["preference"])
	}
	if gotQuery["not_before_hour"] != "10" {
		t.Errorf("not_before_hour = %q", gotQuery["not_before_hour"])
	}
}

func TestCommitOutcomeMapping(t *testing.T) {
	cases := []struct {
		status int
		want   Outcome
	}{
		{http.StatusOK, OutcomeOK},
		{http.StatusConflict, OutcomeConflict},
		{http.StatusForbidden, OutcomePermissionDenied},
		{http.StatusUnauthorized, OutcomePermissionDenied},
		{http.StatusInternalServerError, OutcomeTechnical},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			if tc.status == http.StatusOK {
				json.NewEncoder(w).Encode(map[string]string{"ref": "bk-9"})
			}
		}))
		gw := NewHTTPGateway(srv.URL, "k", time.Second)
		res := gw.Commit(context.Background(), "clinic-a", testSlot(), "john smith")
		srv.Close()
		if res.Outcome != tc.want {
			t.Errorf("status %d: outcome = %s, want %s", tc.status, res.Outcome, tc.want)
		}
		if tc.want == OutcomeOK && res.Ref != "bk-9" {
			t.Errorf("status %d: ref = %q", tc.status, res.Ref)
		}
		if tc.want != OutcomeOK && res.Err == nil {
			t.Errorf("status %d: want non-nil Err", tc.status)
		}
	}
}

func TestCommitUnreachableProviderIsTechnical(t *testing.T) {
	gw := NewHTTPGateway("http://127.0.0.1:1", "k", 200*time.Millisecond)
	res := gw.Commit(context.Background(), "clinic-a", testSlot(), "john smith")
	if res.Outcome != OutcomeTechnical {
		t.Fatalf("outcome = %s, want technical_error", res.Outcome)
	}
}

func TestCancelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "k", time.Second)
	ok, err := gw.Cancel(context.Background(), "clinic-a", "bk-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if ok {
		t.Fatal("want ok=false for missing booking")
	}
}

func TestFindBookingByHolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("holder") != "john smith" {
			t.Errorf("holder = %q", r.URL.Query().Get("holder"))
		}
		json.NewEncoder(w).Encode(map[string]any{"bookings": []Slot{testSlot()}})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "k", time.Second)
	slot, err := gw.FindBooking(context.Background(), "clinic-a", "john smith")
	if err != nil {
		t.Fatalf("FindBooking: %v", err)
	}
	if slot == nil || slot.Ref != "slot-1" {
		t.Fatalf("slot = %+v", slot)
	}
}

func TestFindBookingEmptyListIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"bookings": []Slot{}})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "k", time.Second)
	slot, err := gw.FindBooking(context.Background(), "clinic-a", "nobody")
	if err != nil {
		t.Fatalf("FindBooking: %v", err)
	}
	if slot != nil {
		t.Fatalf("want nil slot, got %+v", slot)
	}
}

func TestMatchesPreference(t *testing.T) {
	morning := Slot{Start: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)}
	afternoon := Slot{Start: time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)}
	if !MatchesPreference(morning, "morning") || MatchesPreference(morning, "afternoon") {
		t.Error("morning slot misclassified")
	}
	if !MatchesPreference(afternoon, "afternoon") || MatchesPreference(afternoon, "morning") {
		t.Error("afternoon slot misclassified")
	}
	if !MatchesPreference(morning, "") {
		t.Error("empty preference must match everything")
	}
}

func TestDayPeriodKey(t *testing.T) {
	if got := DayPeriodKey(time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)); got != "2026-09-07/morning" {
		t.Errorf("got %q", got)
	}
	if got := DayPeriodKey(time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)); got != "2026-09-07/afternoon" {
		t.Errorf("got %q", got)
	}
}
