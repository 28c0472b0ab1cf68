package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("SESSION_TTL_MINUTES")
	os.Unsetenv("BOOKING_CONFLICT_RETRIES")
	os.Unsetenv("FAQ_MATCH_THRESHOLD")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Session.TTLMinutes != 30 {
		t.Fatalf("expected default session ttl 30, got %d", c.Session.TTLMinutes)
	}
	if c.Booking.ConflictRetries != 1 {
		t.Fatalf("expected default conflict retries 1, got %d", c.Booking.ConflictRetries)
	}
	if c.FAQ.MatchThreshold != 0.80 {
		t.Fatalf("expected default faq threshold 0.80, got %f", c.FAQ.MatchThreshold)
	}
	if c.Recovery.MaxRouterVisits != 2 {
		t.Fatalf("expected default router visits 2, got %d", c.Recovery.MaxRouterVisits)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("BOOKING_CONFLICT_RETRIES", "3")
	defer os.Unsetenv("BOOKING_CONFLICT_RETRIES")

	c := Load()

	if c.Booking.ConflictRetries != 3 {
		t.Fatalf("expected conflict retries 3 from env, got %d", c.Booking.ConflictRetries)
	}
}
