package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Session struct {
		DBPath        string
		TTLMinutes    int
		LockTimeoutMs int
		HistoryTurns  int
	}
	Timing struct {
		OverlapWindowMs   int
		CrossTalkWindowMs int
		NoiseConfidence   float64
		ShortConfidence   float64
		MinShortTextLen   int
		NoiseCooldownSec  int
	}
	Recovery struct {
		MaxRetries      int
		MaxNoise        int
		MaxSilence      int
		MaxRouterVisits int
		AntiLoopTurns   int
	}
	Booking struct {
		ConflictRetries     int
		NeighborhoodMinutes int
		ClosingHour         int
		MaxOffersText       int
		MaxConsecRejects    int
		LookaheadDays       int
	}
	Calendar struct {
		BaseURL    string
		APIKey     string
		TimeoutSec int
	}
	FAQ struct {
		MatchThreshold float64
	}
	Input struct {
		MaxLen int
	}
	Routing struct {
		TablePath     string
		DefaultTenant string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("session.db_path", "sessions.db")
	v.SetDefault("session.ttl_minutes", 30)
	v.SetDefault("session.lock_timeout_ms", 2000)
	v.SetDefault("session.history_turns", 10)

	v.SetDefault("timing.overlap_window_ms", 700)
	v.SetDefault("timing.cross_talk_window_ms", 1500)
	v.SetDefault("timing.noise_confidence", 0.35)
	v.SetDefault("timing.short_confidence", 0.55)
	v.SetDefault("timing.min_short_text_len", 4)
	v.SetDefault("timing.noise_cooldown_sec", 4)

	v.SetDefault("recovery.max_retries", 2)
	v.SetDefault("recovery.max_noise", 2)
	v.SetDefault("recovery.max_silence", 2)
	v.SetDefault("recovery.max_router_visits", 2)
	v.SetDefault("recovery.anti_loop_turns", 30)

	v.SetDefault("booking.conflict_retries", 1)
	v.SetDefault("booking.neighborhood_minutes", 60)
	v.SetDefault("booking.closing_hour", 19)
	v.SetDefault("booking.max_offers_text", 3)
	v.SetDefault("booking.max_consec_rejects", 2)
	v.SetDefault("booking.lookahead_days", 14)

	v.SetDefault("calendar.timeout_sec", 6)

	v.SetDefault("faq.match_threshold", 0.80)

	v.SetDefault("input.max_len", 500)

	v.SetDefault("routing.default_tenant", "")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("session.db_path", "SESSION_DB_PATH")
	v.BindEnv("session.ttl_minutes", "SESSION_TTL_MINUTES")
	v.BindEnv("session.lock_timeout_ms", "SESSION_LOCK_TIMEOUT_MS")
	v.BindEnv("session.history_turns", "SESSION_HISTORY_TURNS")

	v.BindEnv("timing.overlap_window_ms", "TIMING_OVERLAP_WINDOW_MS")
	v.BindEnv("timing.cross_talk_window_ms", "TIMING_CROSS_TALK_WINDOW_MS")
	v.BindEnv("timing.noise_confidence", "TIMING_NOISE_CONFIDENCE")
	v.BindEnv("timing.short_confidence", "TIMING_SHORT_CONFIDENCE")
	v.BindEnv("timing.min_short_text_len", "TIMING_MIN_SHORT_TEXT_LEN")
	v.BindEnv("timing.noise_cooldown_sec", "TIMING_NOISE_COOLDOWN_SEC")

	v.BindEnv("recovery.max_retries", "RECOVERY_MAX_RETRIES")
	v.BindEnv("recovery.max_noise", "RECOVERY_MAX_NOISE")
	v.BindEnv("recovery.max_silence", "RECOVERY_MAX_SILENCE")
	v.BindEnv("recovery.max_router_visits", "RECOVERY_MAX_ROUTER_VISITS")
	v.BindEnv("recovery.anti_loop_turns", "RECOVERY_ANTI_LOOP_TURNS")

	v.BindEnv("booking.conflict_retries", "BOOKING_CONFLICT_RETRIES")
	v.BindEnv("booking.neighborhood_minutes", "BOOKING_NEIGHBORHOOD_MINUTES")
	v.BindEnv("booking.closing_hour", "BOOKING_CLOSING_HOUR")
	v.BindEnv("booking.max_offers_text", "BOOKING_MAX_OFFERS_TEXT")
	v.BindEnv("booking.max_consec_rejects", "BOOKING_MAX_CONSEC_REJECTS")
	v.BindEnv("booking.lookahead_days", "BOOKING_LOOKAHEAD_DAYS")

	v.BindEnv("calendar.base_url", "CALENDAR_BASE_URL")
	v.BindEnv("calendar.api_key", "CALENDAR_API_KEY")
	v.BindEnv("calendar.timeout_sec", "CALENDAR_TIMEOUT_SEC")

	v.BindEnv("faq.match_threshold", "FAQ_MATCH_THRESHOLD")

	v.BindEnv("input.max_len", "INPUT_MAX_LEN")

	v.BindEnv("routing.table_path", "ROUTING_TABLE_PATH")
	v.BindEnv("routing.default_tenant", "ROUTING_DEFAULT_TENANT")

	var c Config
	c.Server.Port = v.GetString("server.port")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Session.DBPath = v.GetString("session.db_path")
	c.Session.TTLMinutes = v.GetInt("session.ttl_minutes")
	c.Session.LockTimeoutMs = v.GetInt("session.lock_timeout_ms")
	c.Session.HistoryTurns = v.GetInt("session.history_turns")

	c.Timing.OverlapWindowMs = v.GetInt("timing.overlap_window_ms")
	c.Timing.CrossTalkWindowMs = v.GetInt("timing.cross_talk_window_ms")
	c.Timing.NoiseConfidence = v.GetFloat64("timing.noise_confidence")
	c.Timing.ShortConfidence = v.GetFloat64("timing.short_confidence")
	c.Timing.MinShortTextLen = v.GetInt("timing.min_short_text_len")
	c.Timing.NoiseCooldownSec = v.GetInt("timing.noise_cooldown_sec")

	c.Recovery.MaxRetries = v.GetInt("recovery.max_retries")
	c.Recovery.MaxNoise = v.GetInt("recovery.max_noise")
	c.Recovery.MaxSilence = v.GetInt("recovery.max_silence")
	c.Recovery.MaxRouterVisits = v.GetInt("recovery.max_router_visits")
	c.Recovery.AntiLoopTurns = v.GetInt("recovery.anti_loop_turns")

	c.Booking.ConflictRetries = v.GetInt("booking.conflict_retries")
	c.Booking.NeighborhoodMinutes = v.GetInt("booking.neighborhood_minutes")
	c.Booking.ClosingHour = v.GetInt("booking.closing_hour")
	c.Booking.MaxOffersText = v.GetInt("booking.max_offers_text")
	c.Booking.MaxConsecRejects = v.GetInt("booking.max_consec_rejects")
	c.Booking.LookaheadDays = v.GetInt("booking.lookahead_days")

	c.Calendar.BaseURL = v.GetString("calendar.base_url")
	c.Calendar.APIKey = v.GetString("calendar.api_key")
	c.Calendar.TimeoutSec = v.GetInt("calendar.timeout_sec")

	c.FAQ.MatchThreshold = v.GetFloat64("faq.match_threshold")

	c.Input.MaxLen = v.GetInt("input.max_len")

	c.Routing.TablePath = v.GetString("routing.table_path")
	c.Routing.DefaultTenant = v.GetString("routing.default_tenant")

	log.Printf("config loaded: port=%s session_ttl_min=%d lock_timeout_ms=%d", c.Server.Port, c.Session.TTLMinutes, c.Session.LockTimeoutMs)
	return c
}
