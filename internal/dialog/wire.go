package dialog

import (
	"time"

	"bookline/agent/internal/classify"
	"bookline/agent/internal/config"
	"bookline/agent/internal/recovery"
)

// OptionsFromConfig maps the flat configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		SessionTTL:      time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		HistoryTurns:    cfg.Session.HistoryTurns,
		AntiLoopTurns:   cfg.Recovery.AntiLoopTurns,
		MaxRouterVisits: cfg.Recovery.MaxRouterVisits,
		NoiseCooldown:   time.Duration(cfg.Timing.NoiseCooldownSec) * time.Second,
		MaxInputLen:     cfg.Input.MaxLen,

		ConflictRetries:     cfg.Booking.ConflictRetries,
		NeighborhoodMinutes: cfg.Booking.NeighborhoodMinutes,
		ClosingHour:         cfg.Booking.ClosingHour,
		MaxOffersText:       cfg.Booking.MaxOffersText,
		MaxConsecRejects:    cfg.Booking.MaxConsecRejects,
		LookaheadDays:       cfg.Booking.LookaheadDays,
		CalendarTimeout:     time.Duration(cfg.Calendar.TimeoutSec) * time.Second,
	}
}

// ClassifierConfig maps the timing section onto the classifier.
func ClassifierConfig(cfg config.Config) classify.Config {
	return classify.Config{
		OverlapWindow:   time.Duration(cfg.Timing.OverlapWindowMs) * time.Millisecond,
		CrossTalkWindow: time.Duration(cfg.Timing.CrossTalkWindowMs) * time.Millisecond,
		NoiseConfidence: cfg.Timing.NoiseConfidence,
		ShortConfidence: cfg.Timing.ShortConfidence,
		MinShortLen:     cfg.Timing.MinShortTextLen,
	}
}

// RecoveryConfig maps the recovery section onto the retry policy.
func RecoveryConfig(cfg config.Config) recovery.Config {
	return recovery.Config{
		MaxRetries:      cfg.Recovery.MaxRetries,
		MaxNoise:        cfg.Recovery.MaxNoise,
		MaxSilence:      cfg.Recovery.MaxSilence,
		MaxRouterVisits: cfg.Recovery.MaxRouterVisits,
	}
}
