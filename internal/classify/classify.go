// Package classify turns raw transcript events into one of a small set of
// input kinds. It is the first gate of every turn: partials are discarded,
// silence and noise are split off, and timing windows separate genuine
// speech from cross-talk while the agent is still playing back.
package classify

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the classification outcome driving the turn.
type Kind int

const (
	// KindDiscard means a partial transcript: no state transition, no reply.
	KindDiscard Kind = iota
	KindSilence
	KindNoise
	// KindOverlap means the caller was likely talking over the agent; no
	// failure counter is incremented.
	KindOverlap
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindDiscard:
		return "discard"
	case KindSilence:
		return "silence"
	case KindNoise:
		return "noise"
	case KindOverlap:
		return "overlap"
	default:
		return "text"
	}
}

// Input is one raw transcript event plus timing metadata.
type Input struct {
	Text       string
	Confidence *float64 // 0-1, absent when the platform gives none
	Final      bool
	Voice      bool
	// SinceReply is the elapsed time since the agent's last reply started
	// playing. Zero means unknown.
	SinceReply time.Duration
	// Speaking is set while the agent's own prompt is still estimated to
	// be playing out.
	Speaking bool
}

// Result is the classification plus the normalized text for downstream
// intent detection.
type Result struct {
	Kind       Kind
	Normalized string
}

// Config carries the timing windows and confidence thresholds.
type Config struct {
	OverlapWindow   time.Duration
	CrossTalkWindow time.Duration
	NoiseConfidence float64
	ShortConfidence float64
	MinShortLen     int
}

type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	if cfg.MinShortLen <= 0 {
		cfg.MinShortLen = 4
	}
	return &Classifier{cfg: cfg}
}

// criticalTokens must never be classified as noise and must cut through
// timing windows: a caller saying "no" during playback is a barge-in.
var criticalTokens = map[string]bool{
	"yes": true, "no": true, "yeah": true, "yep": true, "nope": true,
	"ok": true, "okay": true, "stop": true, "confirm": true, "cancel": true,
	"one": true, "two": true, "three": true, "four": true,
	"1": true, "2": true, "3": true, "4": true,
}

// edgeFillers are stripped from the edges of the utterance only; short
// words that double as intents ("no", "ok") are never fillers.
var edgeFillers = map[string]bool{
	"uh": true, "um": true, "er": true, "erm": true, "hmm": true,
	"ah": true, "oh": true, "mhm": true, "hm": true,
}

// Classify applies the classification algorithm in fixed order.
func (c *Classifier) Classify(in Input) Result {
	// 1. Partials never drive a turn.
	if !in.Final {
		return Result{Kind: KindDiscard}
	}

	norm := Normalize(in.Text)

	// 2. Empty after normalization: silence, unless a degenerate non-zero
	// confidence signals line noise.
	if norm == "" {
		if in.Confidence != nil && *in.Confidence > 0 && *in.Confidence < c.cfg.NoiseConfidence {
			return Result{Kind: KindNoise}
		}
		return Result{Kind: KindSilence}
	}

	// 3. Critical tokens pass unconditionally, windows included (barge-in).
	if IsCritical(norm) {
		return Result{Kind: KindText, Normalized: norm}
	}

	short := utf8.RuneCountInString(norm) < c.cfg.MinShortLen

	// 4. Timing windows, voice only. While the agent is still talking
	// anything ambiguous is cross-talk; after that, inside the overlap
	// window anything ambiguous is, and inside the longer window only
	// short text is.
	if in.Voice {
		lowConf := in.Confidence != nil && *in.Confidence < c.cfg.ShortConfidence
		if in.Speaking && (short || lowConf) {
			return Result{Kind: KindOverlap, Normalized: norm}
		}
		if in.SinceReply > 0 {
			if in.SinceReply < c.cfg.OverlapWindow && (short || lowConf) {
				return Result{Kind: KindOverlap, Normalized: norm}
			}
			if in.SinceReply < c.cfg.CrossTalkWindow && short {
				return Result{Kind: KindOverlap, Normalized: norm}
			}
		}
	}

	// 5. Confidence thresholds: a low score on short text is line noise; a
	// filler-heavy short utterance needs a higher score to count as speech.
	if in.Confidence != nil {
		if short && *in.Confidence < c.cfg.NoiseConfidence {
			return Result{Kind: KindNoise}
		}
		if short && fillerOnly(in.Text) && *in.Confidence < c.cfg.ShortConfidence {
			return Result{Kind: KindNoise}
		}
	}

	return Result{Kind: KindText, Normalized: norm}
}

// Normalize lowercases, trims punctuation, and strips interjection fillers
// from the edges only, preserving short words that double as intents.
func Normalize(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		words[i] = strings.Trim(w, ".,!?;:'\"()")
	}
	// Strip leading fillers.
	for len(words) > 0 && edgeFillers[words[0]] {
		words = words[1:]
	}
	// Strip trailing fillers.
	for len(words) > 0 && edgeFillers[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	kept := words[:0]
	for _, w := range words {
		if w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// IsCritical reports whether the normalized text is (or contains the marker
// form of) a critical token.
func IsCritical(norm string) bool {
	if criticalTokens[norm] {
		return true
	}
	// Marker word: "confirm" anywhere opts the utterance in.
	for _, w := range strings.Fields(norm) {
		if w == "confirm" {
			return true
		}
	}
	return false
}

func fillerOnly(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !edgeFillers[strings.Trim(w, ".,!?;:'\"")] {
			return false
		}
	}
	return true
}
