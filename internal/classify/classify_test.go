package classify

import (
	"testing"
	"time"
)

func testClassifier() *Classifier {
	return New(Config{
		OverlapWindow:   700 * time.Millisecond,
		CrossTalkWindow: 1500 * time.Millisecond,
		NoiseConfidence: 0.35,
		ShortConfidence: 0.55,
		MinShortLen:     4,
	})
}

func conf(v float64) *float64 { return &v }

func TestPartialDiscarded(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "I would like to", Final: false})
	if r.Kind != KindDiscard {
		t.Fatalf("partial must be discarded, got %s", r.Kind)
	}
}

func TestEmptyIsSilence(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "   ", Final: true})
	if r.Kind != KindSilence {
		t.Fatalf("expected silence, got %s", r.Kind)
	}
}

func TestEmptyWithDegenerateConfidenceIsNoise(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "", Final: true, Confidence: conf(0.1)})
	if r.Kind != KindNoise {
		t.Fatalf("expected noise, got %s", r.Kind)
	}
}

func TestFillerOnlyStrippedToSilence(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "uh um hmm", Final: true})
	if r.Kind != KindSilence {
		t.Fatalf("edge fillers only must classify silence, got %s", r.Kind)
	}
}

func TestCriticalTokenNeverNoise(t *testing.T) {
	c := testClassifier()
	// Rock-bottom confidence, but "no" is critical.
	r := c.Classify(Input{Text: "no", Final: true, Confidence: conf(0.05)})
	if r.Kind != KindText {
		t.Fatalf("critical token must classify text, got %s", r.Kind)
	}
}

func TestCriticalTokenCutsThroughOverlapWindow(t *testing.T) {
	c := testClassifier()
	// Barge-in: "no" spoken 100ms after the agent started talking.
	r := c.Classify(Input{Text: "No!", Final: true, Voice: true, SinceReply: 100 * time.Millisecond})
	if r.Kind != KindText {
		t.Fatalf("barge-in critical token must be processed, got %s", r.Kind)
	}
}

func TestConfirmMarkerIsCritical(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "I confirm that", Final: true, Confidence: conf(0.1), Voice: true, SinceReply: 200 * time.Millisecond})
	if r.Kind != KindText {
		t.Fatalf("confirm marker must be critical, got %s", r.Kind)
	}
}

func TestOverlapWindowShortText(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "so", Final: true, Voice: true, SinceReply: 300 * time.Millisecond})
	if r.Kind != KindOverlap {
		t.Fatalf("short ambiguous input in overlap window must be overlap, got %s", r.Kind)
	}
}

func TestCrossTalkWindowShortText(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "wha", Final: true, Voice: true, SinceReply: 1200 * time.Millisecond})
	if r.Kind != KindOverlap {
		t.Fatalf("short input in cross-talk window must be overlap, got %s", r.Kind)
	}
}

func TestSpeakingAgentMakesShortTextOverlap(t *testing.T) {
	c := testClassifier()
	// Outside both fixed windows, but the agent is still talking.
	r := c.Classify(Input{Text: "eh", Final: true, Voice: true,
		SinceReply: 3 * time.Second, Speaking: true})
	if r.Kind != KindOverlap {
		t.Fatalf("expected overlap while agent speaking, got %s", r.Kind)
	}
	r = c.Classify(Input{Text: "zq", Final: true, Voice: true,
		Confidence: conf(0.3), SinceReply: 3 * time.Second, Speaking: true})
	if r.Kind != KindOverlap {
		t.Fatalf("expected overlap for low confidence while speaking, got %s", r.Kind)
	}
}

func TestCriticalTokenCutsThroughSpeaking(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "no", Final: true, Voice: true,
		SinceReply: 200 * time.Millisecond, Speaking: true})
	if r.Kind != KindText {
		t.Fatalf("critical token suppressed while speaking: %s", r.Kind)
	}
}

func TestLongTextOutsideWindowsIsText(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "I would like to book an appointment", Final: true, Voice: true, SinceReply: 3 * time.Second})
	if r.Kind != KindText {
		t.Fatalf("expected text, got %s", r.Kind)
	}
	if r.Normalized != "i would like to book an appointment" {
		t.Fatalf("unexpected normalization %q", r.Normalized)
	}
}

func TestLowConfidenceShortTextIsNoise(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "grb", Final: true, Confidence: conf(0.2)})
	if r.Kind != KindNoise {
		t.Fatalf("low-confidence short text must be noise, got %s", r.Kind)
	}
}

func TestTextChannelIgnoresWindows(t *testing.T) {
	c := testClassifier()
	r := c.Classify(Input{Text: "hi", Final: true, Voice: false, SinceReply: 100 * time.Millisecond})
	if r.Kind != KindText {
		t.Fatalf("timing windows are voice-only, got %s", r.Kind)
	}
}

func TestNormalizePreservesIntentWords(t *testing.T) {
	if got := Normalize("Uh, no thanks."); got != "no thanks" {
		t.Fatalf("unexpected normalization %q", got)
	}
}
