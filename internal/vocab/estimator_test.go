package vocab

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"codeberg.org/snonux/lexigap/internal/kvstore"
	"codeberg.org/snonux/lexigap/internal/wordlist"
)

func TestEstimator_MarkKnownHardWordNudgesUp(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)
	before := e.VocabularySize()

	e.MarkKnown(ctx, "ephemeral", 9)

	if got := e.VocabularySize(); got <= before {
		t.Errorf("Expected estimate to rise, got %d (was %d)", got, before)
	}
	p := e.Profile()
	if !p.KnownWords["ephemeral"] {
		t.Error("Expected word recorded as known")
	}
}

func TestEstimator_MarkUnknownEasyWordNudgesDown(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)
	before := e.VocabularySize()

	e.MarkUnknown(ctx, "water", 2)

	if got := e.VocabularySize(); got >= before {
		t.Errorf("Expected estimate to drop, got %d (was %d)", got, before)
	}
}

func TestEstimator_MarkingFlipsSets(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)

	e.MarkUnknown(ctx, "ephemeral", 7)
	e.MarkKnown(ctx, "ephemeral", 7)

	p := e.Profile()
	if !p.KnownWords["ephemeral"] || p.UnknownWords["ephemeral"] {
		t.Errorf("Expected word to move from unknown to known: %+v", p)
	}
}

func TestEstimator_ConfidenceSaturatesAndNeverDropsFromMarking(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)

	prev := e.Profile().Confidence
	for i := 0; i < 500; i++ {
		e.MarkKnown(ctx, "word", 5)
		c := e.Profile().Confidence
		if c < prev {
			t.Fatalf("Confidence dropped from %f to %f on marking", prev, c)
		}
		if c > 1 {
			t.Fatalf("Confidence exceeded 1: %f", c)
		}
		prev = c
	}
	if prev < 0.99 {
		t.Errorf("Expected confidence to saturate toward 1, got %f", prev)
	}
}

func TestEstimator_EstimateStaysInBounds(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)

	for i := 0; i < 200; i++ {
		e.MarkUnknown(ctx, "the", 1)
	}
	if got := e.VocabularySize(); got < MinVocabulary {
		t.Errorf("Estimate fell below floor: %d", got)
	}

	for i := 0; i < 500; i++ {
		e.MarkKnown(ctx, "abstruse", 10)
	}
	if got := e.VocabularySize(); got > MaxVocabulary {
		t.Errorf("Estimate exceeded ceiling: %d", got)
	}
}

func TestEstimator_QuizReplacesEstimate(t *testing.T) {
	ctx := context.Background()
	e := NewEstimator(ctx, nil)
	now := time.Now()

	// All correct: top of the range.
	perfect := []QuizAnswer{
		{Word: "the", Difficulty: 1, Correct: true},
		{Word: "hypothesis", Difficulty: 5, Correct: true},
		{Word: "ephemeral", Difficulty: 7, Correct: true},
	}
	if got := e.ApplyQuizResult(ctx, perfect, now); got != MaxVocabulary {
		t.Errorf("Perfect quiz: expected %d, got %d", MaxVocabulary, got)
	}
	if c := e.Profile().Confidence; c != 0.9 {
		t.Errorf("Expected quiz confidence 0.9, got %f", c)
	}

	// All wrong: bottom of the range, replacing the previous high estimate.
	failed := []QuizAnswer{
		{Word: "the", Difficulty: 1, Correct: false},
		{Word: "hypothesis", Difficulty: 5, Correct: false},
	}
	if got := e.ApplyQuizResult(ctx, failed, now); got != MinVocabulary {
		t.Errorf("Failed quiz: expected %d, got %d", MinVocabulary, got)
	}
}

func TestEstimator_QuizAccuracyIsDifficultyWeighted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// Same number of correct answers; getting the hard one right must
	// yield a higher estimate than getting the easy one right.
	hardRight := NewEstimator(ctx, nil).ApplyQuizResult(ctx, []QuizAnswer{
		{Word: "ephemeral", Difficulty: 9, Correct: true},
		{Word: "the", Difficulty: 1, Correct: false},
	}, now)
	easyRight := NewEstimator(ctx, nil).ApplyQuizResult(ctx, []QuizAnswer{
		{Word: "ephemeral", Difficulty: 9, Correct: false},
		{Word: "the", Difficulty: 1, Correct: true},
	}, now)

	if hardRight <= easyRight {
		t.Errorf("Expected difficulty weighting: hardRight=%d easyRight=%d", hardRight, easyRight)
	}
}

func TestEstimator_NeedsReassessment(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	e := NewEstimator(ctx, nil)
	e.ApplyQuizResult(ctx, []QuizAnswer{{Word: "x", Difficulty: 5, Correct: true}}, now)

	if e.NeedsReassessment(now) {
		t.Error("Fresh quiz should not need reassessment")
	}

	// Low confidence triggers.
	e.DecayConfidence(0.6)
	if !e.NeedsReassessment(now) {
		t.Error("Expected reassessment at low confidence")
	}

	// Many markings plus elapsed time triggers.
	e2 := NewEstimator(ctx, nil)
	e2.ApplyQuizResult(ctx, []QuizAnswer{{Word: "x", Difficulty: 5, Correct: true}}, now)
	for i := 0; i < 60; i++ {
		e2.MarkKnown(ctx, "word", 5)
	}
	if e2.NeedsReassessment(now) {
		t.Error("Markings alone within the interval should not trigger")
	}
	if !e2.NeedsReassessment(now.Add(15 * 24 * time.Hour)) {
		t.Error("Expected reassessment after markings plus elapsed time")
	}
}

func TestEstimator_Persistence(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	e := NewEstimator(ctx, store)
	e.MarkKnown(ctx, "ephemeral", 9)
	want := e.VocabularySize()

	again := NewEstimator(ctx, store)
	if got := again.VocabularySize(); got != want {
		t.Errorf("Expected persisted estimate %d, got %d", want, got)
	}
	if !again.Profile().KnownWords["ephemeral"] {
		t.Error("Expected known words to persist")
	}
}

// brokenStore is a Store whose writes always fail.
type brokenStore struct {
	kvstore.Store
}

func (brokenStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

func TestEstimator_SaveFailureIsLoggedNotLost(t *testing.T) {
	ctx := context.Background()
	var logged strings.Builder

	e := NewEstimator(ctx, brokenStore{Store: kvstore.NewMemory()})
	e.logger = slog.New(slog.NewTextHandler(&logged, nil))
	before := e.VocabularySize()

	e.MarkKnown(ctx, "ephemeral", 9)

	if !strings.Contains(logged.String(), "profile not persisted") {
		t.Errorf("Expected a warning about the failed save, got %q", logged.String())
	}
	if !strings.Contains(logged.String(), "disk full") {
		t.Errorf("Expected the store error in the log, got %q", logged.String())
	}
	// The marking still applies in memory.
	if got := e.VocabularySize(); got <= before {
		t.Errorf("Expected estimate to rise despite the failed save, got %d", got)
	}
}

func TestBuildQuiz(t *testing.T) {
	c := wordlist.NewClassifier()
	questions := BuildQuiz(c)

	if len(questions) != QuizSize {
		t.Fatalf("Expected %d questions, got %d", QuizSize, len(questions))
	}

	seen := make(map[string]bool)
	tiers := make(map[int]int)
	for _, q := range questions {
		if seen[q.Word] {
			t.Errorf("Duplicate quiz word %q", q.Word)
		}
		seen[q.Word] = true
		tiers[q.Difficulty]++
	}
	// The battery must span easy and hard tiers.
	if tiers[1] == 0 || tiers[7] == 0 {
		t.Errorf("Expected both tier 1 and tier 7 questions, got %v", tiers)
	}
}
