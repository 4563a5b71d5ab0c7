// Package vocab maintains the incremental, confidence-weighted estimate of
// the reader's vocabulary size. Marking actions nudge the estimate; a
// calibration quiz replaces it.
package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/snonux/lexigap/internal/kvstore"
)

// Vocabulary estimate bounds. Quiz accuracy maps linearly onto this range.
const (
	MinVocabulary = 2000
	MaxVocabulary = 15000
)

const (
	// profileKey is where the profile lives in the synced scope.
	profileKey = "user-profile"

	// quizConfidence is the fixed confidence a calibration quiz sets.
	quizConfidence = 0.9

	// confidenceGain saturates confidence toward 1 per marking action.
	confidenceGain = 0.02

	// reassessment triggers.
	reassessConfidence  = 0.4
	reassessMarkings    = 50
	reassessMinInterval = 14 * 24 * time.Hour
)

// Profile is the persisted reader model.
type Profile struct {
	EstimatedVocabularySize int             `json:"estimatedVocabularySize"`
	Confidence              float64         `json:"confidence"`
	KnownWords              map[string]bool `json:"knownWords"`
	UnknownWords            map[string]bool `json:"unknownWords"`
	MarkingsSinceQuiz       int             `json:"markingsSinceQuiz"`
	LastQuizAt              time.Time       `json:"lastQuizAt,omitempty"`
}

// Estimator owns the profile and its persistence.
type Estimator struct {
	mu      sync.Mutex
	profile Profile
	store   kvstore.Store
	logger  *slog.Logger
}

// NewEstimator loads the profile from the synced scope, or starts from the
// default estimate when none is stored.
func NewEstimator(ctx context.Context, store kvstore.Store) *Estimator {
	e := &Estimator{
		profile: Profile{
			EstimatedVocabularySize: 5000,
			Confidence:              0.1,
			KnownWords:              make(map[string]bool),
			UnknownWords:            make(map[string]bool),
		},
		store:  store,
		logger: slog.Default(),
	}
	e.load(ctx)
	return e
}

// Profile returns a snapshot copy of the current profile.
func (e *Estimator) Profile() Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Estimator) snapshotLocked() Profile {
	p := e.profile
	p.KnownWords = copySet(e.profile.KnownWords)
	p.UnknownWords = copySet(e.profile.UnknownWords)
	return p
}

// VocabularySize returns the current estimate.
func (e *Estimator) VocabularySize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.EstimatedVocabularySize
}

// MarkKnown records that the reader knows a word of the given difficulty.
// Knowing a hard word is evidence of a larger vocabulary; the nudge scales
// with how surprising the evidence is under the current estimate.
func (e *Estimator) MarkKnown(ctx context.Context, word string, difficulty int) {
	e.mu.Lock()
	e.profile.KnownWords[word] = true
	delete(e.profile.UnknownWords, word)

	// A reader at threshold T is expected to know words below T. Knowing
	// a word at or above it nudges the estimate up.
	surprise := difficulty - expectedTier(e.profile.EstimatedVocabularySize)
	if surprise > 0 {
		e.adjustLocked(surprise * 150)
	} else {
		e.adjustLocked(25)
	}
	e.markingLocked()
	e.mu.Unlock()
	e.persist(ctx)
}

// MarkUnknown records that the reader does not know a word. Not knowing an
// easy word is strong evidence of a smaller vocabulary.
func (e *Estimator) MarkUnknown(ctx context.Context, word string, difficulty int) {
	e.mu.Lock()
	e.profile.UnknownWords[word] = true
	delete(e.profile.KnownWords, word)

	surprise := expectedTier(e.profile.EstimatedVocabularySize) - difficulty
	if surprise > 0 {
		e.adjustLocked(-surprise * 150)
	} else {
		e.adjustLocked(-25)
	}
	e.markingLocked()
	e.mu.Unlock()
	e.persist(ctx)
}

// adjustLocked applies a bounded delta to the estimate.
func (e *Estimator) adjustLocked(delta int) {
	v := e.profile.EstimatedVocabularySize + delta
	if v < MinVocabulary {
		v = MinVocabulary
	}
	if v > MaxVocabulary {
		v = MaxVocabulary
	}
	e.profile.EstimatedVocabularySize = v
}

// markingLocked saturates confidence toward 1. Marking alone never
// decreases confidence.
func (e *Estimator) markingLocked() {
	e.profile.Confidence += (1 - e.profile.Confidence) * confidenceGain
	if e.profile.Confidence > 1 {
		e.profile.Confidence = 1
	}
	e.profile.MarkingsSinceQuiz++
}

// QuizAnswer is one answered question of the calibration battery.
type QuizAnswer struct {
	Word       string
	Difficulty int
	Correct    bool
}

// ApplyQuizResult computes difficulty-weighted accuracy over the battery
// and maps it linearly onto [MinVocabulary, MaxVocabulary]. The quiz
// replaces the prior estimate rather than blending with it.
func (e *Estimator) ApplyQuizResult(ctx context.Context, answers []QuizAnswer, now time.Time) int {
	if len(answers) == 0 {
		return e.VocabularySize()
	}

	var weightSum, correctSum float64
	for _, a := range answers {
		w := float64(a.Difficulty)
		if w < 1 {
			w = 1
		}
		weightSum += w
		if a.Correct {
			correctSum += w
		}
	}
	accuracy := correctSum / weightSum
	estimate := MinVocabulary + int(accuracy*float64(MaxVocabulary-MinVocabulary))

	e.mu.Lock()
	e.profile.EstimatedVocabularySize = estimate
	e.profile.Confidence = quizConfidence
	e.profile.MarkingsSinceQuiz = 0
	e.profile.LastQuizAt = now
	e.mu.Unlock()
	e.persist(ctx)
	return estimate
}

// DecayConfidence is the time-based reassessment trigger: the pipeline
// never lowers confidence itself.
func (e *Estimator) DecayConfidence(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile.Confidence -= amount
	if e.profile.Confidence < 0 {
		e.profile.Confidence = 0
	}
}

// NeedsReassessment recommends a new calibration quiz when confidence has
// dropped, or when many markings accumulated and enough time has passed
// since the last quiz.
func (e *Estimator) NeedsReassessment(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.profile.Confidence < reassessConfidence {
		return true
	}
	if e.profile.MarkingsSinceQuiz >= reassessMarkings &&
		(e.profile.LastQuizAt.IsZero() || now.Sub(e.profile.LastQuizAt) >= reassessMinInterval) {
		return true
	}
	return false
}

func (e *Estimator) load(ctx context.Context) {
	if e.store == nil {
		return
	}
	data, ok, err := e.store.Get(ctx, profileKey)
	if err != nil || !ok {
		return
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if p.KnownWords == nil {
		p.KnownWords = make(map[string]bool)
	}
	if p.UnknownWords == nil {
		p.UnknownWords = make(map[string]bool)
	}
	e.profile = p
}

// persist writes the profile through and logs a failure instead of losing
// it silently. The in-memory profile stays authoritative either way.
func (e *Estimator) persist(ctx context.Context) {
	if err := e.save(ctx); err != nil {
		e.logger.Warn("profile not persisted", "error", err)
	}
}

func (e *Estimator) save(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.mu.Lock()
	data, err := json.Marshal(e.profile)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := e.store.Set(ctx, profileKey, data); err != nil {
		return fmt.Errorf("failed to persist profile: %w", err)
	}
	return nil
}

// expectedTier is the difficulty a reader of the given vocabulary size is
// expected to handle, reusing the classifier's band boundaries.
func expectedTier(vocabSize int) int {
	switch {
	case vocabSize <= 2500:
		return 4
	case vocabSize <= 5000:
		return 5
	case vocabSize <= 9000:
		return 6
	case vocabSize <= 15000:
		return 7
	default:
		return 8
	}
}

func copySet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
