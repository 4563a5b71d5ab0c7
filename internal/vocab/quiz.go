package vocab

import (
	"math/rand"

	"codeberg.org/snonux/lexigap/internal/wordlist"
)

// QuizSize is the fixed question battery length.
const QuizSize = 12

// Question is one calibration quiz item.
type Question struct {
	Word       string
	Difficulty int
}

// quizTiers are the tiers the battery samples from, easy to hard.
var quizTiers = []int{1, 2, 3, 5, 7}

// BuildQuiz draws a fixed battery of questions across difficulty tiers.
// The mix spans easy to hard so the difficulty-weighted accuracy is
// meaningful for any reader level. A tier with fewer distinct words than
// the battery demands drops out of the rotation instead of being redrawn
// forever; short word lists yield a short battery.
func BuildQuiz(classifier *wordlist.Classifier) []Question {
	var questions []Question
	used := make(map[string]bool)
	tiers := append([]int(nil), quizTiers...)

	for len(questions) < QuizSize && len(tiers) > 0 {
		tier := tiers[len(questions)%len(tiers)]
		word, ok := drawWord(classifier, tier, used)
		if !ok {
			tiers = removeTier(tiers, tier)
			continue
		}
		used[word] = true
		questions = append(questions, Question{Word: word, Difficulty: tier})
	}

	// All sampled tiers exhausted: pad from the default tier so stored
	// lists that only cover a few tiers still produce a usable battery.
	for len(questions) < QuizSize {
		word, ok := drawWord(classifier, wordlist.DefaultTier, used)
		if !ok {
			break
		}
		used[word] = true
		questions = append(questions, Question{Word: word, Difficulty: wordlist.DefaultTier})
	}
	return questions
}

// drawWord picks an unused word from the tier: a few random draws first,
// then one linear scan from a random start. ok is false once the tier has
// no unused words left.
func drawWord(classifier *wordlist.Classifier, tier int, used map[string]bool) (string, bool) {
	words := classifier.WordsAtTier(tier)
	if len(words) == 0 {
		return "", false
	}
	for attempt := 0; attempt < 8; attempt++ {
		w := words[rand.Intn(len(words))]
		if !used[w] {
			return w, true
		}
	}
	start := rand.Intn(len(words))
	for i := 0; i < len(words); i++ {
		w := words[(start+i)%len(words)]
		if !used[w] {
			return w, true
		}
	}
	return "", false
}

func removeTier(tiers []int, tier int) []int {
	out := tiers[:0]
	for _, t := range tiers {
		if t != tier {
			out = append(out, t)
		}
	}
	return out
}
