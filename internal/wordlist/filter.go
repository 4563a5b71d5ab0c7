package wordlist

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// minTokenRunes drops very short tokens before difficulty scoring.
const minTokenRunes = 3

// Tokenize splits text into candidate words: punctuation stripped,
// lowercased, purely numeric and very short tokens dropped.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		if len([]rune(tok)) < minTokenRunes {
			return
		}
		if isNumeric(tok) {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			current.WriteRune(unicode.ToLower(r))
		case r == '\'' || r == '’':
			// Keep apostrophes inside contractions, drop them at edges.
			if current.Len() > 0 {
				current.WriteRune('\'')
			}
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// FilterPolicy tunes the translate/skip decision. The default rule flags a
// paragraph as soon as one token meets the threshold; MinHardRatio > 0
// switches to a ratio rule requiring that share of tokens to be hard.
type FilterPolicy struct {
	MinHardRatio float64
	// NativeLang is the reader's native language as an ISO 639-3 code
	// ("eng"). Paragraphs detected as already written in it are skipped.
	// Empty disables the language gate.
	NativeLang string
	// MinLangConfidence gates the language detection. Default 0.8.
	MinLangConfidence float64
}

// Filter is the no-network decision of whether a paragraph is worth a
// provider call for a given reader.
type Filter struct {
	classifier *Classifier
	policy     FilterPolicy
}

// NewFilter creates a filter over the given classifier.
func NewFilter(classifier *Classifier, policy FilterPolicy) *Filter {
	if policy.MinLangConfidence <= 0 {
		policy.MinLangConfidence = 0.8
	}
	return &Filter{classifier: classifier, policy: policy}
}

// ShouldTranslate reports whether the text likely contains words unknown
// to a reader with the given estimated vocabulary size. The rule favors
// recall: when in doubt, translate.
func (f *Filter) ShouldTranslate(text string, vocabSize int) bool {
	if f.policy.NativeLang != "" && len(text) >= 20 {
		info := whatlanggo.Detect(text)
		if whatlanggo.LangToString(info.Lang) == f.policy.NativeLang &&
			info.Confidence >= f.policy.MinLangConfidence {
			return false
		}
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return false
	}

	threshold := ThresholdFor(vocabSize)
	hard := 0
	for _, tok := range tokens {
		if f.classifier.Difficulty(tok) >= threshold {
			if f.policy.MinHardRatio <= 0 {
				return true
			}
			hard++
		}
	}
	if f.policy.MinHardRatio <= 0 {
		return false
	}
	return float64(hard)/float64(len(tokens)) >= f.policy.MinHardRatio
}
