// Package wordlist scores word difficulty from static frequency word lists
// and decides, without any network call, whether a paragraph is worth
// sending to the translation provider at all.
package wordlist

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"codeberg.org/snonux/lexigap/internal/kvstore"
)

//go:embed data/*.txt
var seedLists embed.FS

// DefaultTier is the conservative "likely hard" score for words absent
// from every list.
const DefaultTier = 8

// seedTiers maps embedded list files to their difficulty tier, ordered
// from most common to rarest.
var seedTiers = []struct {
	file string
	tier int
}{
	{"data/tier1.txt", 1},
	{"data/tier2.txt", 2},
	{"data/tier3.txt", 3},
	{"data/tier5.txt", 5},
	{"data/tier7.txt", 7},
}

// Classifier maps words to difficulty tiers 1..10.
type Classifier struct {
	tiers map[string]int
}

// NewClassifier builds a classifier from the embedded seed lists.
func NewClassifier() *Classifier {
	c := &Classifier{tiers: make(map[string]int)}
	for _, s := range seedTiers {
		f, err := seedLists.Open(s.file)
		if err != nil {
			continue
		}
		c.addList(f, s.tier)
		f.Close()
	}
	return c
}

// LoadStored merges larger word lists persisted in the device-local scope
// under keys "wordlist:tier<N>" (one word per line). Stored lists never
// override a word's seed tier: the most common assignment wins.
func (c *Classifier) LoadStored(ctx context.Context, store kvstore.Store) error {
	keys, err := store.Keys(ctx, "wordlist:tier")
	if err != nil {
		return fmt.Errorf("failed to list stored word lists: %w", err)
	}
	for _, key := range keys {
		var tier int
		if _, err := fmt.Sscanf(key, "wordlist:tier%d", &tier); err != nil || tier < 1 || tier > 10 {
			continue
		}
		data, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		c.addList(strings.NewReader(string(data)), tier)
	}
	return nil
}

func (c *Classifier) addList(r interface{ Read([]byte) (int, error) }, tier int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" {
			continue
		}
		// Lists should be disjoint; when they are not, keep the most
		// common (lowest) tier.
		if prev, ok := c.tiers[word]; !ok || tier < prev {
			c.tiers[word] = tier
		}
	}
}

// Difficulty returns the tier of the list containing the word, or
// DefaultTier when the word appears in none.
func (c *Classifier) Difficulty(word string) int {
	word = strings.ToLower(strings.TrimSpace(word))
	if tier, ok := c.tiers[word]; ok {
		return tier
	}
	return DefaultTier
}

// WordsAtTier returns all known words of the given tier, sorted. Used by
// the calibration quiz to draw questions of known difficulty.
func (c *Classifier) WordsAtTier(tier int) []string {
	var words []string
	for w, t := range c.tiers {
		if t == tier {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	return words
}

// Size returns how many words the classifier knows.
func (c *Classifier) Size() int {
	return len(c.tiers)
}

// vocabularyBands maps an estimated vocabulary size ceiling to the minimum
// difficulty considered flaggable. Lower-vocabulary readers get a lower
// threshold, so more words get flagged.
var vocabularyBands = []struct {
	maxVocab  int
	threshold int
}{
	{2500, 4},
	{5000, 5},
	{9000, 6},
	{15000, 7},
}

// ThresholdFor returns the minimum flaggable difficulty for a reader with
// the given estimated vocabulary size.
func ThresholdFor(vocabSize int) int {
	for _, band := range vocabularyBands {
		if vocabSize <= band.maxVocab {
			return band.threshold
		}
	}
	return 8
}
