package translate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// replyEntry mirrors one element of the JSON array the prompt asks for.
type replyEntry struct {
	Index         int        `json:"index"`
	Words         []Word     `json:"words"`
	Sentences     []Sentence `json:"sentences"`
	FullText      string     `json:"fullText"`
	GrammarPoints []string   `json:"grammarPoints"`
}

// Discrepancy records how the reply diverged from the request. It is logged
// for diagnostics, never thrown: affected paragraphs degrade to empty
// results.
type Discrepancy struct {
	Missing    []int // requested indexes the reply omitted
	Extra      []int // reply indexes that were never requested
	Duplicates []int // reply indexes that appeared more than once
}

// IsClean reports whether the reply mapped exactly onto the request.
func (d Discrepancy) IsClean() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 && len(d.Duplicates) == 0
}

// ParseReply splits a single free-text provider reply into per-paragraph
// results keyed by integer index. The provider may omit, duplicate or
// misorder entries and may wrap the JSON in code fences; all of that is
// repaired here. Exactly one Result is returned per expected index; indexes
// the reply omitted map to empty results. The returned error is non-nil
// only when no JSON could be recovered at all.
func ParseReply(reply string, expected []int) (map[int]Result, Discrepancy, error) {
	results := make(map[int]Result, len(expected))
	for _, idx := range expected {
		results[idx] = Result{}
	}

	entries, err := decodeEntries(reply)
	if err != nil {
		disc := Discrepancy{Missing: append([]int(nil), expected...)}
		sort.Ints(disc.Missing)
		return results, disc, &MalformedResponseError{Missing: disc.Missing, Err: err}
	}

	wanted := make(map[int]bool, len(expected))
	for _, idx := range expected {
		wanted[idx] = true
	}

	var disc Discrepancy
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if !wanted[e.Index] {
			disc.Extra = append(disc.Extra, e.Index)
			continue
		}
		if seen[e.Index] {
			// First entry wins; late duplicates are dropped.
			disc.Duplicates = append(disc.Duplicates, e.Index)
			continue
		}
		seen[e.Index] = true
		results[e.Index] = Result{
			Words:         e.Words,
			Sentences:     e.Sentences,
			FullText:      e.FullText,
			GrammarPoints: e.GrammarPoints,
		}
	}

	for _, idx := range expected {
		if !seen[idx] {
			disc.Missing = append(disc.Missing, idx)
		}
	}
	sort.Ints(disc.Missing)
	sort.Ints(disc.Extra)
	sort.Ints(disc.Duplicates)
	return results, disc, nil
}

// decodeEntries extracts the JSON array from the raw reply, tolerating
// markdown code fences and surrounding prose.
func decodeEntries(reply string) ([]replyEntry, error) {
	text := strings.TrimSpace(reply)
	text = stripCodeFences(text)

	var entries []replyEntry
	if err := json.Unmarshal([]byte(text), &entries); err == nil {
		return entries, nil
	}

	// A single object instead of an array is a common provider slip.
	var single replyEntry
	if err := json.Unmarshal([]byte(text), &single); err == nil {
		return []replyEntry{single}, nil
	}

	// Last resort: the outermost bracketed span.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &entries); err == nil {
			return entries, nil
		}
	}

	return nil, fmt.Errorf("no JSON array found in reply")
}

func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
