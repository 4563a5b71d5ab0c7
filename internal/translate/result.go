// Package translate turns batches of paragraph text into structured
// translation results using an LLM provider. It owns the provider
// abstraction, the prompt format, and the parsing of the provider's single
// free-text reply back into per-paragraph entries.
package translate

// Span locates a word or sentence inside the original paragraph text, as
// rune offsets [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Word is one translated vocabulary item.
type Word struct {
	Original    string `json:"original"`
	Translation string `json:"translation"`
	Span        Span   `json:"span"`
	Difficulty  int    `json:"difficulty"`
	IsPhrase    bool   `json:"isPhrase,omitempty"`
}

// Sentence is one translated sentence, used by sentence mode.
type Sentence struct {
	Original    string `json:"original"`
	Translation string `json:"translation"`
	Span        Span   `json:"span"`
}

// Result is the structured translation of one paragraph. An empty result is
// valid: it means the paragraph contained nothing the reader needs help with.
type Result struct {
	Words         []Word     `json:"words,omitempty"`
	Sentences     []Sentence `json:"sentences,omitempty"`
	FullText      string     `json:"fullText,omitempty"`
	GrammarPoints []string   `json:"grammarPoints,omitempty"`
}

// IsEmpty reports whether the result carries no translation at all.
func (r Result) IsEmpty() bool {
	return len(r.Words) == 0 && len(r.Sentences) == 0 && r.FullText == "" && len(r.GrammarPoints) == 0
}
