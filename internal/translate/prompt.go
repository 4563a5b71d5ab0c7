package translate

import (
	"fmt"
	"strings"

	"codeberg.org/snonux/lexigap/internal/fingerprint"
)

// Item is one paragraph to translate, demarcated in the prompt by its
// positional marker [PARA_n]. Index is what the reply is keyed by.
type Item struct {
	Index int
	Text  string
}

// PromptOptions parameterize prompt construction per batch.
type PromptOptions struct {
	Mode           fingerprint.Mode
	TargetLanguage string // language being read
	NativeLanguage string // language translations are rendered in
	VocabularySize int    // reader's estimated vocabulary, for calibration
}

// BuildPrompt assembles a single prompt covering every item in the batch.
// Each paragraph is wrapped in [PARA_n]...[/PARA_n] markers so the single
// free-text reply can be split back by integer index.
func BuildPrompt(items []Item, opts PromptOptions) string {
	var b strings.Builder
	b.Grow(1024)

	b.WriteString("You are a reading assistant for a language learner.\n")
	fmt.Fprintf(&b, "The reader is reading %s and their native language is %s.\n",
		langOrDefault(opts.TargetLanguage), langOrDefault(opts.NativeLanguage))
	if opts.VocabularySize > 0 {
		fmt.Fprintf(&b, "The reader knows roughly %d %s words; only words above that level are difficult for them.\n",
			opts.VocabularySize, langOrDefault(opts.TargetLanguage))
	}
	b.WriteString("\n")

	switch opts.Mode {
	case fingerprint.ModeSentence:
		b.WriteString("For each paragraph, translate every sentence likely to be hard for this reader.\n")
	case fingerprint.ModeFull:
		b.WriteString("Translate each paragraph in full, and additionally list difficult words.\n")
	default:
		b.WriteString("For each paragraph, identify only the words and fixed phrases this reader likely does not know, and translate just those.\n")
	}

	b.WriteString("\nParagraphs:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "[PARA_%d]\n%s\n[/PARA_%d]\n", it.Index, it.Text, it.Index)
	}

	b.WriteString("\nOUTPUT RULES:\n")
	b.WriteString("1) Return ONLY strict JSON, no markdown fences, no commentary.\n")
	b.WriteString("2) Schema: an array of objects, one per paragraph:\n")
	b.WriteString(`   [{"index": <n from PARA_n>, "words": [{"original": "", "translation": "", "difficulty": 1-10, "isPhrase": false}], "sentences": [{"original": "", "translation": ""}], "fullText": "", "grammarPoints": []}]` + "\n")
	b.WriteString("3) Include every paragraph index exactly once. A paragraph with nothing difficult gets an entry with empty words.\n")
	if opts.Mode == fingerprint.ModeWord {
		b.WriteString("4) Omit sentences, fullText and grammarPoints unless genuinely needed.\n")
	}

	return b.String()
}

func langOrDefault(lang string) string {
	if lang == "" {
		return "English"
	}
	return lang
}
