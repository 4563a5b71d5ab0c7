// Package coordinator is the per-batch entry point of the pipeline. For
// each batch it applies the local difficulty filter, resolves cache hits,
// issues at most one provider call for the remainder, validates and
// repairs the structured reply, and writes fresh results back to the
// cache.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/snonux/lexigap/internal/cache"
	"codeberg.org/snonux/lexigap/internal/fingerprint"
	"codeberg.org/snonux/lexigap/internal/translate"
	"codeberg.org/snonux/lexigap/internal/vocab"
	"codeberg.org/snonux/lexigap/internal/wordlist"
)

// RequestUnit is one unit of a batch request.
type RequestUnit struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Locator string `json:"locator,omitempty"`
}

// BatchRequest is what the scheduler sends per batch.
type BatchRequest struct {
	Units          []RequestUnit    `json:"units"`
	Mode           fingerprint.Mode `json:"mode"`
	SourceLocation string           `json:"sourceLocation,omitempty"`
}

// UnitResult pairs a unit ID with its result. Cached marks results served
// from the fingerprint cache rather than a provider call.
type UnitResult struct {
	ID     string           `json:"id"`
	Result translate.Result `json:"result"`
	Cached bool             `json:"cached"`
}

// BatchResponse reconciles one batch. Results carries exactly one entry
// per requested unit, in request order.
type BatchResponse struct {
	Results           []UnitResult `json:"results"`
	ProviderCallCount int          `json:"providerCallCount"`
	CacheHitCount     int          `json:"cacheHitCount"`
}

// Options configure a Coordinator.
type Options struct {
	Provider  translate.Provider
	Cache     *cache.Cache
	Filter    *wordlist.Filter
	Estimator *vocab.Estimator

	TargetLanguage string
	NativeLanguage string

	Logger *slog.Logger
}

// Coordinator resolves batches against the filter, the cache and the
// provider.
type Coordinator struct {
	opts Options
}

// New creates a coordinator. Provider and Cache are required; Filter and
// Estimator are optional (absent filter sends everything).
func New(opts Options) (*Coordinator, error) {
	if opts.Provider == nil {
		return nil, &translate.ConfigError{Reason: "no translation provider configured"}
	}
	if opts.Cache == nil {
		return nil, &translate.ConfigError{Reason: "no cache configured"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{opts: opts}, nil
}

// TranslateBatch resolves one batch. The returned error is reserved for
// whole-batch failures (configuration, provider exhaustion); a malformed
// reply degrades affected units to empty results instead of failing.
func (c *Coordinator) TranslateBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	resp := BatchResponse{}
	if len(req.Units) == 0 {
		return resp, nil
	}
	mode := req.Mode
	if mode == "" {
		mode = fingerprint.ModeWord
	}

	vocabSize := 0
	if c.opts.Estimator != nil {
		vocabSize = c.opts.Estimator.VocabularySize()
	}

	// Resolve each unit to a fingerprint, letting the local filter veto
	// provider work. Units sharing a fingerprint share one resolution.
	resolved := make(map[string]translate.Result)  // fingerprint -> result
	cachedFP := make(map[string]bool)              // fingerprint came from cache
	fpByUnit := make([]string, len(req.Units))     // "" means filtered out
	var lookups []string
	seen := make(map[string]bool)
	for i, u := range req.Units {
		if c.opts.Filter != nil && !c.opts.Filter.ShouldTranslate(u.Text, vocabSize) {
			continue // empty result, no fingerprint work at all
		}
		fp := fingerprint.New(u.Text, mode)
		fpByUnit[i] = fp
		if !seen[fp] {
			seen[fp] = true
			lookups = append(lookups, fp)
		}
	}

	hits, misses := c.lookUp(lookups)
	for fp, r := range hits {
		resolved[fp] = r
		cachedFP[fp] = true
	}

	// One provider call covers every remaining fingerprint.
	if len(misses) > 0 {
		fresh, err := c.callProvider(ctx, req, mode, misses, fpByUnit, vocabSize)
		if err != nil {
			return resp, err
		}
		resp.ProviderCallCount = 1
		for fp, r := range fresh {
			resolved[fp] = r
		}
	}

	// Reconcile by unit, in request order.
	for i, u := range req.Units {
		fp := fpByUnit[i]
		if fp == "" {
			resp.Results = append(resp.Results, UnitResult{ID: u.ID})
			continue
		}
		ur := UnitResult{ID: u.ID, Result: resolved[fp]}
		if cachedFP[fp] {
			ur.Cached = true
			resp.CacheHitCount++
		}
		resp.Results = append(resp.Results, ur)
	}
	return resp, nil
}

func (c *Coordinator) lookUp(fps []string) (map[string]translate.Result, []string) {
	if len(fps) == 0 {
		return nil, nil
	}
	return c.opts.Cache.GetBatch(fps)
}

// callProvider builds one prompt for the missed fingerprints, issues the
// call and repairs the reply into per-fingerprint results.
func (c *Coordinator) callProvider(ctx context.Context, req BatchRequest, mode fingerprint.Mode,
	misses []string, fpByUnit []string, vocabSize int) (map[string]translate.Result, error) {

	// One representative unit text per missed fingerprint, indexed by
	// position in the prompt.
	missSet := make(map[string]int, len(misses))
	items := make([]translate.Item, 0, len(misses))
	fpByIndex := make([]string, 0, len(misses))
	for _, fp := range misses {
		missSet[fp] = -1
	}
	for i, u := range req.Units {
		fp := fpByUnit[i]
		if fp == "" {
			continue
		}
		if pos, isMiss := missSet[fp]; isMiss && pos == -1 {
			missSet[fp] = len(items)
			items = append(items, translate.Item{Index: len(items), Text: u.Text})
			fpByIndex = append(fpByIndex, fp)
		}
	}

	prompt := translate.BuildPrompt(items, translate.PromptOptions{
		Mode:           mode,
		TargetLanguage: c.opts.TargetLanguage,
		NativeLanguage: c.opts.NativeLanguage,
		VocabularySize: vocabSize,
	})

	reply, err := c.opts.Provider.Call(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	expected := make([]int, len(items))
	for i := range items {
		expected[i] = i
	}
	results, disc, err := translate.ParseReply(reply, expected)
	if err != nil {
		// Unparsable reply: not retried, every miss degrades to an empty
		// result. Nothing is cached so a later batch gets a fresh try.
		c.opts.Logger.Warn("unparsable provider reply, degrading to empty results",
			"units", len(items), "error", err)
	} else if !disc.IsClean() {
		c.opts.Logger.Warn("provider reply discrepancy",
			"missing", disc.Missing, "extra", disc.Extra, "duplicates", disc.Duplicates)
	}

	fresh := make(map[string]translate.Result, len(items))
	for idx, r := range results {
		fresh[fpByIndex[idx]] = r
	}
	if err == nil {
		c.opts.Cache.SetBatch(fresh, mode, req.SourceLocation)
	}
	return fresh, nil
}
