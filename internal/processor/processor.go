package processor

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/snonux/lexigap/internal/cache"
	"codeberg.org/snonux/lexigap/internal/cli"
	"codeberg.org/snonux/lexigap/internal/coordinator"
	"codeberg.org/snonux/lexigap/internal/document"
	"codeberg.org/snonux/lexigap/internal/fingerprint"
	"codeberg.org/snonux/lexigap/internal/kvstore"
	"codeberg.org/snonux/lexigap/internal/scheduler"
	"codeberg.org/snonux/lexigap/internal/server"
	"codeberg.org/snonux/lexigap/internal/tracker"
	"codeberg.org/snonux/lexigap/internal/translate"
	"codeberg.org/snonux/lexigap/internal/vocab"
	"codeberg.org/snonux/lexigap/internal/wordlist"
)

// documentViewportHeight is the synthesized viewport for file reading.
const documentViewportHeight = 600

// Processor owns the assembled pipeline for one invocation.
type Processor struct {
	flags  *cli.Flags
	logger *slog.Logger

	scopes     kvstore.Scopes
	db         *sql.DB
	cache      *cache.Cache
	classifier *wordlist.Classifier
	estimator  *vocab.Estimator
	filter     *wordlist.Filter
	coord      *coordinator.Coordinator
}

// NewProcessor opens the state database and assembles the pipeline. A
// missing provider key is not fatal here; modes that need the provider
// report it when they run.
func NewProcessor(ctx context.Context, flags *cli.Flags) (*Processor, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := os.MkdirAll(flags.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	scopes, db, err := kvstore.OpenSQLite(filepath.Join(flags.StateDir, "lexigap.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	p := &Processor{
		flags:  flags,
		logger: logger,
		scopes: scopes,
		db:     db,
	}
	p.cache = cache.New(cache.Options{
		Capacity: flags.CacheCapacity,
		TTL:      flags.CacheTTL,
		Store:    scopes.Local,
	})

	p.classifier = wordlist.NewClassifier()
	if err := p.classifier.LoadStored(ctx, scopes.Local); err != nil {
		logger.Warn("failed to load stored word lists", "error", err)
	}
	p.estimator = vocab.NewEstimator(ctx, scopes.Synced)
	p.filter = wordlist.NewFilter(p.classifier, wordlist.FilterPolicy{
		MinHardRatio: flags.MinHardRatio,
		NativeLang:   languageCode(flags.NativeLanguage),
	})

	if provider, err := p.buildProvider(); err != nil {
		logger.Warn("translation provider unavailable", "error", err)
	} else {
		p.coord, err = coordinator.New(coordinator.Options{
			Provider:       provider,
			Cache:          p.cache,
			Filter:         p.filter,
			Estimator:      p.estimator,
			TargetLanguage: flags.TargetLanguage,
			NativeLanguage: flags.NativeLanguage,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Close flushes the cache and closes the state database.
func (p *Processor) Close() error {
	p.cache.Close()
	return p.db.Close()
}

// buildProvider assembles the provider chain: base provider, circuit
// breaker, then retries.
func (p *Processor) buildProvider() (translate.Provider, error) {
	cfg := translate.DefaultProviderConfig()
	cfg.Provider = p.flags.Provider
	cfg.OpenAIKey = cli.GetOpenAIKey()
	cfg.GeminiKey = cli.GetGeminiKey()
	if p.flags.Model != "" {
		switch cfg.Provider {
		case "gemini":
			cfg.GeminiModel = p.flags.Model
		default:
			cfg.OpenAIModel = p.flags.Model
		}
	}

	base, err := translate.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return translate.NewRetryProvider(translate.NewBreakerProvider(base), translate.RetryPolicy{}), nil
}

// RunServe runs the HTTP message endpoint until ctx is cancelled.
func (p *Processor) RunServe(ctx context.Context) error {
	srv := server.New(server.Options{
		Coordinator: p.coord,
		Cache:       p.cache,
		Estimator:   p.estimator,
		Classifier:  p.classifier,
		Logger:      p.logger,
	})
	return srv.ListenAndServe(ctx, p.flags.Listen)
}

// RunDocument reads a text file through the pipeline: every paragraph
// scrolls through a synthesized viewport, hard ones are translated and
// printed as they resolve.
func (p *Processor) RunDocument(ctx context.Context, filename string, out io.Writer) error {
	if p.coord == nil {
		return &translate.ConfigError{Reason: "no translation provider configured"}
	}
	doc, err := document.LoadText(filename, documentViewportHeight)
	if err != nil {
		return err
	}
	// Only paragraphs the tracker can emit count toward completion;
	// fragments below the minimum letter count are never processed and
	// must not be waited for.
	total := 0
	for _, r := range doc.Regions() {
		if tracker.Trackable(r.Text, 0) {
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(out, "Nothing to translate.")
		return nil
	}

	mode := fingerprint.Mode(p.flags.Mode)
	processedCh := make(chan string, total)

	var trk *tracker.Tracker
	sched := scheduler.New(scheduler.Options{
		MaxUnits:    p.flags.MaxUnits,
		MaxChars:    p.flags.MaxChars,
		Concurrency: p.flags.Concurrency,
		Dispatch:    p.dispatch(mode, filename),
		Render: func(unit scheduler.Unit, result translate.Result) {
			printResult(out, unit, result)
		},
		ResolveRegion: func(id string) bool {
			_, ok := doc.Region(id)
			return ok
		},
		OnProcessed: func(id string) {
			trk.MarkProcessed(id)
			processedCh <- id
		},
		Logger: p.logger,
	})
	trk = tracker.New(doc, tracker.Options{Emit: sched.Notify})

	sched.Start(ctx)
	defer sched.Stop()

	trk.ObserveAll()

	// Scroll the whole document through the viewport. The pre-fetch
	// margin guarantees every paragraph enters the relevant set at some
	// scroll position.
	for offset := 0.0; ; offset += documentViewportHeight {
		trk.CheckCurrentViewport()
		if offset >= doc.Height() {
			break
		}
		doc.Scroll(documentViewportHeight)
	}

	// Wait for every trackable paragraph, but give up once the scheduler
	// settles with nothing left to do: a permanently failed batch leaves
	// its paragraphs untranslated instead of blocking the run forever.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	seen := 0
	for seen < total {
		select {
		case <-processedCh:
			seen++
			continue
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !sched.Idle() {
			continue
		}
		// Collect results that raced the idle check before giving up.
		for len(processedCh) > 0 {
			<-processedCh
			seen++
		}
		if seen < total {
			p.logger.Warn("giving up on untranslated paragraphs", "count", total-seen)
		}
		break
	}

	stats := sched.Stats()
	p.logger.Info("document done",
		"paragraphs", total,
		"batches", stats.BatchesDispatched,
		"failed", stats.BatchesFailed)
	return nil
}

// dispatch adapts the coordinator to the scheduler's batch callback.
func (p *Processor) dispatch(mode fingerprint.Mode, sourceLocation string) scheduler.DispatchFunc {
	return func(ctx context.Context, batch scheduler.Batch) (map[string]translate.Result, error) {
		req := coordinator.BatchRequest{Mode: mode, SourceLocation: sourceLocation}
		for _, u := range batch.Units {
			req.Units = append(req.Units, coordinator.RequestUnit{
				ID: u.ID, Text: u.Text, Locator: u.Locator,
			})
		}
		resp, err := p.coord.TranslateBatch(ctx, req)
		if err != nil {
			return nil, err
		}
		results := make(map[string]translate.Result, len(resp.Results))
		for _, r := range resp.Results {
			results[r.ID] = r.Result
		}
		return results, nil
	}
}

func printResult(out io.Writer, unit scheduler.Unit, result translate.Result) {
	fmt.Fprintf(out, "\n%s\n", excerpt(unit.Text, 72))
	for _, w := range result.Words {
		fmt.Fprintf(out, "  %s: %s\n", w.Original, w.Translation)
	}
	for _, s := range result.Sentences {
		fmt.Fprintf(out, "  > %s: %s\n", s.Original, s.Translation)
	}
	if result.FullText != "" {
		fmt.Fprintf(out, "  = %s\n", result.FullText)
	}
}

func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max-1]) + "…"
}

// RunQuiz runs the vocabulary calibration quiz interactively.
func (p *Processor) RunQuiz(ctx context.Context, in io.Reader, out io.Writer) error {
	questions := vocab.BuildQuiz(p.classifier)
	if len(questions) == 0 {
		return fmt.Errorf("no quiz questions available")
	}

	fmt.Fprintf(out, "Vocabulary check: %d words. Answer y if you know the word.\n\n", len(questions))
	scanner := bufio.NewScanner(in)
	var answers []vocab.QuizAnswer
	for i, q := range questions {
		fmt.Fprintf(out, "%2d/%d  %s [y/n] ", i+1, len(questions), q.Word)
		if !scanner.Scan() {
			break
		}
		known := strings.HasPrefix(strings.ToLower(strings.TrimSpace(scanner.Text())), "y")
		answers = append(answers, vocab.QuizAnswer{
			Word:       q.Word,
			Difficulty: q.Difficulty,
			Correct:    known,
		})
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(answers) == 0 {
		return fmt.Errorf("no answers given")
	}

	size := p.estimator.ApplyQuizResult(ctx, answers, time.Now())
	fmt.Fprintf(out, "\nEstimated vocabulary: about %d word families.\n", size)
	return nil
}

// ShowStats prints cache and profile statistics.
func (p *Processor) ShowStats(out io.Writer) {
	stats := p.cache.Stats()
	fmt.Fprintf(out, "Cache: %d/%d entries, %d hits, %d misses, %d evicted, %d expired\n",
		stats.Size, stats.Capacity, stats.Hits, stats.Misses, stats.Evictions, stats.Expired)

	profile := p.estimator.Profile()
	fmt.Fprintf(out, "Vocabulary: about %d word families (confidence %.0f%%)\n",
		profile.EstimatedVocabularySize, profile.Confidence*100)
	fmt.Fprintf(out, "Marked: %d known, %d unknown\n",
		len(profile.KnownWords), len(profile.UnknownWords))
	if p.estimator.NeedsReassessment(time.Now()) {
		fmt.Fprintln(out, "A calibration quiz is recommended (--quiz).")
	}
}

// ClearCache empties the translation cache.
func (p *Processor) ClearCache(out io.Writer) {
	p.cache.ClearAll()
	fmt.Fprintln(out, "Translation cache cleared.")
}

// languageCode maps a language name to the ISO 639-3 code the language
// detector reports. Unknown names disable the native-language gate.
func languageCode(name string) string {
	switch strings.ToLower(name) {
	case "english":
		return "eng"
	case "german":
		return "deu"
	case "french":
		return "fra"
	case "spanish":
		return "spa"
	case "italian":
		return "ita"
	case "portuguese":
		return "por"
	case "dutch":
		return "nld"
	case "russian":
		return "rus"
	case "bulgarian":
		return "bul"
	default:
		return ""
	}
}
