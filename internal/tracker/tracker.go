// Package tracker observes document regions and emits debounced batches of
// the units currently worth translating: inside the viewport plus a
// generous pre-fetch margin, long enough to matter, and not yet processed.
// Multiple geometry events inside a short quiet window collapse into one
// emission carrying the full relevant set at that instant, which bounds
// event volume during fast scrolling.
package tracker

import (
	"sort"
	"sync"
	"time"
	"unicode"

	"codeberg.org/snonux/lexigap/internal/document"
	"codeberg.org/snonux/lexigap/internal/scheduler"
)

// DefaultMinTextRunes is the minimum letters a unit needs to ever be
// emitted. Low on purpose: only degenerate fragments (bullets, single
// glyphs) are excluded, while short headings still flow through.
const DefaultMinTextRunes = 2

// Options configure a Tracker.
type Options struct {
	// Margin expands the viewport on every side for pre-fetch. Default 400.
	Margin float64
	// MinTextRunes excludes units with fewer letters.
	// Default DefaultMinTextRunes.
	MinTextRunes int
	// QuietWindow is the debounce time for geometry events. Default 300ms.
	QuietWindow time.Duration
	// Emit receives the coalesced relevant set.
	Emit func(units []scheduler.Unit)
}

func (o *Options) defaults() {
	if o.Margin <= 0 {
		o.Margin = 400
	}
	if o.MinTextRunes <= 0 {
		o.MinTextRunes = DefaultMinTextRunes
	}
	if o.QuietWindow <= 0 {
		o.QuietWindow = 300 * time.Millisecond
	}
}

// Tracker maintains the registry of observed units and the relevant set.
type Tracker struct {
	mu   sync.Mutex
	opts Options
	doc  document.Document

	observed  map[string]scheduler.Unit // text snapshot taken at observe time
	order     []string                  // registration order, for stable emission
	processed map[string]bool
	relevant  map[string]bool
	enabled   bool
	timer     *time.Timer
}

// New creates a tracker over a document. Tracking starts enabled.
func New(doc document.Document, opts Options) *Tracker {
	opts.defaults()
	return &Tracker{
		opts:      opts,
		doc:       doc,
		observed:  make(map[string]scheduler.Unit),
		processed: make(map[string]bool),
		relevant:  make(map[string]bool),
		enabled:   true,
	}
}

// Observe registers a region. Registration is idempotent; the text
// snapshot from the first observation wins.
func (t *Tracker) Observe(region document.Region) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.observed[region.ID]; ok {
		return
	}
	t.observed[region.ID] = scheduler.Unit{ID: region.ID, Text: region.Text, Locator: region.Locator}
	t.order = append(t.order, region.ID)
}

// ObserveAll registers every current region of the document.
func (t *Tracker) ObserveAll() {
	for _, r := range t.doc.Regions() {
		t.Observe(r)
	}
}

// Unobserve removes a region from the registry entirely.
func (t *Tracker) Unobserve(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.observed, id)
	delete(t.relevant, id)
	delete(t.processed, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// MarkProcessed removes a unit from the relevant set without triggering a
// re-emission. Processed units are never emitted again.
func (t *Tracker) MarkProcessed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed[id] = true
	delete(t.relevant, id)
}

// Enable resumes tracking. The caller usually follows with
// CheckCurrentViewport to pick up whatever is visible now.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
}

// Disable clears the relevant set and suppresses emissions, but keeps all
// registrations so Enable can resume without re-observing.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
	t.relevant = make(map[string]bool)
	t.stopTimerLocked()
}

// ResetTracking clears the relevant set and processed flags so the same
// units can be re-evaluated, used after a mode switch.
func (t *Tracker) ResetTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.relevant = make(map[string]bool)
	t.processed = make(map[string]bool)
	t.stopTimerLocked()
}

// OnGeometryChange notes that viewport or layout geometry moved. Events
// within the quiet window coalesce; the relevant set is computed at flush
// time, not at event time.
func (t *Tracker) OnGeometryChange() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.opts.QuietWindow, t.flush)
}

// CheckCurrentViewport forces a synchronous recompute and immediate
// emission, used right after registration or a settings change.
func (t *Tracker) CheckCurrentViewport() {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	t.stopTimerLocked()
	t.mu.Unlock()
	t.flush()
}

// Relevant returns the IDs currently in the relevant set, sorted.
func (t *Tracker) Relevant() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.relevant))
	for id := range t.relevant {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// flush recomputes the relevant set and emits it.
func (t *Tracker) flush() {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	t.timer = nil

	view := t.doc.Viewport().Expand(t.opts.Margin)
	t.relevant = make(map[string]bool)
	var units []scheduler.Unit
	for _, id := range t.order {
		unit := t.observed[id]
		if t.processed[id] {
			continue
		}
		if letterCount(unit.Text) < t.opts.MinTextRunes {
			continue
		}
		region, ok := t.doc.Region(id)
		if !ok {
			continue // removed from the document
		}
		if !region.Rect.Intersects(view) {
			continue
		}
		t.relevant[id] = true
		units = append(units, unit)
	}
	emit := t.opts.Emit
	t.mu.Unlock()

	if emit != nil && len(units) > 0 {
		emit(units)
	}
}

// Trackable reports whether text has enough letters to ever be emitted
// under the given minimum (<=0 uses DefaultMinTextRunes). Callers waiting
// on processing completion use it to know which units can arrive at all.
func Trackable(text string, minRunes int) bool {
	if minRunes <= 0 {
		minRunes = DefaultMinTextRunes
	}
	return letterCount(text) >= minRunes
}

func letterCount(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
