package document

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Default geometry for synthesized paragraph layout. One paragraph is one
// region; regions are stacked vertically with a fixed gap.
const (
	paraWidth  = 600.0
	paraGap    = 16.0
	lineHeight = 20.0
	lineRunes  = 80
)

// TextDocument is a plain-text document split into paragraph regions with
// synthesized stacked geometry and a movable viewport. It lets the CLI run
// a whole file through the same pipeline a live document would feed.
type TextDocument struct {
	mu       sync.Mutex
	regions  []Region
	removed  map[string]bool
	viewport Rect
}

// LoadText reads a file, splits it into paragraphs on blank lines and
// returns a document with the viewport at the top.
func LoadText(filename string, viewportHeight float64) (*TextDocument, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return NewTextDocument(string(content), viewportHeight), nil
}

// NewTextDocument builds a document from raw text. Paragraphs are separated
// by one or more blank lines; intra-paragraph newlines are joined.
func NewTextDocument(text string, viewportHeight float64) *TextDocument {
	if viewportHeight <= 0 {
		viewportHeight = 800
	}
	d := &TextDocument{
		removed:  make(map[string]bool),
		viewport: Rect{X: 0, Y: 0, W: paraWidth, H: viewportHeight},
	}

	y := 0.0
	for i, para := range splitParagraphs(text) {
		lines := (len([]rune(para)) / lineRunes) + 1
		h := float64(lines) * lineHeight
		d.regions = append(d.regions, Region{
			ID:      fmt.Sprintf("para-%d", i),
			Text:    para,
			Locator: fmt.Sprintf("/body/p[%d]", i),
			Rect:    Rect{X: 0, Y: y, W: paraWidth, H: h},
		})
		y += h + paraGap
	}
	return d
}

func (d *TextDocument) Region(id string) (Region, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed[id] {
		return Region{}, false
	}
	for _, r := range d.regions {
		if r.ID == id {
			return r, true
		}
	}
	return Region{}, false
}

func (d *TextDocument) Regions() []Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Region, 0, len(d.regions))
	for _, r := range d.regions {
		if !d.removed[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (d *TextDocument) Viewport() Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

// Scroll moves the viewport down (or up for negative dy), clamped to the
// document top.
func (d *TextDocument) Scroll(dy float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport.Y += dy
	if d.viewport.Y < 0 {
		d.viewport.Y = 0
	}
}

// Remove deletes a region, simulating content disappearing from the page.
// Results arriving for a removed region are dropped at the render boundary.
func (d *TextDocument) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed[id] = true
}

// Height returns the total laid-out document height.
func (d *TextDocument) Height() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.regions) == 0 {
		return 0
	}
	last := d.regions[len(d.regions)-1]
	return last.Rect.Y + last.Rect.H
}

func splitParagraphs(text string) []string {
	var paras []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paras = append(paras, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
		} else {
			current = append(current, line)
		}
	}
	flush()
	return paras
}
