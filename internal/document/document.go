// Package document models the read-only view of the text the reader is
// looking at. The pipeline never mutates a region; it only reads text and
// geometry and hands results back through a render callback.
package document

// Rect is a region's bounding box in document coordinates. Y grows downward.
type Rect struct {
	X, Y, W, H float64
}

// Intersects reports whether r and o overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Expand grows the rect by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{X: r.X - margin, Y: r.Y - margin, W: r.W + 2*margin, H: r.H + 2*margin}
}

// Region is one paragraph-like block of document content.
type Region struct {
	ID      string
	Text    string
	Locator string // path back into the owning document, opaque to the pipeline
	Rect    Rect
}

// Document is the collaborator boundary the tracker and scheduler consume.
// Implementations must treat all returned values as snapshots; the pipeline
// holds region IDs, never live references.
type Document interface {
	// Region resolves an ID to its current region. ok is false when the
	// region has been removed from the document.
	Region(id string) (Region, bool)

	// Regions returns all current regions in document order.
	Regions() []Region

	// Viewport returns the currently visible rect.
	Viewport() Rect
}
