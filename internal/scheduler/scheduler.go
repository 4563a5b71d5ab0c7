// Package scheduler converts a continuous stream of "these units are
// relevant now" notifications into a bounded number of concurrent provider
// batches. It guarantees at most one in-flight request per unit, prefers
// what the reader is currently looking at, and recovers units whose batch
// failed or whose response never arrived.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/snonux/lexigap/internal/translate"
)

// Unit is one schedulable block of text. ID is stable for the lifetime of
// the owning document region.
type Unit struct {
	ID      string
	Text    string
	Locator string
}

// Batch is an ephemeral grouping of units under the two caps. It exists
// only between extraction and response reconciliation.
type Batch struct {
	Units []Unit
}

// DispatchFunc performs one provider round trip for a batch and returns
// results keyed by unit ID. The scheduler never matches by position.
type DispatchFunc func(ctx context.Context, batch Batch) (map[string]translate.Result, error)

// RenderFunc receives each unit's non-empty result exactly once.
type RenderFunc func(unit Unit, result translate.Result)

// Options configure a Scheduler.
type Options struct {
	// MaxUnits caps units per batch. Default 8.
	MaxUnits int
	// MaxChars caps total characters per batch. Default 4000. A single
	// oversized unit still forms a batch of one.
	MaxChars int
	// Concurrency is the admission-control slot count. Default 3.
	Concurrency int
	// InFlightTimeout purges markers for units that never got a response.
	// Default 60s.
	InFlightTimeout time.Duration
	// SweepInterval is how often stale markers are purged. Default 30s.
	SweepInterval time.Duration

	Dispatch DispatchFunc
	Render   RenderFunc
	// ResolveRegion reports whether a unit's owning region still exists.
	// Nil means always resolvable.
	ResolveRegion func(id string) bool
	// OnProcessed fires once per unit after its result (even an empty
	// one) has been applied, so the tracker can drop it from the
	// relevant set.
	OnProcessed func(id string)

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxUnits <= 0 {
		o.MaxUnits = 8
	}
	if o.MaxChars <= 0 {
		o.MaxChars = 4000
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.InFlightTimeout <= 0 {
		o.InFlightTimeout = 60 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats counts scheduler activity since startup.
type Stats struct {
	UnitsProcessed    int
	BatchesDispatched int
	BatchesFailed     int
}

// Scheduler is the admission-controlled batching pipeline.
type Scheduler struct {
	mu         sync.Mutex
	opts       Options
	pending    []Unit          // stack: newest-notified at the end
	pendingSet map[string]bool
	inFlight   map[string]time.Time
	processed  map[string]bool
	slots      chan struct{}
	stats      Stats

	ctx     context.Context
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	now func() time.Time
}

// New creates a scheduler. Start must be called before it dispatches.
func New(opts Options) *Scheduler {
	opts.defaults()
	s := &Scheduler{
		opts:       opts,
		pendingSet: make(map[string]bool),
		inFlight:   make(map[string]time.Time),
		processed:  make(map[string]bool),
		slots:      make(chan struct{}, opts.Concurrency),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	for i := 0; i < opts.Concurrency; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// Start begins dispatching and launches the stale-marker sweeper. The
// context bounds every dispatch the scheduler issues.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepStale()
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweeper and waits for in-flight dispatches to settle.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Notify enqueues visible units. Newest notifications are served first, so
// what the reader is looking at is translated before scrolled-past
// content. Units already queued, dispatched or processed are ignored.
func (s *Scheduler) Notify(units []Unit) {
	s.mu.Lock()
	for _, u := range units {
		if s.processed[u.ID] || s.pendingSet[u.ID] {
			continue
		}
		if _, busy := s.inFlight[u.ID]; busy {
			continue
		}
		s.pending = append(s.pending, u)
		s.pendingSet[u.ID] = true
		s.inFlight[u.ID] = s.now()
	}
	s.mu.Unlock()

	s.drain()
}

// Reset drops all local bookkeeping: pending queue, in-flight markers and
// processed flags. Late responses for dropped units are ignored on
// arrival. Used on disable and on mode switches.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.pendingSet = make(map[string]bool)
	s.inFlight = make(map[string]time.Time)
	s.processed = make(map[string]bool)
}

// Idle reports whether nothing is queued, marked in flight, or being
// dispatched. Drivers without a later visibility pass use it to stop
// waiting once a failed batch has released its units for good.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.inFlight) == 0 && len(s.slots) == cap(s.slots)
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// drain extracts and dispatches batches while slots and pending units are
// both available.
func (s *Scheduler) drain() {
	for {
		select {
		case <-s.slots:
		default:
			return // all slots busy
		}

		s.mu.Lock()
		batch := s.extractBatchLocked()
		ctx := s.ctx
		s.mu.Unlock()

		if len(batch.Units) == 0 || ctx == nil {
			s.slots <- struct{}{}
			return
		}

		s.wg.Add(1)
		go s.dispatch(ctx, batch)
	}
}

// extractBatchLocked greedily pops newest-first while both caps hold.
func (s *Scheduler) extractBatchLocked() Batch {
	var batch Batch
	chars := 0
	for len(s.pending) > 0 && len(batch.Units) < s.opts.MaxUnits {
		u := s.pending[len(s.pending)-1]
		if len(batch.Units) > 0 && chars+len(u.Text) > s.opts.MaxChars {
			break
		}
		s.pending = s.pending[:len(s.pending)-1]
		delete(s.pendingSet, u.ID)
		s.inFlight[u.ID] = s.now() // refresh: the clock starts at dispatch
		batch.Units = append(batch.Units, u)
		chars += len(u.Text)
	}
	return batch
}

func (s *Scheduler) dispatch(ctx context.Context, batch Batch) {
	defer s.wg.Done()
	defer func() {
		s.slots <- struct{}{}
		s.drain()
	}()

	results, err := s.opts.Dispatch(ctx, batch)
	if err != nil {
		// Release the units so the next visibility pass can retry them.
		s.mu.Lock()
		for _, u := range batch.Units {
			delete(s.inFlight, u.ID)
		}
		s.stats.BatchesFailed++
		s.mu.Unlock()
		s.opts.Logger.Warn("batch dispatch failed",
			"units", len(batch.Units), "error", err)
		return
	}

	s.mu.Lock()
	s.stats.BatchesDispatched++
	var apply []Unit
	for _, u := range batch.Units {
		delete(s.inFlight, u.ID)
		if s.processed[u.ID] {
			continue // late or duplicate result: at-most-once application
		}
		s.processed[u.ID] = true
		s.stats.UnitsProcessed++
		apply = append(apply, u)
	}
	s.mu.Unlock()

	for _, u := range apply {
		result := results[u.ID] // by ID, never by position; absent is empty
		if s.opts.OnProcessed != nil {
			s.opts.OnProcessed(u.ID)
		}
		if result.IsEmpty() {
			continue // processed, just nothing to render
		}
		if s.opts.ResolveRegion != nil && !s.opts.ResolveRegion(u.ID) {
			continue // owning region gone: silently dropped
		}
		if s.opts.Render != nil {
			s.opts.Render(u, result)
		}
	}
}

// sweepStale purges in-flight markers older than the timeout, recovering
// units whose response never arrived. Markers for units still waiting in
// the pending queue are left alone.
func (s *Scheduler) sweepStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.opts.InFlightTimeout)
	for id, at := range s.inFlight {
		if at.Before(cutoff) && !s.pendingSet[id] {
			delete(s.inFlight, id)
			s.opts.Logger.Warn("purged stale in-flight marker", "unit", id)
		}
	}
}
