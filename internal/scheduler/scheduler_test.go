package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/snonux/lexigap/internal/translate"
)

func wordResult(id string) translate.Result {
	return translate.Result{Words: []translate.Word{{Original: id, Translation: id + "-tr"}}}
}

func makeUnits(n int) []Unit {
	units := make([]Unit, n)
	for i := range units {
		units[i] = Unit{ID: fmt.Sprintf("u%02d", i), Text: fmt.Sprintf("text for unit %02d", i)}
	}
	return units
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not reached in time")
}

func TestScheduler_BatchPartition(t *testing.T) {
	var mu sync.Mutex
	var batches []Batch

	s := New(Options{
		MaxUnits:    3,
		MaxChars:    1000,
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			batches = append(batches, b)
			mu.Unlock()
			return map[string]translate.Result{}, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	units := makeUnits(10)
	s.Notify(units)

	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 10 })

	mu.Lock()
	defer mu.Unlock()
	seen := make(map[string]int)
	for _, b := range batches {
		if len(b.Units) > 3 {
			t.Errorf("Batch exceeds unit cap: %d", len(b.Units))
		}
		chars := 0
		for _, u := range b.Units {
			chars += len(u.Text)
			seen[u.ID]++
		}
		if chars > 1000 {
			t.Errorf("Batch exceeds char cap: %d", chars)
		}
	}
	if len(seen) != 10 {
		t.Errorf("Expected all 10 units batched, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Unit %s appeared %d times", id, n)
		}
	}
}

func TestScheduler_CharCapSplitsBatches(t *testing.T) {
	var mu sync.Mutex
	var batches []Batch

	s := New(Options{
		MaxUnits:    10,
		MaxChars:    50,
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			batches = append(batches, b)
			mu.Unlock()
			return nil, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	// 30 chars each: two per batch under the 50-char cap, and one unit
	// that alone exceeds the cap still forms a batch of one.
	units := []Unit{
		{ID: "a", Text: string(make([]byte, 30))},
		{ID: "b", Text: string(make([]byte, 30))},
		{ID: "huge", Text: string(make([]byte, 200))},
	}
	s.Notify(units)

	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 3 })

	mu.Lock()
	defer mu.Unlock()
	for _, b := range batches {
		if len(b.Units) == 1 {
			continue
		}
		chars := 0
		for _, u := range b.Units {
			chars += len(u.Text)
		}
		if chars > 50 {
			t.Errorf("Multi-unit batch exceeds char cap: %d", chars)
		}
	}
}

func TestScheduler_AtMostOncePerUnit(t *testing.T) {
	var mu sync.Mutex
	dispatched := make(map[string]int)
	rendered := make(map[string]int)

	s := New(Options{
		Concurrency: 2,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			results := make(map[string]translate.Result)
			mu.Lock()
			for _, u := range b.Units {
				dispatched[u.ID]++
				results[u.ID] = wordResult(u.ID)
			}
			mu.Unlock()
			return results, nil
		},
		Render: func(u Unit, r translate.Result) {
			mu.Lock()
			rendered[u.ID]++
			mu.Unlock()
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	units := makeUnits(4)
	s.Notify(units)
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 4 })

	// Re-notifying processed units must not produce another request.
	s.Notify(units)
	s.Notify(units)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range dispatched {
		if n != 1 {
			t.Errorf("Unit %s dispatched %d times", id, n)
		}
	}
	for id, n := range rendered {
		if n != 1 {
			t.Errorf("Unit %s rendered %d times", id, n)
		}
	}
}

func TestScheduler_NewestNotifiedFirst(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	first := true

	s := New(Options{
		MaxUnits:    1,
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			order = append(order, b.Units[0].ID)
			wasFirst := first
			first = false
			mu.Unlock()
			if wasFirst {
				<-release // hold the only slot while more units arrive
			}
			return nil, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	s.Notify([]Unit{{ID: "old", Text: "old text"}})
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(order) == 1 })

	s.Notify([]Unit{{ID: "middle", Text: "middle text"}})
	s.Notify([]Unit{{ID: "newest", Text: "newest text"}})
	close(release)

	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 3 })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"old", "newest", "middle"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("Dispatch order %v, want %v", order, want)
		}
	}
}

func TestScheduler_FailedBatchReleasedForRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	s := New(Options{
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				return nil, fmt.Errorf("provider unreachable")
			}
			results := make(map[string]translate.Result)
			for _, u := range b.Units {
				results[u.ID] = wordResult(u.ID)
			}
			return results, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	unit := []Unit{{ID: "retry-me", Text: "some text"}}
	s.Notify(unit)
	waitFor(t, func() bool { return s.Stats().BatchesFailed == 1 })

	// The next visibility pass re-notifies the unit; it must be
	// re-eligible rather than silently lost.
	s.Notify(unit)
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 1 })

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("Expected 2 dispatch calls, got %d", calls)
	}
}

func TestScheduler_EmptyResultProcessedNotRendered(t *testing.T) {
	var mu sync.Mutex
	renders := 0
	processedIDs := []string{}

	s := New(Options{
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			// No entry at all for the unit: reconciliation treats it
			// as an empty result.
			return map[string]translate.Result{}, nil
		},
		Render: func(u Unit, r translate.Result) {
			mu.Lock()
			renders++
			mu.Unlock()
		},
		OnProcessed: func(id string) {
			mu.Lock()
			processedIDs = append(processedIDs, id)
			mu.Unlock()
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	s.Notify([]Unit{{ID: "boring", Text: "nothing hard"}})
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 1 })

	mu.Lock()
	defer mu.Unlock()
	if renders != 0 {
		t.Errorf("Empty result must not render, got %d renders", renders)
	}
	if len(processedIDs) != 1 || processedIDs[0] != "boring" {
		t.Errorf("Expected unit marked processed, got %v", processedIDs)
	}
}

func TestScheduler_StaleRegionSkipsRender(t *testing.T) {
	var mu sync.Mutex
	renders := 0

	s := New(Options{
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			results := make(map[string]translate.Result)
			for _, u := range b.Units {
				results[u.ID] = wordResult(u.ID)
			}
			return results, nil
		},
		Render: func(u Unit, r translate.Result) {
			mu.Lock()
			renders++
			mu.Unlock()
		},
		ResolveRegion: func(id string) bool { return false },
	})
	s.Start(context.Background())
	defer s.Stop()

	s.Notify([]Unit{{ID: "gone", Text: "region was removed"}})
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 1 })

	mu.Lock()
	defer mu.Unlock()
	if renders != 0 {
		t.Errorf("Stale region must not render, got %d renders", renders)
	}
}

func TestScheduler_ConcurrencyBounded(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	release := make(chan struct{})

	s := New(Options{
		MaxUnits:    1,
		Concurrency: 3,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			<-release
			mu.Lock()
			active--
			mu.Unlock()
			return nil, nil
		},
	})
	s.Start(context.Background())

	s.Notify(makeUnits(10))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if peak != 3 {
		t.Errorf("Expected peak concurrency 3, got %d", peak)
	}
	mu.Unlock()

	close(release)
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 10 })
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Errorf("Concurrency exceeded bound: %d", peak)
	}
}

func TestScheduler_StaleSweepRecoversUnit(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	s := New(Options{
		Concurrency: 2,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				<-block // hangs: no response ever arrives
				return nil, fmt.Errorf("hung")
			}
			results := make(map[string]translate.Result)
			for _, u := range b.Units {
				results[u.ID] = wordResult(u.ID)
			}
			return results, nil
		},
	})
	s.Start(context.Background())

	s.Notify([]Unit{{ID: "hung-unit", Text: "text"}})
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls == 1 })

	// Pretend the marker is ancient and sweep.
	s.mu.Lock()
	s.inFlight["hung-unit"] = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()
	s.sweepStale()

	// Re-notification after the sweep dispatches again.
	s.Notify([]Unit{{ID: "hung-unit", Text: "text"}})
	waitFor(t, func() bool { return s.Stats().UnitsProcessed >= 1 })

	close(block)
	s.Stop()
}

func TestScheduler_ResetDropsBookkeeping(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	s := New(Options{
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			results := make(map[string]translate.Result)
			for _, u := range b.Units {
				results[u.ID] = wordResult(u.ID)
			}
			return results, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	s.Notify([]Unit{{ID: "u", Text: "text"}})
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 1 })

	// After a reset (mode switch), the same unit is re-evaluated.
	s.Reset()
	s.Notify([]Unit{{ID: "u", Text: "text"}})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestScheduler_IdleAfterProcessingAndAfterFailure(t *testing.T) {
	var mu sync.Mutex
	fail := true
	s := New(Options{
		Concurrency: 1,
		Dispatch: func(ctx context.Context, b Batch) (map[string]translate.Result, error) {
			mu.Lock()
			failing := fail
			mu.Unlock()
			if failing {
				return nil, fmt.Errorf("provider down")
			}
			return map[string]translate.Result{}, nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	if !s.Idle() {
		t.Error("Expected a fresh scheduler to be idle")
	}

	// A permanently failing batch must settle back to idle, so a driver
	// waiting on completion can give up instead of hanging.
	s.Notify(makeUnits(2))
	waitFor(t, func() bool { return s.Stats().BatchesFailed == 1 })
	waitFor(t, func() bool { return s.Idle() })

	mu.Lock()
	fail = false
	mu.Unlock()
	s.Notify(makeUnits(2))
	waitFor(t, func() bool { return s.Stats().UnitsProcessed == 2 })
	waitFor(t, func() bool { return s.Idle() })
}
