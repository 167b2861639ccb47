package metrics

import (
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRecordKeepsAtMostCapacity(t *testing.T) {
	agg := New(3, newMockClock())
	for i := 1; i <= 5; i++ {
		agg.Record("op", time.Duration(i)*time.Millisecond, false)
	}

	samples := agg.Samples("op")
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i, want := range []time.Duration{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond} {
		if samples[i].Duration != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, samples[i].Duration)
		}
	}
}

func TestSnapshot(t *testing.T) {
	clock := newMockClock()
	agg := New(10, clock)
	agg.Record("sweep", 10*time.Millisecond, false)
	clock.Advance(time.Second)
	agg.Record("sweep", 30*time.Millisecond, true)

	s, ok := agg.Snapshot("sweep")
	if !ok {
		t.Fatal("expected snapshot")
	}
	if s.Count != 2 || s.Failures != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Average != 20*time.Millisecond {
		t.Errorf("expected average 20ms, got %v", s.Average)
	}
	if s.Max != 30*time.Millisecond || s.P95 != 30*time.Millisecond {
		t.Errorf("unexpected max/p95: %v/%v", s.Max, s.P95)
	}
	if !s.Last.Equal(clock.Now()) {
		t.Errorf("expected last %v, got %v", clock.Now(), s.Last)
	}
}

func TestSnapshotUnknownKey(t *testing.T) {
	agg := New(0, nil)
	if _, ok := agg.Snapshot("missing"); ok {
		t.Fatal("expected no snapshot for unknown key")
	}
}

func TestInstancesAreIsolated(t *testing.T) {
	a := New(5, nil)
	b := New(5, nil)
	a.Record("op", time.Millisecond, false)

	if len(b.Keys()) != 0 {
		t.Fatalf("expected empty aggregator, got keys %v", b.Keys())
	}
}

func TestTrack(t *testing.T) {
	clock := newMockClock()
	agg := New(5, clock)

	done := agg.Track("GET /competitions")
	clock.Advance(250 * time.Millisecond)
	done(false)

	samples := agg.Samples("GET /competitions")
	if len(samples) != 1 || samples[0].Duration != 250*time.Millisecond {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestConcurrentRecord(t *testing.T) {
	agg := New(50, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				agg.Record("op", time.Millisecond, false)
			}
		}()
	}
	wg.Wait()

	if got := len(agg.Samples("op")); got != 50 {
		t.Fatalf("expected 50 retained samples, got %d", got)
	}
}
