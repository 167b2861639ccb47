// Package metrics keeps a bounded, in-process history of operation timings.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of samples kept per key when none is configured.
const DefaultCapacity = 100

// Clock is swapped out in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sample is one recorded operation.
type Sample struct {
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}

// Summary aggregates the samples currently retained for a key.
type Summary struct {
	Key      string        `json:"key"`
	Count    int           `json:"count"`
	Failures int           `json:"failures"`
	Average  time.Duration `json:"average"`
	P95      time.Duration `json:"p95"`
	Max      time.Duration `json:"max"`
	Last     time.Time     `json:"last"`
}

// ring is a fixed-capacity circular buffer; the oldest sample is overwritten first.
type ring struct {
	samples []Sample
	next    int
	full    bool
}

func (r *ring) add(s Sample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

// ordered returns retained samples oldest first.
func (r *ring) ordered() []Sample {
	if !r.full {
		out := make([]Sample, r.next)
		copy(out, r.samples[:r.next])
		return out
	}
	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// Aggregator records samples per key. Each key holds at most capacity samples.
// Instances are independent; create one per process and inject it where needed.
type Aggregator struct {
	capacity int
	clock    Clock
	mu       sync.Mutex
	rings    map[string]*ring
}

// New creates an Aggregator. A non-positive capacity falls back to DefaultCapacity;
// a nil clock uses wall time.
func New(capacity int, clock Clock) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Aggregator{
		capacity: capacity,
		clock:    clock,
		rings:    make(map[string]*ring),
	}
}

// Record appends a sample for key.
func (a *Aggregator) Record(key string, d time.Duration, failed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rings[key]
	if !ok {
		r = &ring{samples: make([]Sample, a.capacity)}
		a.rings[key] = r
	}
	r.add(Sample{At: a.clock.Now(), Duration: d, Failed: failed})
}

// Track starts timing an operation; call the returned func with the outcome.
func (a *Aggregator) Track(key string) func(failed bool) {
	start := a.clock.Now()
	return func(failed bool) {
		a.Record(key, a.clock.Now().Sub(start), failed)
	}
}

// Samples returns the retained samples for key, oldest first.
func (a *Aggregator) Samples(key string) []Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rings[key]
	if !ok {
		return nil
	}
	return r.ordered()
}

// Snapshot summarizes key. ok is false when nothing was recorded for it.
func (a *Aggregator) Snapshot(key string) (Summary, bool) {
	samples := a.Samples(key)
	if len(samples) == 0 {
		return Summary{Key: key}, false
	}
	return summarize(key, samples), true
}

// Keys lists recorded keys in lexical order.
func (a *Aggregator) Keys() []string {
	a.mu.Lock()
	keys := make([]string, 0, len(a.rings))
	for k := range a.rings {
		keys = append(keys, k)
	}
	a.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// All summarizes every key.
func (a *Aggregator) All() []Summary {
	keys := a.Keys()
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		if s, ok := a.Snapshot(k); ok {
			out = append(out, s)
		}
	}
	return out
}

func summarize(key string, samples []Sample) Summary {
	s := Summary{Key: key, Count: len(samples)}
	durations := make([]time.Duration, 0, len(samples))
	var total time.Duration
	for _, sample := range samples {
		if sample.Failed {
			s.Failures++
		}
		if sample.Duration > s.Max {
			s.Max = sample.Duration
		}
		if sample.At.After(s.Last) {
			s.Last = sample.At
		}
		total += sample.Duration
		durations = append(durations, sample.Duration)
	}
	s.Average = total / time.Duration(len(samples))

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	idx := (len(durations)*95+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	s.P95 = durations[idx]
	return s
}
