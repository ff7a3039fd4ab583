// Package traffic keeps sliding windows of request outcomes for health reporting.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies how a request ended.
type Outcome int

const (
	// OutcomeSuccess is a forecast or digest served in full.
	OutcomeSuccess Outcome = iota
	// OutcomeUpstreamError is a failure caused by Open-Meteo or Resend.
	OutcomeUpstreamError
	// OutcomeClientError is a rejected or unresolvable request; it does not count toward the error rate.
	OutcomeClientError
	// OutcomeDenied is a rate-limit denial (429).
	OutcomeDenied
)

const retention = 5 * time.Minute

var defaultTracker = NewTracker()

// Record records an outcome on the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RequestCount returns all outcomes within the window on the process-wide tracker.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns rate-limit denials within the window on the process-wide tracker.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(OutcomeDenied, window)
}

// ErrorRate returns (upstreamErrors, successes+upstreamErrors) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains timestamps per outcome, pruned to a fixed retention.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	times map[Outcome][]time.Time
}

// NewTracker returns an empty Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now, times: make(map[Outcome][]time.Time)}
}

// Record appends the current time for o.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.now().Add(-window))
}

// RequestCount returns the number of outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	n := 0
	for _, ts := range t.times {
		n += countSince(ts, cutoff)
	}
	return n
}

// ErrorRate returns (upstreamErrors, total) where total counts successes and upstream errors.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.times[OutcomeUpstreamError], cutoff)
	return errors, errors + countSince(t.times[OutcomeSuccess], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = make(map[Outcome][]time.Time)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	for o, times := range t.times {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
