package degraded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/dogwalk-index/internal/traffic"
)

// TestFibDelays verifies that fibDelays generates Fibonacci sequence delays
// up to the maximum delay value.
func TestFibDelays(t *testing.T) {
	delays := fibDelays(1*time.Minute, 13*time.Minute)
	want := []time.Duration{1, 2, 3, 5, 8, 13}
	if len(delays) != len(want) {
		t.Fatalf("len(delays) = %d, want %d", len(delays), len(want))
	}
	for i, w := range want {
		expected := time.Duration(w) * time.Minute
		if delays[i] != expected {
			t.Errorf("delays[%d] = %v, want %v", i, delays[i], expected)
		}
	}
}

// TestFibDelays_Invalid verifies that a zero initial delay or a max below
// initial yields no schedule.
func TestFibDelays_Invalid(t *testing.T) {
	if d := fibDelays(0, time.Minute); d != nil {
		t.Errorf("fibDelays(0, 1m) = %v, want nil", d)
	}
	if d := fibDelays(time.Minute, time.Second); d != nil {
		t.Errorf("fibDelays(1m, 1s) = %v, want nil", d)
	}
}

// TestRecovery_Run_Recovers verifies that a probe succeeding on the second
// attempt ends the sequence and clears the traffic windows.
func TestRecovery_Run_Recovers(t *testing.T) {
	traffic.Reset()
	traffic.Record(traffic.OutcomeUpstreamError)

	var attempts atomic.Int32
	probe := func(ctx context.Context) error {
		if attempts.Add(1) >= 2 {
			return nil
		}
		return errors.New("fail")
	}
	r := NewRecovery(probe, 5*time.Millisecond, 100*time.Millisecond, nil)

	if !r.Run(context.Background()) {
		t.Fatal("Run() = false, want recovered")
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if errs, _ := traffic.ErrorRate(time.Minute); errs != 0 {
		t.Errorf("error window not cleared: %d errors", errs)
	}
}

// TestRecovery_Run_Exhausted verifies that a probe that never succeeds
// exhausts the schedule and logs it.
func TestRecovery_Run_Exhausted(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var attempts atomic.Int32
	probe := func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("always fail")
	}
	r := NewRecovery(probe, 5*time.Millisecond, 25*time.Millisecond, zap.New(core))

	if r.Run(context.Background()) {
		t.Fatal("Run() = true, want exhausted")
	}
	// 5ms, 10ms, 15ms, 25ms
	if attempts.Load() != 4 {
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
	if logs.FilterMessageSnippet("exhausted").Len() != 1 {
		t.Error("expected exhaustion to be logged")
	}
}

// TestRecovery_Run_ContextCanceled verifies that cancelling the context stops
// the sequence before any probe runs.
func TestRecovery_Run_ContextCanceled(t *testing.T) {
	var called atomic.Bool
	r := NewRecovery(func(ctx context.Context) error {
		called.Store(true)
		return nil
	}, time.Hour, 2*time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r.Run(ctx) {
		t.Error("Run() = true after cancel")
	}
	if called.Load() {
		t.Error("probe called after cancel")
	}
}

// TestRecovery_NotifyStartsSequence verifies that Notify triggers a probe via
// the listener started by Start.
func TestRecovery_NotifyStartsSequence(t *testing.T) {
	done := make(chan struct{})
	var once atomic.Bool
	r := NewRecovery(func(ctx context.Context) error {
		if !once.Swap(true) {
			close(done)
		}
		return nil
	}, time.Millisecond, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	r.Start(ctx)
	r.Notify()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("probe not called after Notify")
	}
}

// TestRecovery_NilNotify verifies that a nil Recovery is safe to notify.
func TestRecovery_NilNotify(t *testing.T) {
	var r *Recovery
	r.Notify()
	if r.Running() {
		t.Error("nil Recovery reports running")
	}
}
