package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okProbe(name string, interval time.Duration) Probe {
	return Probe{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) (any, error) {
			return name, nil
		},
	}
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())

	// this must not panic
	scheduler.Stop()
}

// TestScheduler_StopTwice verifies that Stop() is idempotent and can be
// called multiple times without panic or deadlock.
func TestScheduler_StopTwice(t *testing.T) {
	scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())
	scheduler.Start(context.Background())

	scheduler.Stop()
	scheduler.Stop()
}

// TestScheduler_StopAfterStart verifies the normal lifecycle: Start followed
// by Stop results in clean shutdown with the results channel closed.
func TestScheduler_StopAfterStart(t *testing.T) {
	scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())
	scheduler.Start(context.Background())

	go func() {
		for range scheduler.Results() {
		}
	}()

	time.Sleep(50 * time.Millisecond)

	scheduler.Stop()

	select {
	case _, ok := <-scheduler.Results():
		if ok {
			t.Error("expected results channel to be closed after Stop()")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for results channel to close")
	}
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not cause a race condition or panic.
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			scheduler.Start(context.Background())
		}()

		go func() {
			defer wg.Done()
			scheduler.Stop()
		}()

		wg.Wait()

		for range scheduler.Results() {
		}
	}
}

// TestScheduler_ConcurrentRunAndStop verifies that workers don't race
// with Stop().
func TestScheduler_ConcurrentRunAndStop(t *testing.T) {
	probes := []Probe{
		okProbe("test1", 0),
		okProbe("test2", 0),
		okProbe("test3", 0),
	}

	for i := 0; i < 50; i++ {
		scheduler := NewScheduler(probes, 10*time.Millisecond, 2, zap.NewNop(), WithMinTick(5*time.Millisecond))
		scheduler.Start(context.Background())

		time.Sleep(15 * time.Millisecond)

		scheduler.Stop()

		for range scheduler.Results() {
		}
	}
}

// TestScheduler_StartTwice verifies that Start() is idempotent.
func TestScheduler_StartTwice(t *testing.T) {
	var runs atomic.Int32
	probe := Probe{Name: "count", Run: func(ctx context.Context) (any, error) {
		runs.Add(1)
		return nil, nil
	}}

	scheduler := NewScheduler([]Probe{probe}, time.Hour, 1, zap.NewNop())
	scheduler.Start(context.Background())
	scheduler.Start(context.Background())

	<-scheduler.Results()
	scheduler.Stop()

	if got := runs.Load(); got != 1 {
		t.Errorf("probe ran %d times, want 1", got)
	}
}

// TestScheduler_StopBeforeStartThenStart verifies that if Stop() is called
// before Start(), a subsequent Start() call is a no-op.
func TestScheduler_StopBeforeStartThenStart(t *testing.T) {
	scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())

	scheduler.Stop()
	scheduler.Start(context.TODO())
	scheduler.Stop()

	if _, ok := <-scheduler.Results(); ok {
		t.Error("expected no results after Stop before Start")
	}
}

// TestScheduler_ContextCancellation verifies that cancelling the parent context
// stops the scheduler gracefully.
func TestScheduler_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler([]Probe{okProbe("test", 0)}, time.Minute, 1, zap.NewNop())
	scheduler.Start(ctx)

	go func() {
		for range scheduler.Results() {
		}
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete after parent context cancellation")
	}
}

// TestScheduler_ProbeReceivesCancelledContext verifies that a blocked probe
// is released by Stop.
func TestScheduler_ProbeReceivesCancelledContext(t *testing.T) {
	started := make(chan struct{})
	probe := Probe{Name: "block", Run: func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	scheduler := NewScheduler([]Probe{probe}, time.Hour, 1, zap.NewNop())
	scheduler.Start(context.Background())
	<-started

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not release a blocked probe")
	}
}

func TestScheduler_ResultCarriesValueAndError(t *testing.T) {
	errDown := errors.New("down")
	probes := []Probe{
		okProbe("good", 0),
		{Name: "bad", Run: func(ctx context.Context) (any, error) { return "ignored", errDown }},
	}

	scheduler := NewScheduler(probes, time.Hour, 2, zap.NewNop())
	scheduler.Start(context.Background())

	results := make(map[string]Result)
	for i := 0; i < 2; i++ {
		select {
		case r := <-scheduler.Results():
			results[r.Probe] = r
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for result %d", i+1)
		}
	}
	scheduler.Stop()

	if results["good"].Value != "good" || results["good"].Err != nil {
		t.Errorf("good = %+v, want value %q and no error", results["good"], "good")
	}
	if !errors.Is(results["bad"].Err, errDown) {
		t.Errorf("bad.Err = %v, want %v", results["bad"].Err, errDown)
	}
	if results["bad"].Value != nil {
		t.Errorf("bad.Value = %v, want nil when Err is set", results["bad"].Value)
	}
	if results["good"].CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
}

// TestScheduler_ProbePanicRecovery verifies that a panicking probe does not
// crash the scheduler and is reported with a correlation id.
func TestScheduler_ProbePanicRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	probe := Probe{Name: "Panic Test", Run: func(ctx context.Context) (any, error) {
		panic("probe panic: simulated failure")
	}}

	scheduler := NewScheduler([]Probe{probe}, time.Hour, 1, zap.New(core))
	scheduler.Start(context.Background())

	var result Result
	select {
	case result = <-scheduler.Results():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
	}

	scheduler.Stop()

	if result.Err == nil {
		t.Fatal("Err = nil, want error describing panic")
	}
	if !strings.Contains(result.Err.Error(), "correlation_id") {
		t.Errorf("Err = %q, want to contain 'correlation_id'", result.Err)
	}

	entries := logs.FilterMessage("probe panic").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d panic entries, want 1", len(entries))
	}
	id, _ := entries[0].ContextMap()["correlation_id"].(string)
	if id == "" || !strings.Contains(result.Err.Error(), id) {
		t.Errorf("logged correlation id %q not in error %q", id, result.Err)
	}
}

// TestScheduler_ProbePanicDoesNotAffectOthers verifies that a panic in one
// probe does not prevent other probes from running.
func TestScheduler_ProbePanicDoesNotAffectOthers(t *testing.T) {
	probes := []Probe{
		{Name: "Panicking", Run: func(ctx context.Context) (any, error) { panic(nil) }},
		okProbe("Healthy", 0),
	}

	scheduler := NewScheduler(probes, time.Hour, 2, zap.NewNop())
	scheduler.Start(context.Background())

	results := make(map[string]Result)
	for i := 0; i < 2; i++ {
		select {
		case r := <-scheduler.Results():
			results[r.Probe] = r
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for result %d", i+1)
		}
	}

	scheduler.Stop()

	if results["Panicking"].Err == nil {
		t.Error("Panicking.Err = nil, want recovered panic")
	}
	if results["Healthy"].Err != nil {
		t.Errorf("Healthy.Err = %v, want nil", results["Healthy"].Err)
	}
}

func TestScheduler_NilRun(t *testing.T) {
	scheduler := NewScheduler([]Probe{{Name: "empty"}}, time.Hour, 1, zap.NewNop())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	select {
	case r := <-scheduler.Results():
		if r.Err == nil {
			t.Error("Err = nil, want error for probe without run function")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
	}
}

// TestScheduler_GCDCalculation verifies that the base tick interval is
// calculated correctly as the GCD of all probe intervals.
func TestScheduler_GCDCalculation(t *testing.T) {
	tests := []struct {
		name           string
		intervals      []time.Duration
		globalInterval time.Duration
		expectedBase   time.Duration
	}{
		{
			name:           "all same interval",
			intervals:      []time.Duration{10 * time.Second, 10 * time.Second},
			globalInterval: 10 * time.Second,
			expectedBase:   10 * time.Second,
		},
		{
			name:           "5s and 10s gives GCD of 5s",
			intervals:      []time.Duration{5 * time.Second, 10 * time.Second},
			globalInterval: 30 * time.Second,
			expectedBase:   5 * time.Second,
		},
		{
			name:           "with zero (default) uses global",
			intervals:      []time.Duration{6 * time.Second, 0},
			globalInterval: 9 * time.Second,
			expectedBase:   3 * time.Second,
		},
		{
			name:           "all use default",
			intervals:      []time.Duration{0, 0, 0},
			globalInterval: 15 * time.Second,
			expectedBase:   15 * time.Second,
		},
		{
			name:           "co-prime intervals",
			intervals:      []time.Duration{7 * time.Second, 11 * time.Second},
			globalInterval: 30 * time.Second,
			expectedBase:   1 * time.Second,
		},
		{
			name:           "floored at one second",
			intervals:      []time.Duration{300 * time.Millisecond, 600 * time.Millisecond},
			globalInterval: 30 * time.Second,
			expectedBase:   1 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := make([]Probe, len(tt.intervals))
			for i, interval := range tt.intervals {
				probes[i] = okProbe(fmt.Sprintf("p%d", i), interval)
			}

			scheduler := NewScheduler(probes, tt.globalInterval, 1, zap.NewNop())
			base := scheduler.calculateBaseInterval()

			if base != tt.expectedBase {
				t.Errorf("calculateBaseInterval() = %v, want %v", base, tt.expectedBase)
			}
		})
	}
}

func TestScheduler_MinTickOption(t *testing.T) {
	probes := []Probe{okProbe("a", 20*time.Millisecond), okProbe("b", 30*time.Millisecond)}
	scheduler := NewScheduler(probes, time.Second, 1, zap.NewNop(), WithMinTick(5*time.Millisecond))

	if base := scheduler.calculateBaseInterval(); base != 10*time.Millisecond {
		t.Errorf("calculateBaseInterval() = %v, want %v", base, 10*time.Millisecond)
	}
}

// TestScheduler_GCDCalculation_EmptyProbes verifies that an empty probe
// list returns the global interval as the base.
func TestScheduler_GCDCalculation_EmptyProbes(t *testing.T) {
	globalInterval := 20 * time.Second
	scheduler := NewScheduler(nil, globalInterval, 1, zap.NewNop())

	if base := scheduler.calculateBaseInterval(); base != globalInterval {
		t.Errorf("calculateBaseInterval() = %v, want %v (global)", base, globalInterval)
	}
}

// TestScheduler_MixedIntervals verifies that probes with different intervals
// run at their respective frequencies.
func TestScheduler_MixedIntervals(t *testing.T) {
	probes := []Probe{
		okProbe("Fast", 20*time.Millisecond),
		okProbe("Slow", 0), // global
	}

	scheduler := NewScheduler(probes, time.Hour, 2, zap.NewNop(), WithMinTick(10*time.Millisecond))
	scheduler.Start(context.Background())

	counts := make(map[string]int)
	timeout := time.After(200 * time.Millisecond)

collecting:
	for {
		select {
		case result, ok := <-scheduler.Results():
			if !ok {
				break collecting
			}
			counts[result.Probe]++
		case <-timeout:
			break collecting
		}
	}

	scheduler.Stop()

	if counts["Fast"] < 3 {
		t.Errorf("Fast probe ran %d times, expected at least 3", counts["Fast"])
	}
	if counts["Slow"] != 1 {
		t.Errorf("Slow probe ran %d times, expected only the immediate run", counts["Slow"])
	}
}

// TestScheduler_ImmediateRunOnStart verifies that all probes run immediately
// when the scheduler starts, regardless of their intervals.
func TestScheduler_ImmediateRunOnStart(t *testing.T) {
	scheduler := NewScheduler([]Probe{okProbe("LongInterval", time.Hour)}, time.Hour, 1, zap.NewNop())
	scheduler.Start(context.Background())

	select {
	case result := <-scheduler.Results():
		if result.Probe != "LongInterval" {
			t.Errorf("Probe = %q, want %q", result.Probe, "LongInterval")
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("timeout waiting for immediate result")
	}

	scheduler.Stop()
}
