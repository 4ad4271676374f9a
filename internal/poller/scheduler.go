package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultMinTick floors the scheduler tick to prevent CPU thrashing.
const defaultMinTick = time.Second

// Probe is one periodically executed check.
type Probe struct {
	// Name identifies the probe in results and logs. Names must be unique
	// within a scheduler.
	Name string

	// Interval between runs. Zero uses the scheduler's default interval.
	Interval time.Duration

	// Run performs the check. It should honour ctx cancellation.
	Run func(ctx context.Context) (any, error)
}

// Result holds the outcome of running a single probe.
type Result struct {
	// Probe is the name of the probe that produced this result.
	Probe string

	// Value is what Run returned. It is nil when Err is set.
	Value any

	// Err is the error returned by Run, or a wrapped panic.
	Err error

	// Latency is the time Run took.
	Latency time.Duration

	// CheckedAt is when Run completed.
	CheckedAt time.Time
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithMinTick lowers or raises the floor applied to the tick interval.
func WithMinTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.minTick = d
		}
	}
}

// Scheduler runs probes periodically.
//
// Scheduler implements a worker pool pattern, running due probes with
// bounded concurrency. Results are emitted to a channel that can be
// consumed by the caller.
//
// The scheduler runs all probes immediately on start, then uses a
// tick-and-check pattern where it ticks at the GCD of all probe intervals
// and runs only probes that are due.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	probes         []Probe
	interval       time.Duration // global default interval
	maxConcurrency int
	minTick        time.Duration
	results        chan Result
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// per-probe timing for tick-and-check pattern
	lastRunAt    map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - probes: Probes to run
//   - interval: Default time between runs
//   - maxConcurrency: Maximum number of probes running at once
//   - logger: Logger for scheduler events (panic recovery, etc.)
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(probes []Probe, interval time.Duration, maxConcurrency int, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	s := &Scheduler{
		probes:         probes,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		minTick:        defaultMinTick,
		results:        make(chan Result, len(probes)),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Results returns a receive-only channel that emits [Result] values.
//
// The channel is closed when the scheduler stops. Consumers should read from
// this channel until it is closed to receive all results.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// calculateBaseInterval determines the tick interval for the scheduler.
// Uses the GCD of all probe intervals to ensure timely runs.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.probes) == 0 {
		return max(s.interval, s.minTick)
	}

	intervals := make([]time.Duration, 0, len(s.probes))
	for _, p := range s.probes {
		if p.Interval > 0 {
			intervals = append(intervals, p.Interval)
		} else {
			intervals = append(intervals, s.interval)
		}
	}

	result := intervals[0]
	for _, d := range intervals[1:] {
		result = gcdDuration(result, d)
	}

	if result < s.minTick {
		result = s.minTick
	}

	return result
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the scheduling loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The scheduler will:
//  1. Run all probes immediately
//  2. Tick at the GCD of all probe intervals
//  3. Run only probes that are due on each tick
//  4. Continue until [Scheduler.Stop] is called or the context is cancelled
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRunAt = make(map[string]time.Time, len(s.probes))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.runDueProbes(runCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDueProbes(runCtx, false)
			}
		}
	}()
}

// Stop halts the scheduler and waits for all goroutines to complete.
//
// Stop cancels the scheduler's context and blocks until:
//   - The scheduling loop exits
//   - All in-flight probes complete
//   - The results channel is closed
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// runDueProbes runs only probes that are due based on their intervals.
// If immediate is true, runs all probes regardless of timing.
//
// lastRunAt is updated when a run STARTS, not when it completes, so the
// effective interval of a slow probe is its interval plus its run time.
func (s *Scheduler) runDueProbes(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Probe, 0, len(s.probes))

	s.mu.Lock()
	for _, p := range s.probes {
		if immediate {
			due = append(due, p)
			s.lastRunAt[p.Name] = now
			continue
		}

		interval := p.Interval
		if interval == 0 {
			interval = s.interval
		}

		last, exists := s.lastRunAt[p.Name]
		if !exists || now.Sub(last) >= interval {
			due = append(due, p)
			s.lastRunAt[p.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.runProbes(ctx, due)
}

// runProbes runs a subset of probes concurrently, respecting maxConcurrency.
func (s *Scheduler) runProbes(ctx context.Context, probes []Probe) {
	jobs := make(chan Probe, len(probes))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				result := s.runProbe(ctx, p)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, p := range probes {
		select {
		case jobs <- p:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// runProbe runs a single probe and returns its result.
func (s *Scheduler) runProbe(ctx context.Context, p Probe) Result {
	start := time.Now()
	value, err := s.safeRun(ctx, p)
	result := Result{
		Probe:     p.Name,
		Value:     value,
		Err:       err,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	if err != nil {
		result.Value = nil
	}
	return result
}

// safeRun calls the probe with panic recovery.
// If the probe panics, it logs the full stack trace with a correlation ID
// and returns an error containing the ID.
func (s *Scheduler) safeRun(ctx context.Context, p Probe) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			// log full context server-side for debugging
			s.logger.Error("probe panic",
				zap.String("probe", p.Name),
				zap.String("correlation_id", correlationID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)

			value = nil
			err = fmt.Errorf("probe %s panic (correlation_id: %s)", p.Name, correlationID)
		}
	}()
	if p.Run == nil {
		return nil, fmt.Errorf("probe %s has no run function", p.Name)
	}
	return p.Run(ctx)
}
