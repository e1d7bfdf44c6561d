package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"notedigest/internal/schedule"
	"notedigest/internal/store"
)

// ErrAlreadyRunning is returned when a manual run is requested for a schedule
// whose previous execution has not finished yet.
var ErrAlreadyRunning = errors.New("schedule is already running")

// ScheduleExecutor runs one execution of one schedule end to end.
type ScheduleExecutor interface {
	Execute(ctx context.Context, scheduleID string, userID string) (*schedule.Execution, error)
}

// Observer receives execution lifecycle events. Callbacks run on the
// executing goroutine and must not block.
type Observer interface {
	ExecutionStarted(cfg schedule.Config)
	ExecutionCompleted(exec schedule.Execution)
}

// Report summarizes one sweep over all schedules.
type Report struct {
	CheckedAt time.Time `json:"checked_at"`
	Checked   int       `json:"checked"`
	Due       int       `json:"due"`
	Executed  int       `json:"executed"`
	Skipped   int       `json:"skipped"`
	Errors    []string  `json:"errors,omitempty"`
}

type Options struct {
	Store    store.Store
	Executor ScheduleExecutor
	Observer Observer

	MaxTimerDelay time.Duration
	Parallelism   int
	Logf          func(format string, args ...any)
}

// Manager owns the background scheduling loop. It wakes on a timer or on
// Wake, sweeps the store for due schedules, and hands each one to the
// executor while the tracker guards against overlapping runs.
type Manager struct {
	store    store.Store
	executor ScheduleExecutor
	observer Observer
	tracker  *Tracker

	maxTimerDelay time.Duration
	parallelism   int
	logf          func(format string, args ...any)

	wakeCh chan struct{}
	doneCh chan struct{}

	wakeMu sync.Mutex
}

func Start(ctx context.Context, opts Options) (*Manager, error) {
	m, err := New(opts)
	if err != nil {
		return nil, err
	}
	go m.loop(ctx)
	return m, nil
}

func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is nil")
	}
	maxTimerDelay := opts.MaxTimerDelay
	if maxTimerDelay <= 0 {
		maxTimerDelay = 60 * time.Second
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{
		store:         opts.Store,
		executor:      opts.Executor,
		observer:      opts.Observer,
		tracker:       NewTracker(),
		maxTimerDelay: maxTimerDelay,
		parallelism:   parallelism,
		logf:          logf,
		wakeCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}, nil
}

func (m *Manager) Tracker() *Tracker {
	if m == nil {
		return nil
	}
	return m.tracker
}

func (m *Manager) Done() <-chan struct{} {
	if m == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.doneCh
}

// Wake nudges the loop to re-check immediately. Coalesces; never blocks.
func (m *Manager) Wake() {
	if m == nil {
		return
	}
	m.wakeMu.Lock()
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
	m.wakeMu.Unlock()
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.doneCh)

	delay := 0 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return
		}
		if delay <= 0 {
			delay = 250 * time.Millisecond
		}
		if delay > m.maxTimerDelay {
			delay = m.maxTimerDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.wakeCh:
			timer.Stop()
		case <-timer.C:
		}

		nextDelay, err := m.tick(ctx, time.Now().UTC())
		if err != nil {
			m.logf("scheduler tick: %v", err)
		}
		delay = nextDelay
	}
}

// tick sweeps the store once, runs everything due, and reports how long the
// loop may sleep before the next schedule comes due.
func (m *Manager) tick(ctx context.Context, now time.Time) (time.Duration, error) {
	schedules, err := m.store.ListAllSchedules(ctx)
	if err != nil {
		// Transient store trouble (lock contention, redis blip) just delays
		// the sweep; the schedules stay due and run on the next pass.
		return m.maxTimerDelay, fmt.Errorf("list schedules: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(m.parallelism)
	for _, cfg := range schedules {
		if !schedule.IsDue(cfg, now) {
			continue
		}
		cfg := cfg
		g.Go(func() error {
			if _, err := m.runTracked(ctx, cfg); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				m.logf("schedule %s: %v", cfg.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return m.delayUntilNext(ctx, now), nil
}

func (m *Manager) delayUntilNext(ctx context.Context, now time.Time) time.Duration {
	schedules, err := m.store.ListAllSchedules(ctx)
	if err != nil {
		return m.maxTimerDelay
	}
	next := time.Time{}
	for _, cfg := range schedules {
		if !cfg.IsActive || cfg.NextRun.IsZero() {
			continue
		}
		if next.IsZero() || cfg.NextRun.Before(next) {
			next = cfg.NextRun
		}
	}
	if next.IsZero() {
		return m.maxTimerDelay
	}
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	if delay > m.maxTimerDelay {
		delay = m.maxTimerDelay
	}
	return delay
}

// ExecuteNow runs one schedule immediately, bypassing its next_run slot.
func (m *Manager) ExecuteNow(ctx context.Context, scheduleID string, userID string) (*schedule.Execution, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	cfg, err := m.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if cfg.UserID != userID {
		return nil, store.ErrNotFound
	}
	exec, err := m.runTracked(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m.Wake()
	return exec, nil
}

func (m *Manager) runTracked(ctx context.Context, cfg schedule.Config) (*schedule.Execution, error) {
	if !m.tracker.TryAcquire(cfg.ID) {
		return nil, ErrAlreadyRunning
	}
	defer m.tracker.Release(cfg.ID)

	if m.observer != nil {
		m.observer.ExecutionStarted(cfg)
	}
	exec, err := m.executor.Execute(ctx, cfg.ID, cfg.UserID)
	if exec != nil && m.observer != nil {
		m.observer.ExecutionCompleted(*exec)
	}
	return exec, err
}

// ForceCheck sweeps every schedule right now and runs the due ones
// concurrently. When ctx expires before the sweep finishes, the wait is
// abandoned and the report covers what had completed by then; the remaining
// executions keep running and write their own bookkeeping.
func (m *Manager) ForceCheck(ctx context.Context) (Report, error) {
	now := time.Now().UTC()
	report := Report{CheckedAt: now}
	if m == nil {
		return report, errors.New("manager is nil")
	}

	schedules, err := m.store.ListAllSchedules(ctx)
	if err != nil {
		return report, fmt.Errorf("list schedules: %w", err)
	}
	report.Checked = len(schedules)

	var due []schedule.Config
	for _, cfg := range schedules {
		if schedule.IsDue(cfg, now) {
			due = append(due, cfg)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	report.Due = len(due)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(m.parallelism)
	for _, cfg := range due {
		cfg := cfg
		g.Go(func() error {
			execCtx := context.WithoutCancel(ctx)
			_, err := m.runTracked(execCtx, cfg)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAlreadyRunning):
				report.Skipped++
			case err != nil:
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", cfg.ID, err))
			default:
				report.Executed++
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		snapshot := report
		snapshot.Errors = append([]string(nil), report.Errors...)
		mu.Unlock()
		return snapshot, fmt.Errorf("force check abandoned: %w", ctx.Err())
	}

	m.Wake()
	return report, nil
}
