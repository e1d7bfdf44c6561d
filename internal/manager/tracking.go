package manager

import "sync"

// Tracker is the single source of truth for "is this schedule running".
// Acquisition must succeed before an execution starts and the slot is held
// until its bookkeeping is written, which keeps every schedule at most-once
// in flight regardless of how the run was triggered.
type Tracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{running: make(map[string]struct{})}
}

// TryAcquire claims the schedule's run slot. It reports false when an
// execution already holds it.
func (t *Tracker) TryAcquire(scheduleID string) bool {
	if t == nil || scheduleID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[scheduleID]; ok {
		return false
	}
	t.running[scheduleID] = struct{}{}
	return true
}

func (t *Tracker) Release(scheduleID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.running, scheduleID)
	t.mu.Unlock()
}

func (t *Tracker) IsRunning(scheduleID string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[scheduleID]
	return ok
}

// RunningCount reports how many executions are in flight.
func (t *Tracker) RunningCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
