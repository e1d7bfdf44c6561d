package store

import (
	"context"
	"errors"
	"time"

	"notedigest/internal/schedule"
)

var (
	// ErrNotFound is returned when a schedule does not exist or is not owned
	// by the requesting user.
	ErrNotFound = errors.New("schedule not found")

	// ErrNotReady marks a transient backing-store condition (index building,
	// lock contention, replica warming up). Callers may retry later; the core
	// never retries in place.
	ErrNotReady = errors.New("store not ready")
)

// RunUpdate carries the bookkeeping fields the executor rewrites after a run.
// Values are absolute, not deltas; they are applied atomically per schedule.
type RunUpdate struct {
	RunCount   int
	ErrorCount int
	LastRun    time.Time
	LastError  string // empty clears the recorded error
	NextRun    time.Time
}

// Store is the keyed document store behind the schedule lifecycle engine.
type Store interface {
	GetSchedule(ctx context.Context, id string) (schedule.Config, error)
	ListSchedulesForUser(ctx context.Context, userID string) ([]schedule.Config, error)
	ListAllSchedules(ctx context.Context) ([]schedule.Config, error)
	SaveSchedule(ctx context.Context, cfg schedule.Config) error
	UpdateScheduleRun(ctx context.Context, id string, update RunUpdate) error
	DeleteSchedule(ctx context.Context, id string, userID string) error

	RecordExecution(ctx context.Context, exec schedule.Execution) error
	ListExecutionsForUser(ctx context.Context, userID string, limit int) ([]schedule.Execution, error)
}
