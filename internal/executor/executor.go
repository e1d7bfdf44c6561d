package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"notedigest/internal/content"
	"notedigest/internal/deliver"
	"notedigest/internal/schedule"
	"notedigest/internal/store"
	"notedigest/internal/summarize"
)

// ContentFetcher is the notes workspace seen from the executor.
type ContentFetcher interface {
	FetchNotes(ctx context.Context, sinceDays int) ([]content.Note, error)
}

// Executor runs one end-to-end execution of a single schedule: fetch,
// summarize, deliver, persist the outcome, advance next_run. Only missing
// schedules, owner mismatches, and store I/O failures are returned as errors;
// every other failure mode is data in the Execution record.
type Executor struct {
	Store      store.Store
	Content    ContentFetcher
	Summarizer summarize.Summarizer
	Sinks      map[string]deliver.Sink

	DefaultTimezone string
	RunTimeout      time.Duration
	Now             func() time.Time
	Logf            func(format string, args ...any)
}

func (e *Executor) Execute(ctx context.Context, scheduleID string, userID string) (*schedule.Execution, error) {
	if e == nil || e.Store == nil {
		return nil, errors.New("executor is not configured")
	}

	cfg, err := e.Store.GetSchedule(ctx, strings.TrimSpace(scheduleID))
	if err != nil {
		return nil, err
	}
	if cfg.UserID != strings.TrimSpace(userID) {
		return nil, store.ErrNotFound
	}

	executedAt := e.now()
	exec := &schedule.Execution{
		ID:         schedule.GenerateExecutionID(),
		ScheduleID: cfg.ID,
		UserID:     cfg.UserID,
		ExecutedAt: executedAt,
	}

	runCtx := ctx
	if e.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.RunTimeout)
		defer cancel()
	}

	e.run(runCtx, cfg, exec)

	// Bookkeeping always happens, even when the run context expired mid-way:
	// a failed or timed-out run must not stall future runs.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.Store.RecordExecution(persistCtx, *exec); err != nil {
		return exec, fmt.Errorf("record execution: %w", err)
	}
	if err := e.updateBookkeeping(persistCtx, cfg, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

func (e *Executor) run(ctx context.Context, cfg schedule.Config, exec *schedule.Execution) {
	notes, err := e.Content.FetchNotes(ctx, cfg.Summary.ContentDays)
	if err != nil {
		exec.Status = schedule.StatusFailed
		exec.Error = fmt.Sprintf("fetch content: %v", err)
		return
	}
	if len(notes) == 0 {
		// Nothing to summarize is not a failure; the schedule just advances.
		exec.Status = schedule.StatusPartial
		exec.Error = "no content to summarize"
		return
	}

	summary, err := e.Summarizer.Summarize(ctx, notes, cfg.Summary)
	if err != nil {
		exec.Status = schedule.StatusFailed
		exec.Error = fmt.Sprintf("summarize: %v", err)
		return
	}
	exec.WordCount = summary.WordCount
	exec.ActionItems = len(summary.ActionItems)

	channels := cfg.Delivery.EnabledChannels()
	if len(channels) == 0 {
		exec.Status = schedule.StatusFailed
		exec.Error = "no delivery channel enabled"
		return
	}

	subject := digestSubject(cfg, exec.ExecutedAt, e.DefaultTimezone)
	body := digestBody(summary)

	succeeded := 0
	var firstErr string
	for _, channel := range channels {
		outcome := schedule.DeliveryOutcome{Channel: channel}
		sink := e.Sinks[channel]
		if sink == nil {
			outcome.Error = fmt.Sprintf("%s delivery is not configured", channel)
		} else {
			req := deliver.Request{Subject: subject, Markdown: body, Address: channelAddress(cfg, channel)}
			if err := sink.Deliver(ctx, req); err != nil {
				outcome.Error = err.Error()
			} else {
				outcome.OK = true
			}
		}
		if outcome.OK {
			succeeded++
		} else if firstErr == "" {
			firstErr = fmt.Sprintf("%s: %s", channel, outcome.Error)
		}
		exec.Deliveries = append(exec.Deliveries, outcome)
	}

	switch {
	case succeeded == len(channels):
		exec.Status = schedule.StatusSuccess
	case succeeded > 0:
		exec.Status = schedule.StatusPartial
		exec.Error = fmt.Sprintf("delivery partially failed: %s", firstErr)
	default:
		exec.Status = schedule.StatusFailed
		exec.Error = fmt.Sprintf("delivery failed: %s", firstErr)
	}
}

func (e *Executor) updateBookkeeping(ctx context.Context, cfg schedule.Config, exec *schedule.Execution) error {
	next, err := schedule.ComputeNextRun(cfg, exec.ExecutedAt, e.DefaultTimezone)
	if err != nil {
		// A schedule that can no longer compute its slot retries in a day
		// rather than going due immediately and spinning.
		e.logf("schedule %s: compute next run: %v", cfg.ID, err)
		next = exec.ExecutedAt.Add(24 * time.Hour)
	}

	update := store.RunUpdate{
		RunCount:   cfg.RunCount + 1,
		ErrorCount: cfg.ErrorCount,
		LastRun:    exec.ExecutedAt,
		NextRun:    next,
	}
	if exec.Status == schedule.StatusFailed {
		update.ErrorCount = cfg.ErrorCount + 1
	}
	if exec.Status != schedule.StatusSuccess {
		update.LastError = exec.Error
	}
	if err := e.Store.UpdateScheduleRun(ctx, cfg.ID, update); err != nil {
		return fmt.Errorf("update schedule bookkeeping: %w", err)
	}
	return nil
}

func (e *Executor) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Executor) logf(format string, args ...any) {
	if e != nil && e.Logf != nil {
		e.Logf(format, args...)
	}
}

func digestSubject(cfg schedule.Config, executedAt time.Time, defaultTimezone string) string {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(defaultTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = cfg.ID
	}
	return fmt.Sprintf("[Digest] %s (%s)", name, executedAt.In(loc).Format("2006-01-02"))
}

func digestBody(summary *summarize.Summary) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(summary.Text))
	if summary.Priority != "" {
		b.WriteString(fmt.Sprintf("\n\n**Priority:** %s", summary.Priority))
	}
	if len(summary.ActionItems) > 0 {
		b.WriteString("\n\n**Action items:**\n")
		for _, item := range summary.ActionItems {
			b.WriteString("- " + strings.TrimSpace(item) + "\n")
		}
	}
	if len(summary.Tags) > 0 {
		b.WriteString("\n_" + strings.Join(summary.Tags, " · ") + "_\n")
	}
	return b.String()
}

func channelAddress(cfg schedule.Config, channel string) string {
	switch channel {
	case "email":
		return cfg.Delivery.Email.Address
	case "telegram":
		return cfg.Delivery.Telegram.ChatID
	default:
		return ""
	}
}
