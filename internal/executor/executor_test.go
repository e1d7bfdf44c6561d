package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"notedigest/internal/content"
	"notedigest/internal/deliver"
	"notedigest/internal/schedule"
	"notedigest/internal/store"
	"notedigest/internal/summarize"
)

type fakeStore struct {
	schedules  map[string]schedule.Config
	executions []schedule.Execution
	updates    map[string]store.RunUpdate
	recordErr  error
}

func newFakeStore(cfgs ...schedule.Config) *fakeStore {
	s := &fakeStore{
		schedules: make(map[string]schedule.Config),
		updates:   make(map[string]store.RunUpdate),
	}
	for _, cfg := range cfgs {
		s.schedules[cfg.ID] = cfg
	}
	return s
}

func (s *fakeStore) GetSchedule(_ context.Context, id string) (schedule.Config, error) {
	cfg, ok := s.schedules[id]
	if !ok {
		return schedule.Config{}, store.ErrNotFound
	}
	return cfg, nil
}

func (s *fakeStore) ListSchedulesForUser(context.Context, string) ([]schedule.Config, error) {
	return nil, nil
}

func (s *fakeStore) ListAllSchedules(context.Context) ([]schedule.Config, error) { return nil, nil }

func (s *fakeStore) SaveSchedule(_ context.Context, cfg schedule.Config) error {
	s.schedules[cfg.ID] = cfg
	return nil
}

func (s *fakeStore) UpdateScheduleRun(_ context.Context, id string, update store.RunUpdate) error {
	if _, ok := s.schedules[id]; !ok {
		return store.ErrNotFound
	}
	s.updates[id] = update
	return nil
}

func (s *fakeStore) DeleteSchedule(context.Context, string, string) error { return nil }

func (s *fakeStore) RecordExecution(_ context.Context, exec schedule.Execution) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.executions = append(s.executions, exec)
	return nil
}

func (s *fakeStore) ListExecutionsForUser(context.Context, string, int) ([]schedule.Execution, error) {
	return s.executions, nil
}

type fakeContent struct {
	notes []content.Note
	err   error
	days  int
}

func (f *fakeContent) FetchNotes(_ context.Context, sinceDays int) ([]content.Note, error) {
	f.days = sinceDays
	return f.notes, f.err
}

type fakeSummarizer struct {
	summary *summarize.Summary
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(context.Context, []content.Note, schedule.SummaryOptions) (*summarize.Summary, error) {
	f.calls++
	return f.summary, f.err
}

type fakeSink struct {
	channel string
	err     error
	reqs    []deliver.Request
}

func (f *fakeSink) Channel() string { return f.channel }

func (f *fakeSink) Deliver(_ context.Context, req deliver.Request) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

func testSchedule() schedule.Config {
	return schedule.Config{
		ID:        "sch-1",
		UserID:    "user-1",
		Name:      "Morning digest",
		Frequency: schedule.FrequencyDaily,
		Time:      "09:00",
		Timezone:  "UTC",
		IsActive:  true,
		Summary:   schedule.SummaryOptions{Style: "concise", Length: "medium", ContentDays: 3},
		Delivery: schedule.DeliveryConfig{
			Email: schedule.EmailDelivery{Enabled: true, Address: "u@example.com"},
		},
		RunCount:   4,
		ErrorCount: 1,
	}
}

func testExecutor(st store.Store, fc *fakeContent, fs *fakeSummarizer, sinks ...deliver.Sink) *Executor {
	m := make(map[string]deliver.Sink, len(sinks))
	for _, s := range sinks {
		m[s.Channel()] = s
	}
	return &Executor{
		Store:      st,
		Content:    fc,
		Summarizer: fs,
		Sinks:      m,
		Now:        func() time.Time { return time.Date(2026, 3, 10, 9, 0, 12, 0, time.UTC) },
	}
}

func TestExecuteSuccess(t *testing.T) {
	st := newFakeStore(testSchedule())
	fc := &fakeContent{notes: []content.Note{{ID: "n1", Title: "standup", Body: "notes"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{
		Text:        "A productive day.",
		ActionItems: []string{"ship it"},
		WordCount:   3,
	}}
	sink := &fakeSink{channel: "email"}

	exec, err := testExecutor(st, fc, fs, sink).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusSuccess {
		t.Fatalf("status = %q, want success", exec.Status)
	}
	if exec.Error != "" {
		t.Fatalf("unexpected error field %q", exec.Error)
	}
	if exec.WordCount != 3 || exec.ActionItems != 1 {
		t.Fatalf("metrics = %d words %d items", exec.WordCount, exec.ActionItems)
	}
	if fc.days != 3 {
		t.Fatalf("fetched since_days = %d, want 3", fc.days)
	}
	if len(sink.reqs) != 1 {
		t.Fatalf("sink called %d times", len(sink.reqs))
	}
	if sink.reqs[0].Address != "u@example.com" {
		t.Fatalf("delivery address = %q", sink.reqs[0].Address)
	}
	if !strings.Contains(sink.reqs[0].Markdown, "ship it") {
		t.Fatalf("body missing action items: %q", sink.reqs[0].Markdown)
	}
	if len(st.executions) != 1 {
		t.Fatalf("recorded %d executions", len(st.executions))
	}

	update := st.updates["sch-1"]
	if update.RunCount != 5 {
		t.Fatalf("run count = %d, want 5", update.RunCount)
	}
	if update.ErrorCount != 1 {
		t.Fatalf("error count = %d, want unchanged 1", update.ErrorCount)
	}
	if update.LastError != "" {
		t.Fatalf("last error should be cleared, got %q", update.LastError)
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !update.NextRun.Equal(want) {
		t.Fatalf("next run = %v, want %v", update.NextRun, want)
	}
}

func TestExecuteUnknownSchedule(t *testing.T) {
	st := newFakeStore()
	_, err := testExecutor(st, &fakeContent{}, &fakeSummarizer{}).Execute(context.Background(), "sch-x", "user-1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecuteOwnerMismatch(t *testing.T) {
	st := newFakeStore(testSchedule())
	_, err := testExecutor(st, &fakeContent{}, &fakeSummarizer{}).Execute(context.Background(), "sch-1", "user-2")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign schedule, got %v", err)
	}
	if len(st.executions) != 0 {
		t.Fatalf("no execution should be recorded")
	}
}

func TestExecuteFetchFailure(t *testing.T) {
	st := newFakeStore(testSchedule())
	fc := &fakeContent{err: errors.New("gateway timeout")}
	fs := &fakeSummarizer{}

	exec, err := testExecutor(st, fc, fs, &fakeSink{channel: "email"}).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if !strings.Contains(exec.Error, "fetch content") {
		t.Fatalf("error = %q", exec.Error)
	}
	if fs.calls != 0 {
		t.Fatalf("summarizer should not run after fetch failure")
	}

	update := st.updates["sch-1"]
	if update.RunCount != 5 || update.ErrorCount != 2 {
		t.Fatalf("counts = %d/%d, want 5/2", update.RunCount, update.ErrorCount)
	}
	if update.LastError == "" {
		t.Fatalf("last error should be recorded")
	}
	if update.NextRun.IsZero() {
		t.Fatalf("next run must advance after a failed run")
	}
}

func TestExecuteEmptyContentIsPartial(t *testing.T) {
	st := newFakeStore(testSchedule())
	fs := &fakeSummarizer{}
	sink := &fakeSink{channel: "email"}

	exec, err := testExecutor(st, &fakeContent{}, fs, sink).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusPartial {
		t.Fatalf("status = %q, want partial", exec.Status)
	}
	if exec.Error != "no content to summarize" {
		t.Fatalf("error = %q", exec.Error)
	}
	if fs.calls != 0 || len(sink.reqs) != 0 {
		t.Fatalf("summarizer and sinks must be skipped on empty content")
	}
	update := st.updates["sch-1"]
	if update.ErrorCount != 1 {
		t.Fatalf("partial run must not bump error count, got %d", update.ErrorCount)
	}
	if update.RunCount != 5 {
		t.Fatalf("run count = %d, want 5", update.RunCount)
	}
}

func TestExecuteSummarizeFailure(t *testing.T) {
	st := newFakeStore(testSchedule())
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{err: errors.New("model overloaded")}
	sink := &fakeSink{channel: "email"}

	exec, err := testExecutor(st, fc, fs, sink).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if len(sink.reqs) != 0 {
		t.Fatalf("delivery must be skipped after summarize failure")
	}
	if st.updates["sch-1"].ErrorCount != 2 {
		t.Fatalf("error count = %d, want 2", st.updates["sch-1"].ErrorCount)
	}
}

func TestExecuteMixedDeliveryIsPartial(t *testing.T) {
	cfg := testSchedule()
	cfg.Delivery.Telegram = schedule.TelegramDelivery{Enabled: true, ChatID: "42"}
	st := newFakeStore(cfg)
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{Text: "ok"}}
	email := &fakeSink{channel: "email", err: errors.New("smtp auth failed")}
	telegram := &fakeSink{channel: "telegram"}

	exec, err := testExecutor(st, fc, fs, email, telegram).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusPartial {
		t.Fatalf("status = %q, want partial", exec.Status)
	}
	if len(exec.Deliveries) != 2 {
		t.Fatalf("recorded %d delivery outcomes", len(exec.Deliveries))
	}
	var okCount int
	for _, d := range exec.Deliveries {
		if d.OK {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("ok deliveries = %d, want 1", okCount)
	}
	if !strings.Contains(exec.Error, "smtp auth failed") {
		t.Fatalf("error = %q", exec.Error)
	}
	if st.updates["sch-1"].ErrorCount != 1 {
		t.Fatalf("partial run must not bump error count")
	}
}

func TestExecuteAllDeliveryFailed(t *testing.T) {
	cfg := testSchedule()
	cfg.Delivery.Telegram = schedule.TelegramDelivery{Enabled: true, ChatID: "42"}
	st := newFakeStore(cfg)
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{Text: "ok"}}
	email := &fakeSink{channel: "email", err: errors.New("smtp down")}
	telegram := &fakeSink{channel: "telegram", err: errors.New("bot blocked")}

	exec, err := testExecutor(st, fc, fs, email, telegram).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if st.updates["sch-1"].ErrorCount != 2 {
		t.Fatalf("error count = %d, want 2", st.updates["sch-1"].ErrorCount)
	}
}

func TestExecuteNoChannelsEnabled(t *testing.T) {
	cfg := testSchedule()
	cfg.Delivery = schedule.DeliveryConfig{}
	st := newFakeStore(cfg)
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{Text: "ok"}}

	exec, err := testExecutor(st, fc, fs).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if exec.Error != "no delivery channel enabled" {
		t.Fatalf("error = %q", exec.Error)
	}
}

func TestExecuteMissingSinkIsDeliveryFailure(t *testing.T) {
	st := newFakeStore(testSchedule())
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{Text: "ok"}}

	exec, err := testExecutor(st, fc, fs).Execute(context.Background(), "sch-1", "user-1")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if exec.Status != schedule.StatusFailed {
		t.Fatalf("status = %q, want failed", exec.Status)
	}
	if len(exec.Deliveries) != 1 || exec.Deliveries[0].OK {
		t.Fatalf("expected one failed delivery outcome, got %+v", exec.Deliveries)
	}
	if !strings.Contains(exec.Deliveries[0].Error, "not configured") {
		t.Fatalf("outcome error = %q", exec.Deliveries[0].Error)
	}
}

func TestExecuteRecordFailurePropagates(t *testing.T) {
	st := newFakeStore(testSchedule())
	st.recordErr = errors.New("disk full")
	fc := &fakeContent{notes: []content.Note{{ID: "n1"}}}
	fs := &fakeSummarizer{summary: &summarize.Summary{Text: "ok"}}

	exec, err := testExecutor(st, fc, fs, &fakeSink{channel: "email"}).Execute(context.Background(), "sch-1", "user-1")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	if exec == nil {
		t.Fatalf("execution record should still be returned")
	}
}

func TestDigestSubjectUsesScheduleTimezone(t *testing.T) {
	cfg := testSchedule()
	cfg.Timezone = "Asia/Tokyo"
	// 23:30 UTC on March 10 is already March 11 in Tokyo.
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	subject := digestSubject(cfg, at, "")
	if !strings.Contains(subject, "2026-03-11") {
		t.Fatalf("subject = %q, want Tokyo date", subject)
	}
	if !strings.Contains(subject, "Morning digest") {
		t.Fatalf("subject = %q, want schedule name", subject)
	}
}
