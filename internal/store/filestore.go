package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"notedigest/internal/schedule"
)

const (
	documentVersion = 1

	// Executions kept per user before old records are pruned.
	maxExecutionsPerUser = 200
)

type document struct {
	Version    int                  `json:"version"`
	Schedules  []schedule.Config    `json:"schedules"`
	Executions []schedule.Execution `json:"executions"`
}

// FileStore keeps all documents in one JSON file guarded by a sibling .lock
// file, so concurrent processes (CLI run vs. serving daemon) stay consistent.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("store path is required")
	}
	return &FileStore{path: p}, nil
}

func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *FileStore) GetSchedule(ctx context.Context, id string) (schedule.Config, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Config{}, err
	}
	doc, err := s.load()
	if err != nil {
		return schedule.Config{}, err
	}
	want := strings.TrimSpace(id)
	for _, cfg := range doc.Schedules {
		if cfg.ID == want {
			return cfg, nil
		}
	}
	return schedule.Config{}, ErrNotFound
}

func (s *FileStore) ListSchedulesForUser(ctx context.Context, userID string) ([]schedule.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(userID)
	out := make([]schedule.Config, 0)
	for _, cfg := range doc.Schedules {
		if cfg.UserID == want {
			out = append(out, cfg)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (s *FileStore) ListAllSchedules(ctx context.Context) ([]schedule.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := append([]schedule.Config(nil), doc.Schedules...)
	sortSchedules(out)
	return out, nil
}

func (s *FileStore) SaveSchedule(ctx context.Context, cfg schedule.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return errors.New("schedule id is required")
	}
	return s.withLock(func(doc *document) error {
		for i := range doc.Schedules {
			if doc.Schedules[i].ID == cfg.ID {
				if doc.Schedules[i].CreatedAt.IsZero() {
					doc.Schedules[i].CreatedAt = cfg.CreatedAt
				}
				cfg.CreatedAt = doc.Schedules[i].CreatedAt
				doc.Schedules[i] = cfg
				return nil
			}
		}
		doc.Schedules = append(doc.Schedules, cfg)
		return nil
	})
}

func (s *FileStore) UpdateScheduleRun(ctx context.Context, id string, update RunUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("schedule id is required")
	}
	found := false
	err := s.withLock(func(doc *document) error {
		for i := range doc.Schedules {
			if doc.Schedules[i].ID != want {
				continue
			}
			doc.Schedules[i].RunCount = update.RunCount
			doc.Schedules[i].ErrorCount = update.ErrorCount
			doc.Schedules[i].LastRun = update.LastRun
			doc.Schedules[i].LastError = update.LastError
			doc.Schedules[i].NextRun = update.NextRun
			doc.Schedules[i].UpdatedAt = time.Now().UTC()
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (s *FileStore) DeleteSchedule(ctx context.Context, id string, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	owner := strings.TrimSpace(userID)
	found := false
	err := s.withLock(func(doc *document) error {
		kept := doc.Schedules[:0]
		for _, cfg := range doc.Schedules {
			if cfg.ID == want && cfg.UserID == owner {
				found = true
				continue
			}
			kept = append(kept, cfg)
		}
		doc.Schedules = kept
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (s *FileStore) RecordExecution(ctx context.Context, exec schedule.Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(exec.ID) == "" {
		return errors.New("execution id is required")
	}
	return s.withLock(func(doc *document) error {
		doc.Executions = append(doc.Executions, exec)
		doc.Executions = pruneExecutions(doc.Executions, exec.UserID)
		return nil
	})
}

func (s *FileStore) ListExecutionsForUser(ctx context.Context, userID string, limit int) ([]schedule.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(userID)
	out := make([]schedule.Execution, 0)
	for _, exec := range doc.Executions {
		if exec.UserID == want {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutedAt.After(out[j].ExecutedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{Version: documentVersion}, nil
		}
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse schedule store: %w", err)
	}
	if doc.Version <= 0 {
		doc.Version = documentVersion
	}
	return doc, nil
}

func (s *FileStore) withLock(fn func(doc *document) error) error {
	lockPath := s.path + ".lock"
	return withFileLock(lockPath, 5*time.Second, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}
		doc.Version = documentVersion
		return writeJSONAtomic(s.path, doc)
	})
}

func sortSchedules(list []schedule.Config) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func pruneExecutions(list []schedule.Execution, userID string) []schedule.Execution {
	count := 0
	for _, exec := range list {
		if exec.UserID == userID {
			count++
		}
	}
	if count <= maxExecutionsPerUser {
		return list
	}
	drop := count - maxExecutionsPerUser
	kept := list[:0]
	for _, exec := range list {
		if drop > 0 && exec.UserID == userID {
			drop--
			continue
		}
		kept = append(kept, exec)
	}
	return kept
}

func writeJSONAtomic(path string, payload any) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UTC().UnixNano())
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func withFileLock(lockPath string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	start := time.Now().UTC()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		if timeout > 0 && time.Since(start) > timeout {
			// Lock contention is transient: surface it as not-ready so callers
			// treat it like any other warming-up backing store.
			return fmt.Errorf("%w: lock held too long: %s", ErrNotReady, lockPath)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer os.Remove(lockPath)
	return fn()
}
