package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notedigest/internal/schedule"
)

const (
	scheduleKeyPrefix = "digest:schedule:"
	userSchedulesFmt  = "digest:user:%s:schedules"
	userExecutionsFmt = "digest:user:%s:executions"
)

// RedisStore keeps each schedule as a JSON document under its own key, with
// per-user index sets and a capped per-user execution list (newest first).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) GetSchedule(ctx context.Context, id string) (schedule.Config, error) {
	want := strings.TrimSpace(id)
	if want == "" {
		return schedule.Config{}, ErrNotFound
	}
	data, err := s.client.Get(ctx, scheduleKeyPrefix+want).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return schedule.Config{}, ErrNotFound
		}
		return schedule.Config{}, transient(err)
	}
	var cfg schedule.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return schedule.Config{}, fmt.Errorf("parse schedule %s: %w", want, err)
	}
	return cfg, nil
}

func (s *RedisStore) ListSchedulesForUser(ctx context.Context, userID string) ([]schedule.Config, error) {
	ids, err := s.client.SMembers(ctx, fmt.Sprintf(userSchedulesFmt, strings.TrimSpace(userID))).Result()
	if err != nil {
		return nil, transient(err)
	}
	return s.fetchSchedules(ctx, ids)
}

func (s *RedisStore) ListAllSchedules(ctx context.Context) ([]schedule.Config, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, scheduleKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), scheduleKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, transient(err)
	}
	return s.fetchSchedules(ctx, ids)
}

func (s *RedisStore) fetchSchedules(ctx context.Context, ids []string) ([]schedule.Config, error) {
	out := make([]schedule.Config, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetSchedule(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the document; skip.
				continue
			}
			return nil, err
		}
		out = append(out, cfg)
	}
	sortSchedules(out)
	return out, nil
}

func (s *RedisStore) SaveSchedule(ctx context.Context, cfg schedule.Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errors.New("schedule id is required")
	}
	if existing, err := s.GetSchedule(ctx, cfg.ID); err == nil && !existing.CreatedAt.IsZero() {
		cfg.CreatedAt = existing.CreatedAt
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.writeSchedule(ctx, cfg)
}

func (s *RedisStore) writeSchedule(ctx context.Context, cfg schedule.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, scheduleKeyPrefix+cfg.ID, data, 0)
	pipe.SAdd(ctx, fmt.Sprintf(userSchedulesFmt, cfg.UserID), cfg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return transient(err)
	}
	return nil
}

func (s *RedisStore) UpdateScheduleRun(ctx context.Context, id string, update RunUpdate) error {
	cfg, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	// The in-flight tracking set guarantees one writer per schedule, so a
	// read-modify-write here cannot race with another executor.
	cfg.RunCount = update.RunCount
	cfg.ErrorCount = update.ErrorCount
	cfg.LastRun = update.LastRun
	cfg.LastError = update.LastError
	cfg.NextRun = update.NextRun
	cfg.UpdatedAt = time.Now().UTC()
	return s.writeSchedule(ctx, cfg)
}

func (s *RedisStore) DeleteSchedule(ctx context.Context, id string, userID string) error {
	cfg, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if cfg.UserID != strings.TrimSpace(userID) {
		return ErrNotFound
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, scheduleKeyPrefix+cfg.ID)
	pipe.SRem(ctx, fmt.Sprintf(userSchedulesFmt, cfg.UserID), cfg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return transient(err)
	}
	return nil
}

func (s *RedisStore) RecordExecution(ctx context.Context, exec schedule.Execution) error {
	if strings.TrimSpace(exec.ID) == "" {
		return errors.New("execution id is required")
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(userExecutionsFmt, exec.UserID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxExecutionsPerUser-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return transient(err)
	}
	return nil
}

func (s *RedisStore) ListExecutionsForUser(ctx context.Context, userID string, limit int) ([]schedule.Execution, error) {
	if limit <= 0 || limit > maxExecutionsPerUser {
		limit = maxExecutionsPerUser
	}
	key := fmt.Sprintf(userExecutionsFmt, strings.TrimSpace(userID))
	rows, err := s.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, transient(err)
	}
	out := make([]schedule.Execution, 0, len(rows))
	for _, row := range rows {
		var exec schedule.Execution
		if err := json.Unmarshal([]byte(row), &exec); err != nil {
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}

// transient maps redis I/O failures onto the store's not-ready condition;
// callers only need to distinguish retryable from fatal.
func transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNotReady, err)
}
