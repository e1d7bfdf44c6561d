package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// ComputeNextRun returns the first due instant strictly after from for the
// given recurrence rule, in UTC. It never reads the ambient clock: callers
// pass the instant they are reasoning about, which keeps the calculator
// deterministic under test.
func ComputeNextRun(cfg Config, from time.Time, defaultTimezone string) (time.Time, error) {
	if from.IsZero() {
		return time.Time{}, errors.New("from instant is required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return time.Time{}, err
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(defaultTimezone)
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := from.In(loc)

	switch cfg.Frequency {
	case FrequencyDaily:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return time.Time{}, err
		}
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(local) {
			candidate = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
		}
		return candidate.UTC(), nil

	case FrequencyWeekly:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return time.Time{}, err
		}
		allowed := make(map[int]bool, len(cfg.DaysOfWeek))
		for _, d := range cfg.DaysOfWeek {
			allowed[d] = true
		}
		for offset := 0; offset <= 7; offset++ {
			day := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, minute, 0, 0, loc)
			if !allowed[int(day.Weekday())] {
				continue
			}
			if day.After(local) {
				return day.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("no weekly slot found after %s", from.UTC().Format(time.RFC3339))

	case FrequencyMonthly:
		hour, minute, err := parseClock(cfg.Time)
		if err != nil {
			return time.Time{}, err
		}
		for monthOffset := 0; monthOffset <= 2; monthOffset++ {
			first := time.Date(local.Year(), local.Month()+time.Month(monthOffset), 1, 0, 0, 0, 0, loc)
			day := cfg.DayOfMonth
			if last := daysInMonth(first.Year(), first.Month()); day > last {
				day = last
			}
			candidate := time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, loc)
			if candidate.After(local) {
				return candidate.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("no monthly slot found after %s", from.UTC().Format(time.RFC3339))

	case FrequencyCustom:
		parser := robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor)
		sched, err := parser.Parse(cfg.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron_expr: %w", err)
		}
		next := sched.Next(local)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron_expr %q yields no future instant", cfg.CronExpr)
		}
		return next.UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unknown frequency: %q", cfg.Frequency)
	}
}

// IsDue reports whether the schedule should run at now. Paused schedules are
// never due; a zero NextRun means "never computed yet" and counts as due.
func IsDue(cfg Config, now time.Time) bool {
	if !cfg.IsActive {
		return false
	}
	if cfg.NextRun.IsZero() {
		return true
	}
	return !cfg.NextRun.After(now)
}

func loadLocation(raw string) (*time.Location, error) {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
