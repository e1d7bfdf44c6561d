package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidateConfig checks a normalized config for the fields the scheduling core
// depends on. Presentation-level validation (address formats and the like)
// stays with the dashboard.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return errors.New("user_id is required")
	}
	if cfg.Frequency != FrequencyCustom {
		if _, _, err := parseClock(cfg.Time); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := loadLocation(tz); err != nil {
			return err
		}
	}
	switch cfg.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if len(cfg.DaysOfWeek) == 0 {
			return errors.New("days_of_week is required for weekly schedules")
		}
		for _, d := range cfg.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("days_of_week entry out of range: %d", d)
			}
		}
	case FrequencyMonthly:
		if cfg.DayOfMonth < 1 || cfg.DayOfMonth > 31 {
			return fmt.Errorf("day_of_month out of range: %d", cfg.DayOfMonth)
		}
	case FrequencyCustom:
		if strings.TrimSpace(cfg.CronExpr) == "" {
			return errors.New("cron_expr is required for custom schedules")
		}
	default:
		return fmt.Errorf("unknown frequency: %q", cfg.Frequency)
	}
	return nil
}

// Normalize trims and defaults a config before it is validated or persisted.
func Normalize(cfg Config, now time.Time) Config {
	out := cfg
	if strings.TrimSpace(out.ID) == "" {
		out.ID = GenerateScheduleID()
	}
	out.ID = strings.TrimSpace(out.ID)
	out.UserID = strings.TrimSpace(out.UserID)
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		out.Name = out.ID
	}
	out.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(out.Frequency))))
	if out.Frequency == "" {
		out.Frequency = FrequencyDaily
	}
	out.Time = strings.TrimSpace(out.Time)
	if out.Time == "" && out.Frequency != FrequencyCustom {
		out.Time = "09:00"
	}
	out.Timezone = strings.TrimSpace(out.Timezone)
	out.CronExpr = strings.TrimSpace(out.CronExpr)
	out.DaysOfWeek = normalizeDays(out.DaysOfWeek)
	out.Summary = normalizeSummary(out.Summary)
	out.Delivery.Email.Address = strings.ToLower(strings.TrimSpace(out.Delivery.Email.Address))
	out.Delivery.Telegram.ChatID = strings.TrimSpace(out.Delivery.Telegram.ChatID)
	out.LastError = strings.TrimSpace(out.LastError)
	if out.RunCount < 0 {
		out.RunCount = 0
	}
	if out.ErrorCount < 0 {
		out.ErrorCount = 0
	}
	now = now.UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.UpdatedAt = now
	return out
}

func normalizeDays(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func normalizeSummary(opts SummaryOptions) SummaryOptions {
	out := opts
	out.Style = strings.ToLower(strings.TrimSpace(out.Style))
	if out.Style == "" {
		out.Style = "concise"
	}
	out.Length = strings.ToLower(strings.TrimSpace(out.Length))
	if out.Length == "" {
		out.Length = "medium"
	}
	focus := make([]string, 0, len(out.Focus))
	for _, f := range out.Focus {
		f = strings.TrimSpace(f)
		if f != "" {
			focus = append(focus, f)
		}
	}
	if len(focus) == 0 {
		focus = nil
	}
	out.Focus = focus
	if out.ContentDays <= 0 {
		out.ContentDays = 1
	}
	return out
}

func GenerateScheduleID() string {
	return "sch-" + uuid.NewString()
}

func GenerateExecutionID() string {
	return "run-" + uuid.NewString()
}

func parseClock(raw string) (hour int, minute int, err error) {
	text := strings.TrimSpace(raw)
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse time %q: expected hh:mm", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("parse time %q: bad hour", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("parse time %q: bad minute", raw)
	}
	return hour, minute, nil
}
