package schedule

import (
	"strings"
	"testing"
	"time"
)

func TestValidateConfigWeeklyRequiresDays(t *testing.T) {
	cfg := baseConfig()
	cfg.Frequency = FrequencyWeekly
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for weekly schedule without days_of_week")
	}
	cfg.DaysOfWeek = []int{7}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for out-of-range weekday")
	}
	cfg.DaysOfWeek = []int{1, 3}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig error: %v", err)
	}
}

func TestValidateConfigMonthlyRequiresDay(t *testing.T) {
	cfg := baseConfig()
	cfg.Frequency = FrequencyMonthly
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for monthly schedule without day_of_month")
	}
	cfg.DayOfMonth = 32
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for out-of-range day_of_month")
	}
	cfg.DayOfMonth = 15
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig error: %v", err)
	}
}

func TestValidateConfigBadClock(t *testing.T) {
	cfg := baseConfig()
	for _, bad := range []string{"", "9", "25:00", "09:60", "morning"} {
		cfg.Time = bad
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("expected error for time %q", bad)
		}
	}
}

func TestValidateConfigBadTimezone(t *testing.T) {
	cfg := baseConfig()
	cfg.Timezone = "Mars/Olympus"
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cfg := Normalize(Config{UserID: " user-1 "}, now)

	if cfg.ID == "" || !strings.HasPrefix(cfg.ID, "sch-") {
		t.Fatalf("expected generated schedule id, got %q", cfg.ID)
	}
	if cfg.Name != cfg.ID {
		t.Fatalf("expected name to default to id, got %q", cfg.Name)
	}
	if cfg.UserID != "user-1" {
		t.Fatalf("expected trimmed user id, got %q", cfg.UserID)
	}
	if cfg.Frequency != FrequencyDaily || cfg.Time != "09:00" {
		t.Fatalf("expected daily 09:00 defaults, got %s %s", cfg.Frequency, cfg.Time)
	}
	if cfg.Summary.Style != "concise" || cfg.Summary.Length != "medium" || cfg.Summary.ContentDays != 1 {
		t.Fatalf("unexpected summary defaults: %+v", cfg.Summary)
	}
	if !cfg.CreatedAt.Equal(now) || !cfg.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps set to now")
	}
}

func TestNormalizeDedupesAndSortsDays(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cfg := Normalize(Config{
		UserID:     "user-1",
		Frequency:  FrequencyWeekly,
		DaysOfWeek: []int{3, 1, 3, 5, 1},
	}, now)
	want := []int{1, 3, 5}
	if len(cfg.DaysOfWeek) != len(want) {
		t.Fatalf("days = %v, want %v", cfg.DaysOfWeek, want)
	}
	for i := range want {
		if cfg.DaysOfWeek[i] != want[i] {
			t.Fatalf("days = %v, want %v", cfg.DaysOfWeek, want)
		}
	}
}

func TestNormalizePreservesCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	cfg := Normalize(Config{UserID: "user-1", CreatedAt: created}, now)
	if !cfg.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %s", cfg.CreatedAt)
	}
	if !cfg.UpdatedAt.Equal(now) {
		t.Fatalf("updated_at not advanced: %s", cfg.UpdatedAt)
	}
}

func TestEnabledChannels(t *testing.T) {
	d := DeliveryConfig{}
	if got := d.EnabledChannels(); len(got) != 0 {
		t.Fatalf("expected no channels, got %v", got)
	}
	d.Email.Enabled = true
	d.Telegram.Enabled = true
	got := d.EnabledChannels()
	if len(got) != 2 || got[0] != "email" || got[1] != "telegram" {
		t.Fatalf("channels = %v", got)
	}
}
