package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"notedigest/internal/schedule"
)

func runSchedules(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: schedules <list|import>")
	}
	switch args[0] {
	case "list":
		return runSchedulesList(args[1:])
	case "import":
		return runSchedulesImport(args[1:])
	default:
		return fmt.Errorf("unknown schedules command %q (expected list or import)", args[0])
	}
}

func runSchedulesList(args []string) error {
	fs := flag.NewFlagSet("schedules list", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	user := fs.String("user", "default", "schedule owner")
	fs.Parse(args)

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()

	schedules, err := d.store.ListSchedulesForUser(context.Background(), strings.TrimSpace(*user))
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Println("no schedules")
		return nil
	}
	for _, cfg := range schedules {
		state := "active"
		if !cfg.IsActive {
			state = "paused"
		}
		next := "-"
		if !cfg.NextRun.IsZero() {
			next = cfg.NextRun.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%s  %-9s %-8s next=%s runs=%d errors=%d  %s\n",
			cfg.ID, cfg.Frequency, state, next, cfg.RunCount, cfg.ErrorCount, cfg.Name)
	}
	return nil
}

// seedFile is the YAML shape accepted by `schedules import`.
type seedFile struct {
	Schedules []seedSchedule `yaml:"schedules"`
}

type seedSchedule struct {
	Name       string   `yaml:"name"`
	Frequency  string   `yaml:"frequency"`
	Time       string   `yaml:"time"`
	Timezone   string   `yaml:"timezone"`
	DaysOfWeek []int    `yaml:"days_of_week"`
	DayOfMonth int      `yaml:"day_of_month"`
	CronExpr   string   `yaml:"cron_expr"`
	Active     *bool    `yaml:"active"`
	Style      string   `yaml:"style"`
	Length     string   `yaml:"length"`
	Focus      []string `yaml:"focus"`
	Days       int      `yaml:"content_days"`

	Email    string `yaml:"email"`
	Telegram string `yaml:"telegram"`
}

func (s seedSchedule) toConfig(userID string) schedule.Config {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	cfg := schedule.Config{
		UserID:     userID,
		Name:       s.Name,
		Frequency:  schedule.Frequency(strings.TrimSpace(s.Frequency)),
		Time:       s.Time,
		Timezone:   s.Timezone,
		DaysOfWeek: s.DaysOfWeek,
		DayOfMonth: s.DayOfMonth,
		CronExpr:   s.CronExpr,
		IsActive:   active,
		Summary: schedule.SummaryOptions{
			Style:       s.Style,
			Length:      s.Length,
			Focus:       s.Focus,
			ContentDays: s.Days,
		},
	}
	if addr := strings.TrimSpace(s.Email); addr != "" {
		cfg.Delivery.Email = schedule.EmailDelivery{Enabled: true, Address: addr}
	}
	if chat := strings.TrimSpace(s.Telegram); chat != "" {
		cfg.Delivery.Telegram = schedule.TelegramDelivery{Enabled: true, ChatID: chat}
	}
	return cfg
}

func runSchedulesImport(args []string) error {
	fs := flag.NewFlagSet("schedules import", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	user := fs.String("user", "default", "schedule owner")
	file := fs.String("file", "", "YAML seed file")
	fs.Parse(args)
	if strings.TrimSpace(*file) == "" {
		return errors.New("usage: schedules import -file <seed.yaml>")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var seeds seedFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}
	if len(seeds.Schedules) == 0 {
		return fmt.Errorf("%s contains no schedules", *file)
	}

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	for i, seed := range seeds.Schedules {
		cfg := schedule.Normalize(seed.toConfig(strings.TrimSpace(*user)), now)
		if err := schedule.ValidateConfig(cfg); err != nil {
			return fmt.Errorf("schedule %d (%s): %w", i+1, seed.Name, err)
		}
		next, err := schedule.ComputeNextRun(cfg, now, d.cfg.Scheduler.DefaultTimezone)
		if err != nil {
			return fmt.Errorf("schedule %d (%s): %w", i+1, seed.Name, err)
		}
		cfg.NextRun = next
		if err := d.store.SaveSchedule(ctx, cfg); err != nil {
			return fmt.Errorf("schedule %d (%s): %w", i+1, seed.Name, err)
		}
		fmt.Printf("imported %s (%s)\n", cfg.ID, cfg.Name)
	}
	return nil
}
