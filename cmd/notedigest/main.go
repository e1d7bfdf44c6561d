package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notedigest/internal/api"
	"notedigest/internal/appinfo"
	"notedigest/internal/config"
	"notedigest/internal/content"
	"notedigest/internal/deliver"
	"notedigest/internal/executor"
	"notedigest/internal/manager"
	"notedigest/internal/store"
	"notedigest/internal/summarize"
)

func main() {
	if len(os.Args) < 2 {
		if err := runServe(nil); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "run":
		err = runOnce(os.Args[2:])
	case "schedules":
		err = runSchedules(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version":
		fmt.Println(appinfo.Display())
	default:
		err = fmt.Errorf("unknown command %q (expected serve, check, run, schedules, mcp, version)", os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type deps struct {
	cfg     config.Config
	store   store.Store
	exec    *executor.Executor
	email   *deliver.EmailSink
	cleanup func()
}

func buildDeps(configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var st store.Store
	cleanup := func() {}
	switch cfg.Store.Backend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		st = rs
		cleanup = func() { _ = rs.Close() }
	default:
		fileStore, err := store.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = fileStore
	}

	summarizer, err := summarize.NewClient(summarize.Options{
		ModelType: cfg.Summarizer.ModelType,
		Model:     cfg.Summarizer.Model,
		APIKey:    cfg.Summarizer.APIKey,
		BaseURL:   cfg.Summarizer.BaseURL,
		MaxTokens: cfg.Summarizer.MaxTokens,
		Timeout:   cfg.SummarizerTimeout(),
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	sinks := make(map[string]deliver.Sink)
	var emailSink *deliver.EmailSink
	if cfg.EmailEnabled() {
		emailSink, err = deliver.NewEmailSink(cfg.Email.EmailConfig)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("email: %w", err)
		}
		sinks["email"] = emailSink
	}
	if cfg.TelegramEnabled() {
		telegramSink, err := deliver.NewTelegramSink(cfg.Telegram.BotToken)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sinks["telegram"] = telegramSink
	}

	notesClient, err := content.NewClient(cfg.Notes.BaseURL, cfg.Notes.Token)
	if err != nil {
		cleanup()
		return nil, err
	}

	exec := &executor.Executor{
		Store:           st,
		Content:         notesClient,
		Summarizer:      summarizer,
		Sinks:           sinks,
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
		RunTimeout:      cfg.ExecutionTimeout(),
		Logf:            logf,
	}
	return &deps{cfg: cfg, store: st, exec: exec, email: emailSink, cleanup: cleanup}, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	fs.Parse(args)

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := api.NewEventHub(logf)
	hub.OriginPatterns = d.cfg.Server.AllowedOrigins
	mgr, err := manager.Start(ctx, manager.Options{
		Store:         d.store,
		Executor:      d.exec,
		Observer:      hub,
		MaxTimerDelay: d.cfg.MaxTimerDelay(),
		Parallelism:   d.cfg.Scheduler.MaxConcurrent,
		Logf:          logf,
	})
	if err != nil {
		return err
	}

	srv := &api.Server{
		Store:           d.store,
		Manager:         mgr,
		Email:           d.email,
		Hub:             hub,
		DefaultTimezone: d.cfg.Scheduler.DefaultTimezone,
		CheckTimeout:    d.cfg.CheckTimeout(),
		Logf:            logf,
	}
	httpSrv := &http.Server{
		Addr:              d.cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", d.cfg.Server.Addr, "version", appinfo.Version)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	select {
	case <-mgr.Done():
	case <-shutdownCtx.Done():
	}
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	timeout := fs.Duration("timeout", 0, "how long to wait for due schedules to finish (default scheduler.check_timeout)")
	fs.Parse(args)

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()
	if *timeout <= 0 {
		*timeout = d.cfg.CheckTimeout()
	}

	mgr, err := manager.New(manager.Options{
		Store:       d.store,
		Executor:    d.exec,
		Parallelism: d.cfg.Scheduler.MaxConcurrent,
		Logf:        logf,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	report, err := mgr.ForceCheck(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fmt.Printf("checked %d schedules, %d due, %d executed, %d skipped\n",
		report.Checked, report.Due, report.Executed, report.Skipped)
	for _, msg := range report.Errors {
		fmt.Fprintln(os.Stderr, "error:", msg)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d schedule(s) failed", len(report.Errors))
	}
	return nil
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	user := fs.String("user", "default", "schedule owner")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: run [-config path] [-user id] <schedule-id>")
	}

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()

	exec, err := d.exec.Execute(context.Background(), fs.Arg(0), strings.TrimSpace(*user))
	if err != nil {
		return err
	}
	fmt.Printf("execution %s: %s\n", exec.ID, exec.Status)
	if exec.Error != "" {
		fmt.Fprintln(os.Stderr, "detail:", exec.Error)
	}
	for _, delivery := range exec.Deliveries {
		if delivery.OK {
			fmt.Printf("  %s: delivered\n", delivery.Channel)
		} else {
			fmt.Printf("  %s: %s\n", delivery.Channel, delivery.Error)
		}
	}
	if exec.Status == "failed" {
		return errors.New("execution failed")
	}
	return nil
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	user := fs.String("user", "default", "schedule owner served over MCP")
	fs.Parse(args)

	d, err := buildDeps(*configPath)
	if err != nil {
		return err
	}
	defer d.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := manager.New(manager.Options{
		Store:       d.store,
		Executor:    d.exec,
		Parallelism: d.cfg.Scheduler.MaxConcurrent,
		Logf:        logf,
	})
	if err != nil {
		return err
	}
	srv := &api.MCPServer{Store: d.store, Manager: mgr, UserID: strings.TrimSpace(*user)}
	return srv.Run(ctx)
}

func logf(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}
