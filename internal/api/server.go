package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notedigest/internal/deliver"
	"notedigest/internal/manager"
	"notedigest/internal/schedule"
	"notedigest/internal/store"
)

const defaultUserID = "default"

// Server is the HTTP surface over the store and the scheduling manager.
// Email may be nil when the channel is not configured.
type Server struct {
	Store   store.Store
	Manager *manager.Manager
	Email   *deliver.EmailSink
	Hub     *EventHub

	DefaultTimezone string
	CheckTimeout    time.Duration
	Logf            func(format string, args ...any)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/schedules", s.handleListSchedules)
		r.Post("/schedules", s.handleSaveSchedule)
		r.Get("/schedules/{id}", s.handleGetSchedule)
		r.Delete("/schedules/{id}", s.handleDeleteSchedule)
		r.Post("/schedules/{id}/run", s.handleRunSchedule)
		r.Post("/check", s.handleForceCheck)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/status/email", s.handleEmailStatus)
		if s.Hub != nil {
			r.Get("/events", s.Hub.HandleWS)
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scheduleView decorates a stored schedule with its live run state.
type scheduleView struct {
	schedule.Config
	IsExecuting bool `json:"is_executing"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.Store.ListSchedulesForUser(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]scheduleView, 0, len(schedules))
	for _, cfg := range schedules {
		views = append(views, scheduleView{Config: cfg, IsExecuting: s.isExecuting(cfg.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views})
}

func (s *Server) isExecuting(scheduleID string) bool {
	if s.Manager == nil {
		return false
	}
	return s.Manager.Tracker().IsRunning(scheduleID)
}

func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	var cfg schedule.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body: "+err.Error()))
		return
	}
	cfg.UserID = userID(r)

	now := time.Now().UTC()
	creating := strings.TrimSpace(cfg.ID) == ""
	if !creating {
		existing, err := s.Store.GetSchedule(r.Context(), cfg.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if existing.UserID != cfg.UserID {
			s.writeError(w, store.ErrNotFound)
			return
		}
		// Run bookkeeping belongs to the executor; an edit never resets it.
		cfg.RunCount = existing.RunCount
		cfg.ErrorCount = existing.ErrorCount
		cfg.LastRun = existing.LastRun
		cfg.LastError = existing.LastError
		cfg.CreatedAt = existing.CreatedAt
	}

	cfg = schedule.Normalize(cfg, now)
	if err := schedule.ValidateConfig(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	next, err := schedule.ComputeNextRun(cfg, now, s.DefaultTimezone)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	cfg.NextRun = next

	if err := s.Store.SaveSchedule(r.Context(), cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if s.Manager != nil {
		s.Manager.Wake()
	}
	status := http.StatusOK
	if creating {
		status = http.StatusCreated
	}
	writeJSON(w, status, cfg)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.UserID != userID(r) {
		s.writeError(w, store.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scheduleView{Config: cfg, IsExecuting: s.isExecuting(cfg.ID)})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteSchedule(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if s.Manager == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("scheduler is not running"))
		return
	}
	exec, err := s.Manager.ExecuteNow(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleForceCheck(w http.ResponseWriter, r *http.Request) {
	if s.Manager == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("scheduler is not running"))
		return
	}
	ctx := r.Context()
	if s.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CheckTimeout)
		defer cancel()
	}
	report, err := s.Manager.ForceCheck(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}
	executions, err := s.Store.ListExecutionsForUser(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if executions == nil {
		executions = []schedule.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleEmailStatus(w http.ResponseWriter, r *http.Request) {
	if s.Email == nil {
		writeJSON(w, http.StatusNotFound, errorBody("email channel is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, s.Email.VerifyMailbox(r.Context()))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, manager.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotReady):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError && s.Logf != nil {
		s.Logf("api: %v", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func userID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("user_id")); v != "" {
		return v
	}
	return defaultUserID
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
