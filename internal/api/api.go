package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/vibetest/internal/health"
	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/report"
	"github.com/joescharf/vibetest/internal/schedule"
	"github.com/joescharf/vibetest/internal/store"
)

type sessionRunner interface {
	RunSession(ctx context.Context, opts orchestrator.Options) (models.SessionStatus, error)
}

// Server provides the REST API handlers.
type Server struct {
	store         store.Store
	runner        sessionRunner
	agg           *report.Aggregator
	scorer        *health.Scorer
	hub           *eventHub
	defaultAgents int
}

// NewServer creates a new API server.
// The aggregator may be nil if no API key is configured.
func NewServer(s store.Store, runner sessionRunner, agg *report.Aggregator, defaultAgents int) *Server {
	if defaultAgents < 1 {
		defaultAgents = 3
	}
	return &Server{
		store:         s,
		runner:        runner,
		agg:           agg,
		scorer:        health.NewScorer(),
		hub:           newEventHub(),
		defaultAgents: defaultAgents,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.healthCheck)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/executions", s.listSessionExecutions)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.listSessionMessages)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.sessionEvents)
	mux.HandleFunc("GET /api/v1/sessions/{id}/health", s.sessionHealth)
	mux.HandleFunc("POST /api/v1/sessions/{id}/report", s.generateReport)
	mux.HandleFunc("GET /api/v1/sessions/{id}/report", s.getReport)

	mux.HandleFunc("GET /api/v1/projects/{projectID}/tests", s.listProjectTests)
	mux.HandleFunc("POST /api/v1/projects/{projectID}/tests", s.createProjectTest)
	mux.HandleFunc("DELETE /api/v1/tests/{id}", s.deleteProjectTest)

	mux.HandleFunc("GET /api/v1/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/v1/schedules", s.createSchedule)
	mux.HandleFunc("DELETE /api/v1/schedules/{id}", s.deleteSchedule)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionListFilter{
		Status:    models.SessionStatus(r.URL.Query().Get("status")),
		ProjectID: r.URL.Query().Get("project_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	BaseURL   string   `json:"base_url"`
	StartURLs []string `json:"start_urls,omitempty"`
	Modes     []string `json:"modes,omitempty"`
	Agents    int      `json:"agents,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}

	modes, err := models.ParseModes(strings.Join(req.Modes, ","))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agents := req.Agents
	if agents < 1 {
		agents = s.defaultAgents
	}

	session := &models.Session{
		BaseURL:   req.BaseURL,
		ProjectID: req.ProjectID,
		Modes:     modes,
		Status:    models.SessionStatusPending,
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The session outlives this request; detach it from the
	// request's context.
	go func() {
		_, err := s.runner.RunSession(context.Background(), orchestrator.Options{
			SessionID:   session.ID,
			BaseURL:     session.BaseURL,
			StartURLs:   req.StartURLs,
			Modes:       session.Modes,
			Concurrency: agents,
			ProjectID:   session.ProjectID,
		})
		if err != nil {
			slog.Error("session run failed", "session", session.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) listSessionExecutions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	execs, err := s.store.GetExecutionsBySession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) listSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, err := s.store.ListSessionMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) sessionHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	execs, err := s.store.GetExecutionsBySession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var issues []*models.Issue
	if rep, err := s.store.GetReportBySession(r.Context(), id); err == nil {
		issues = rep.Issues
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"health":     s.scorer.Score(execs, issues),
	})
}

// --- Reports ---

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	if s.agg == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A report is generated once per session; regenerating returns
	// the stored one.
	if existing, err := s.store.GetReportBySession(r.Context(), id); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	rep, err := s.agg.Summarize(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "no executions recorded") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rep, err := s.store.GetReportBySession(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// --- Project tests ---

func (s *Server) listProjectTests(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	tests, err := s.store.GetTestsForProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (s *Server) createProjectTest(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	var test models.ProjectTest
	if err := json.NewDecoder(r.Body).Decode(&test); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if test.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	test.ProjectID = projectID
	if test.Kind == "" {
		test.Kind = models.TestKindWebsite
	}
	// Checklist items are global; they live under an empty project id.
	if test.Kind == models.TestKindChecklist {
		test.ProjectID = ""
	}

	if err := s.store.AddProjectTest(r.Context(), &test); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, test)
}

func (s *Server) deleteProjectTest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteProjectTest(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Schedules ---

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

type createScheduleRequest struct {
	Name      string   `json:"name"`
	Cron      string   `json:"cron"`
	BaseURL   string   `json:"base_url"`
	Modes     []string `json:"modes,omitempty"`
	Agents    int      `json:"agents,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Cron == "" || req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "name, cron, and base_url are required")
		return
	}
	if _, err := schedule.ParseCron(req.Cron); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}

	modes, err := models.ParseModes(strings.Join(req.Modes, ","))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agents := req.Agents
	if agents < 1 {
		agents = s.defaultAgents
	}

	sched := &models.Schedule{
		Name:      req.Name,
		Cron:      req.Cron,
		BaseURL:   req.BaseURL,
		Modes:     modes,
		Agents:    agents,
		ProjectID: req.ProjectID,
		Enabled:   true,
	}
	if err := s.store.CreateSchedule(r.Context(), sched); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteSchedule(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
