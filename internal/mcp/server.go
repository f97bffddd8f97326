package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/vibetest/internal/health"
	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/report"
	"github.com/joescharf/vibetest/internal/store"
)

// sessionRunner abstracts the orchestrator so tests can stand in a fake.
type sessionRunner interface {
	RunSession(ctx context.Context, opts orchestrator.Options) (models.SessionStatus, error)
}

// Server wraps the vibetest engine and exposes it as MCP tools.
type Server struct {
	store  store.Store
	orch   sessionRunner
	agg    *report.Aggregator
	scorer *health.Scorer

	defaultAgents int
}

// NewServer creates the MCP server wrapper. agg may be nil when no LLM
// is configured; the analyze tool then only serves stored reports.
func NewServer(s store.Store, orch sessionRunner, agg *report.Aggregator, defaultAgents int) *Server {
	if defaultAgents < 1 {
		defaultAgents = 3
	}
	return &Server{
		store:         s,
		orch:          orch,
		agg:           agg,
		scorer:        health.NewScorer(),
		defaultAgents: defaultAgents,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("vibetest", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.startSessionTool())
	srv.AddTool(s.sessionStatusTool())
	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.analyzeSessionTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// vibetest_start_session
func (s *Server) startSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("vibetest_start_session",
		mcp.WithDescription("Launch browser agents to test a website for UI bugs and issues. Blocks until the session drains and returns the session ID and terminal status as JSON. Follow up with vibetest_analyze_session for the consolidated bug report."),
		mcp.WithString("base_url", mcp.Required(), mcp.Description("The website URL to test")),
		mcp.WithString("start_urls", mcp.Description("Comma-separated page URLs used as exploratory starting points (default: base_url)")),
		mcp.WithString("modes", mcp.Description("Comma-separated modes to run: exploratory, user_flow, preprod (default: all)")),
		mcp.WithNumber("agents", mcp.Description("Number of concurrent browser agents (default: 3)")),
		mcp.WithString("project_id", mcp.Description("Project whose stored user flows should run in user_flow mode")),
	)
	return tool, s.handleStartSession
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	baseURL, err := request.RequireString("base_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: base_url"), nil
	}

	modes, err := models.ParseModes(request.GetString("modes", "all"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	agents := request.GetInt("agents", s.defaultAgents)
	projectID := request.GetString("project_id", "")

	var startURLs []string
	for u := range strings.SplitSeq(request.GetString("start_urls", ""), ",") {
		if u = strings.TrimSpace(u); u != "" {
			startURLs = append(startURLs, u)
		}
	}

	session := &models.Session{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Modes:     modes,
		Status:    models.SessionStatusPending,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create session: %v", err)), nil
	}

	// The tool blocks until the session drains so a follow-up
	// vibetest_analyze_session call sees finished executions.
	status, err := s.orch.RunSession(ctx, orchestrator.Options{
		SessionID:   session.ID,
		BaseURL:     baseURL,
		StartURLs:   startURLs,
		Modes:       modes,
		Concurrency: agents,
		ProjectID:   projectID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s failed: %v", session.ID, err)), nil
	}

	result := map[string]any{
		"session_id": session.ID,
		"base_url":   baseURL,
		"modes":      models.JoinModes(modes),
		"agents":     agents,
		"status":     string(status),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// vibetest_session_status
func (s *Server) sessionStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("vibetest_session_status",
		mcp.WithDescription("Get the current state of a test session: execution counts by status, pass/fail tallies, and the session health score."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by vibetest_start_session")),
	)
	return tool, s.handleSessionStatus
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	execs, _ := s.store.GetExecutionsBySession(ctx, sessionID)

	pending, running, success, errored := 0, 0, 0, 0
	passed, failed := 0, 0
	for _, e := range execs {
		switch e.Status {
		case models.ExecutionStatusPending:
			pending++
		case models.ExecutionStatusRunning:
			running++
		case models.ExecutionStatusSuccess:
			success++
		case models.ExecutionStatusError:
			errored++
		}
		if e.Passed != nil {
			if *e.Passed {
				passed++
			} else {
				failed++
			}
		}
	}

	// Issues feed the health score once a report exists.
	var issues []*models.Issue
	if rep, err := s.store.GetReportBySession(ctx, sessionID); err == nil {
		issues = rep.Issues
	}
	hscore := s.scorer.Score(execs, issues)

	sessionOut := map[string]any{
		"id":         session.ID,
		"base_url":   session.BaseURL,
		"project_id": session.ProjectID,
		"modes":      models.JoinModes(session.Modes),
		"status":     string(session.Status),
		"error":      session.Error,
		"created_at": session.CreatedAt.Format(time.RFC3339),
	}
	if session.CompletedAt != nil {
		sessionOut["completed_at"] = session.CompletedAt.Format(time.RFC3339)
	}

	result := map[string]any{
		"session": sessionOut,
		"executions": map[string]any{
			"total":   len(execs),
			"pending": pending,
			"running": running,
			"success": success,
			"error":   errored,
			"passed":  passed,
			"failed":  failed,
		},
		"health": map[string]any{
			"total":         hscore.Total,
			"pass_rate":     hscore.PassRate,
			"stability":     hscore.Stability,
			"issue_impact":  hscore.IssueImpact,
			"mode_coverage": hscore.ModeCoverage,
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// vibetest_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("vibetest_list_sessions",
		mcp.WithDescription("List test sessions, newest first. Returns a JSON array with id, base_url, modes, status, and timestamps."),
		mcp.WithString("status", mcp.Description("Status filter: pending, running, completed, failed")),
		mcp.WithString("project_id", mcp.Description("Filter by project")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default: 20)")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.SessionListFilter{
		Status:    models.SessionStatus(request.GetString("status", "")),
		ProjectID: request.GetString("project_id", ""),
		Limit:     request.GetInt("limit", 20),
	}

	sessions, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID          string `json:"id"`
		BaseURL     string `json:"base_url"`
		ProjectID   string `json:"project_id,omitempty"`
		Modes       string `json:"modes"`
		Status      string `json:"status"`
		Error       string `json:"error,omitempty"`
		CreatedAt   string `json:"created_at"`
		CompletedAt string `json:"completed_at,omitempty"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:        sess.ID,
			BaseURL:   sess.BaseURL,
			ProjectID: sess.ProjectID,
			Modes:     models.JoinModes(sess.Modes),
			Status:    string(sess.Status),
			Error:     sess.Error,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		}
		if sess.CompletedAt != nil {
			out[i].CompletedAt = sess.CompletedAt.Format(time.RFC3339)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// vibetest_analyze_session
func (s *Server) analyzeSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("vibetest_analyze_session",
		mcp.WithDescription("Get the consolidated bug report for a test session. Generates the report on first call and returns the stored one afterwards. Includes severity counts, per-issue findings, and the session duration."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by vibetest_start_session")),
	)
	return tool, s.handleAnalyzeSession
}

func (s *Server) handleAnalyzeSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	// A report is generated once per session; later calls return the
	// stored one.
	rep, err := s.store.GetReportBySession(ctx, sessionID)
	if err != nil {
		if s.agg == nil {
			return mcp.NewToolResultError("LLM not configured (set ANTHROPIC_API_KEY)"), nil
		}
		rep, err = s.agg.Summarize(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to generate report: %v", err)), nil
		}
	}

	high, medium, low := report.SeverityCounts(rep.Issues)

	type findingOut struct {
		ExecutionID string `json:"execution_id,omitempty"`
		Severity    string `json:"severity"`
		Risk        string `json:"risk"`
		Detail      string `json:"detail"`
		Advice      string `json:"advice,omitempty"`
	}

	findings := make([]findingOut, len(rep.Issues))
	for i, issue := range rep.Issues {
		findings[i] = findingOut{
			ExecutionID: issue.ExecutionID,
			Severity:    string(issue.Severity),
			Risk:        issue.Risk,
			Detail:      issue.Detail,
			Advice:      issue.Advice,
		}
	}

	result := map[string]any{
		"session_id": sessionID,
		"status":     string(session.Status),
		"summary":    rep.Summary,
		"issues": map[string]any{
			"total":  len(rep.Issues),
			"high":   high,
			"medium": medium,
			"low":    low,
		},
		"findings": findings,
	}

	if session.CompletedAt != nil {
		dur := session.CompletedAt.Sub(session.CreatedAt)
		result["duration_seconds"] = int(dur.Seconds())
		result["duration_formatted"] = formatDuration(dur)
	} else {
		result["duration_formatted"] = "unknown"
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatDuration renders a duration the way test runs are read: plain
// seconds under a minute, minutes and seconds above.
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
