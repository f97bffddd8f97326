package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/store"
)

type stubRunner struct {
	mu   sync.Mutex
	opts []orchestrator.Options
	ran  chan orchestrator.Options
}

func newStubRunner() *stubRunner {
	return &stubRunner{ran: make(chan orchestrator.Options, 8)}
}

func (r *stubRunner) RunSession(ctx context.Context, opts orchestrator.Options) (models.SessionStatus, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	r.ran <- opts
	return models.SessionStatusCompleted, nil
}

func setupTestServer(t *testing.T) (*Server, store.Store, *stubRunner) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	runner := newStubRunner()
	srv := NewServer(s, runner, nil, 3)

	return srv, s, runner
}

func TestHealthCheck(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListSessions_Empty(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var sessions []*models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Nil(t, sessions)
}

func TestCreateSession_API(t *testing.T) {
	srv, _, runner := setupTestServer(t)
	router := srv.Router()

	body := `{"base_url":"https://example.com","modes":["exploratory"],"agents":2,"start_urls":["https://example.com/shop"]}`
	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var created models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "https://example.com", created.BaseURL)
	assert.Equal(t, models.SessionStatusPending, created.Status)

	select {
	case opts := <-runner.ran:
		assert.Equal(t, created.ID, opts.SessionID)
		assert.Equal(t, 2, opts.Concurrency)
		assert.Equal(t, []models.Mode{models.ModeExploratory}, opts.Modes)
		assert.Equal(t, []string{"https://example.com/shop"}, opts.StartURLs)
	case <-time.After(time.Second):
		t.Fatal("session was never launched")
	}
}

func TestCreateSession_DefaultsModesAndAgents(t *testing.T) {
	srv, _, runner := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(`{"base_url":"https://example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case opts := <-runner.ran:
		assert.Equal(t, models.AllModes, opts.Modes)
		assert.Equal(t, 3, opts.Concurrency)
	case <-time.After(time.Second):
		t.Fatal("session was never launched")
	}
}

func TestCreateSession_Validation(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	tests := []struct {
		name string
		body string
	}{
		{"missing base_url", `{"modes":["exploratory"]}`},
		{"unknown mode", `{"base_url":"https://example.com","modes":["chaos"]}`},
		{"invalid JSON", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/sessions/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionResources_API(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	session := &models.Session{BaseURL: "https://example.com", Modes: models.AllModes}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NoError(t, s.AddSessionMessage(ctx, session.ID, "exploratory: scouting 1 starting URL(s)"))

	exec := &models.Execution{SessionID: session.ID, Task: "check header", Tag: models.ModeExploratory}
	require.NoError(t, s.CreateExecution(ctx, exec))

	// Get
	req := httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Executions
	req = httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/executions", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var execs []*models.Execution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &execs))
	require.Len(t, execs, 1)
	assert.Equal(t, "check header", execs[0].Task)

	// Messages
	req = httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/messages", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var messages []*models.SessionMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Body, "scouting")

	// Health
	req = httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/health", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var healthBody map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &healthBody))
	assert.Equal(t, session.ID, healthBody["session_id"])
	_, hasHealth := healthBody["health"]
	assert.True(t, hasHealth, "should have health field")
}

func TestGenerateReport_NoLLM(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	session := &models.Session{BaseURL: "https://example.com", Modes: models.AllModes}
	require.NoError(t, s.CreateSession(ctx, session))

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+session.ID+"/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetReport_API(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	// Not found first
	req := httptest.NewRequest("GET", "/api/v1/sessions/nonexistent/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	session := &models.Session{BaseURL: "https://example.com", Modes: models.AllModes}
	require.NoError(t, s.CreateSession(ctx, session))
	rep := &models.Report{
		SessionID: session.ID,
		Summary:   "All clear.",
		Issues:    []*models.Issue{{Severity: models.SeverityLow, Risk: "polish", Detail: "footer link 404s"}},
	}
	require.NoError(t, s.CreateReport(ctx, rep))

	req = httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/report", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var got models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "All clear.", got.Summary)
	require.Len(t, got.Issues, 1)
}

func TestProjectTests_API(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	// Create
	body := `{"description":"log in with valid credentials"}`
	req := httptest.NewRequest("POST", "/api/v1/projects/proj-1/tests", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	var created models.ProjectTest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "proj-1", created.ProjectID)
	assert.Equal(t, models.TestKindWebsite, created.Kind)
	assert.NotEmpty(t, created.ID)

	// List includes the new flow plus the seeded checklist
	req = httptest.NewRequest("GET", "/api/v1/projects/proj-1/tests", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var tests store.ProjectTests
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tests))
	require.Len(t, tests.WebsiteSpecific, 1)
	assert.NotEmpty(t, tests.Checklist, "global checklist should be present")

	// Delete
	req = httptest.NewRequest("DELETE", "/api/v1/tests/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest("DELETE", "/api/v1/tests/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateProjectTest_RequiresDescription(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/projects/proj-1/tests", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchedules_API(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	// Invalid cron rejected
	bad := `{"name":"nightly","cron":"whenever","base_url":"https://example.com"}`
	req := httptest.NewRequest("POST", "/api/v1/schedules", bytes.NewBufferString(bad))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Create
	body := `{"name":"nightly","cron":"0 2 * * *","base_url":"https://example.com","modes":["exploratory","preprod"]}`
	req = httptest.NewRequest("POST", "/api/v1/schedules", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	var created models.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)
	assert.Equal(t, 3, created.Agents, "agents should default")

	// List
	req = httptest.NewRequest("GET", "/api/v1/schedules", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var schedules []*models.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schedules))
	assert.Len(t, schedules, 1)

	// Delete
	req = httptest.NewRequest("DELETE", "/api/v1/schedules/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORS(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("OPTIONS", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionEvents_ReplayAndLive(t *testing.T) {
	srv, s, _ := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	session := &models.Session{BaseURL: "https://example.com", Modes: models.AllModes}
	require.NoError(t, s.CreateSession(ctx, session))
	require.NoError(t, s.AddSessionMessage(ctx, session.ID, "persisted message"))

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v1/sessions/"+session.ID+"/events", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()

	// Let the replay finish and the subscription register, then push
	// a live event.
	time.Sleep(50 * time.Millisecond)
	srv.Publish(session.ID, "live message")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event stream did not close on disconnect")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "persisted message")
	assert.Contains(t, body, "live message")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}

func TestEventHub_FiltersBySession(t *testing.T) {
	hub := newEventHub()

	chA := hub.subscribe("sess-a")
	chB := hub.subscribe("sess-b")
	defer hub.unsubscribe(chA)
	defer hub.unsubscribe(chB)

	hub.publish(sessionEvent{SessionID: "sess-a", Body: "only for a"})

	select {
	case ev := <-chA:
		assert.Equal(t, "only for a", ev.Body)
	case <-time.After(time.Second):
		t.Fatal("subscriber for sess-a got nothing")
	}
	assert.Empty(t, chB, "subscriber for sess-b must not see sess-a events")
}

func TestEventHub_DropsSlowConsumers(t *testing.T) {
	hub := newEventHub()
	ch := hub.subscribe("sess-a")

	// Fill the buffer and push one more.
	for range 17 {
		hub.publish(sessionEvent{SessionID: "sess-a", Body: "x"})
	}

	_, open := <-ch
	for open {
		_, open = <-ch
	}
	// Channel closed: the hub dropped the consumer instead of
	// blocking the publisher.
	hub.unsubscribe(ch) // no-op, must not panic
}
