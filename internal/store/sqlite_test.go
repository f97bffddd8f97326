package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/vibetest/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession(t *testing.T, s *SQLiteStore) *models.Session {
	t.Helper()
	session := &models.Session{
		BaseURL: "https://example.com",
		Modes:   []models.Mode{models.ModeExploratory},
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Sessions ---

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &models.Session{
		BaseURL:   "https://example.com",
		ProjectID: "proj-1",
		Modes:     []models.Mode{models.ModeExploratory, models.ModePreprod},
	}
	err := s.CreateSession(ctx, session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.False(t, session.CreatedAt.IsZero())

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.BaseURL)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, []models.Mode{models.ModeExploratory, models.ModePreprod}, got.Modes)
	assert.Nil(t, got.CompletedAt)

	err = s.MarkSessionRunning(ctx, session.ID)
	require.NoError(t, err)

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusRunning, got.Status)

	err = s.CompleteSession(ctx, session.ID)
	require.NoError(t, err)

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestFailSession_CapturesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	err := s.FailSession(ctx, session.ID, "store unavailable")
	require.NoError(t, err)

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, got.Status)
	assert.Equal(t, "store unavailable", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestTerminalSessionStaysTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	require.NoError(t, s.CompleteSession(ctx, session.ID))

	// Terminal statuses cannot be overwritten
	assert.Error(t, s.FailSession(ctx, session.ID, "late failure"))
	assert.Error(t, s.MarkSessionRunning(ctx, session.ID))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListSessions_FilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		newTestSession(t, s)
	}
	failed := newTestSession(t, s)
	require.NoError(t, s.FailSession(ctx, failed.ID, "boom"))

	all, err := s.ListSessions(ctx, SessionListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	failedOnly, err := s.ListSessions(ctx, SessionListFilter{Status: models.SessionStatusFailed})
	require.NoError(t, err)
	require.Len(t, failedOnly, 1)
	assert.Equal(t, failed.ID, failedOnly[0].ID)

	limited, err := s.ListSessions(ctx, SessionListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSessionMessages_AppendOnlyOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	require.NoError(t, s.AddSessionMessage(ctx, session.ID, "starting exploratory mode"))
	require.NoError(t, s.AddSessionMessage(ctx, session.ID, "scouted 6 tasks"))
	require.NoError(t, s.AddSessionMessage(ctx, session.ID, "exploratory mode complete"))

	messages, err := s.ListSessionMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "starting exploratory mode", messages[0].Body)
	assert.Equal(t, "scouted 6 tasks", messages[1].Body)
	assert.Equal(t, "exploratory mode complete", messages[2].Body)
	assert.Less(t, messages[0].Seq, messages[1].Seq)
}

// --- Executions ---

func TestExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	exec := &models.Execution{
		SessionID: session.ID,
		Task:      "Navigate to https://example.com and test the login form",
		Tag:       models.ModeUserFlow,
	}
	err := s.CreateExecution(ctx, exec)
	require.NoError(t, err)
	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, models.ExecutionStatusPending, exec.Status)

	err = s.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionStatusRunning)
	require.NoError(t, err)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Passed)

	err = s.SaveExecutionResult(ctx, exec.ID, true, "login form works", "")
	require.NoError(t, err)
	err = s.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionStatusSuccess)
	require.NoError(t, err)

	got, err = s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, got.Status)
	require.NotNil(t, got.Passed)
	assert.True(t, *got.Passed)
	assert.Equal(t, "login form works", got.Message)
	assert.NotNil(t, got.CompletedAt)
}

func TestSaveExecutionScreenshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	exec := &models.Execution{SessionID: session.ID, Task: "check header"}
	require.NoError(t, s.CreateExecution(ctx, exec))

	err := s.SaveExecutionScreenshot(ctx, exec.ID, "/tmp/shots/step-3.png")
	require.NoError(t, err)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shots/step-3.png", got.Screenshot)
}

func TestGetExecutionsBySession_OrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	tasks := []string{"task a", "task b", "task c"}
	for _, task := range tasks {
		require.NoError(t, s.CreateExecution(ctx, &models.Execution{SessionID: session.ID, Task: task}))
	}

	// Executions for a different session must not leak in
	other := newTestSession(t, s)
	require.NoError(t, s.CreateExecution(ctx, &models.Execution{SessionID: other.ID, Task: "other"}))

	execs, err := s.GetExecutionsBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	for i, exec := range execs {
		assert.Equal(t, tasks[i], exec.Task)
		assert.Equal(t, session.ID, exec.SessionID)
	}
}

func TestUpdateExecutionStatus_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateExecutionStatus(context.Background(), "nonexistent", models.ExecutionStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Reports ---

func TestCreateAndGetReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	exec := &models.Execution{SessionID: session.ID, Task: "check signup"}
	require.NoError(t, s.CreateExecution(ctx, exec))

	report := &models.Report{
		SessionID: session.ID,
		Summary:   "1 of 3 checks failed",
		Issues: []*models.Issue{
			{ExecutionID: exec.ID, Severity: models.SeverityHigh, Risk: "signup broken", Detail: "submit returns 500", Advice: "check the form handler"},
			{ExecutionID: exec.ID, Severity: models.SeverityLow, Risk: "slow page load", Detail: "took 4s", Advice: "profile the landing page"},
		},
	}
	err := s.CreateReport(ctx, report)
	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)

	got, err := s.GetReportBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 of 3 checks failed", got.Summary)
	require.Len(t, got.Issues, 2)
	assert.Equal(t, models.SeverityHigh, got.Issues[0].Severity)
	assert.Equal(t, "signup broken", got.Issues[0].Risk)
	assert.Equal(t, exec.ID, got.Issues[0].ExecutionID)
	assert.Equal(t, models.SeverityLow, got.Issues[1].Severity)
}

func TestCreateReport_OnePerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := newTestSession(t, s)

	require.NoError(t, s.CreateReport(ctx, &models.Report{SessionID: session.ID, Summary: "first"}))

	err := s.CreateReport(ctx, &models.Report{SessionID: session.ID, Summary: "second"})
	assert.Error(t, err, "session_id is unique")
}

func TestGetReportBySession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetReportBySession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Project tests ---

func TestProjectTests_AddListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := &models.ProjectTest{ProjectID: "proj-1", Description: "Test the checkout flow"}
	t2 := &models.ProjectTest{ProjectID: "proj-1", Description: "Test the search bar"}
	require.NoError(t, s.AddProjectTest(ctx, t1))
	require.NoError(t, s.AddProjectTest(ctx, t2))
	assert.Equal(t, models.TestKindWebsite, t1.Kind)
	assert.Less(t, t1.Position, t2.Position)

	tests, err := s.ListProjectTests(ctx, "proj-1", models.TestKindWebsite)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "Test the checkout flow", tests[0].Description)

	require.NoError(t, s.DeleteProjectTest(ctx, t1.ID))
	tests, err = s.ListProjectTests(ctx, "proj-1", models.TestKindWebsite)
	require.NoError(t, err)
	assert.Len(t, tests, 1)
}

func TestGetTestsForProject_IncludesSeededChecklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddProjectTest(ctx, &models.ProjectTest{ProjectID: "proj-1", Description: "Test login"}))

	got, err := s.GetTestsForProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, got.WebsiteSpecific, 1)
	// The preprod checklist is seeded by migration and global
	require.Len(t, got.Checklist, 6)
	for _, item := range got.Checklist {
		assert.Equal(t, models.TestKindChecklist, item.Kind)
		assert.Empty(t, item.ProjectID)
	}

	// A project with no stored flows still gets the checklist
	got, err = s.GetTestsForProject(ctx, "proj-2")
	require.NoError(t, err)
	assert.Empty(t, got.WebsiteSpecific)
	assert.Len(t, got.Checklist, 6)
}

// --- Schedules ---

func TestScheduleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sch := &models.Schedule{
		Name:    "nightly-smoke",
		Cron:    "0 2 * * *",
		BaseURL: "https://staging.example.com",
		Modes:   []models.Mode{models.ModeExploratory, models.ModePreprod},
		Agents:  3,
		Enabled: true,
	}
	err := s.CreateSchedule(ctx, sch)
	require.NoError(t, err)
	assert.NotEmpty(t, sch.ID)

	schedules, err := s.ListSchedules(ctx, false)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	got := schedules[0]
	assert.Equal(t, "nightly-smoke", got.Name)
	assert.Equal(t, "0 2 * * *", got.Cron)
	assert.Equal(t, []models.Mode{models.ModeExploratory, models.ModePreprod}, got.Modes)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)

	require.NoError(t, s.MarkScheduleRun(ctx, sch.ID))
	schedules, err = s.ListSchedules(ctx, true)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.NotNil(t, schedules[0].LastRunAt)

	require.NoError(t, s.DeleteSchedule(ctx, sch.ID))
	schedules, err = s.ListSchedules(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestScheduleName_Unique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sch := &models.Schedule{Name: "nightly", Cron: "0 2 * * *", BaseURL: "https://example.com", Modes: []models.Mode{models.ModeExploratory}, Agents: 1, Enabled: true}
	require.NoError(t, s.CreateSchedule(ctx, sch))

	dup := &models.Schedule{Name: "nightly", Cron: "0 3 * * *", BaseURL: "https://example.com", Modes: []models.Mode{models.ModeExploratory}, Agents: 1, Enabled: true}
	assert.Error(t, s.CreateSchedule(ctx, dup))
}
