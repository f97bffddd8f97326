package store

import (
	"context"

	"github.com/joescharf/vibetest/internal/models"
)

// SessionListFilter specifies filters for listing sessions.
type SessionListFilter struct {
	Status    models.SessionStatus
	ProjectID string
	Limit     int
}

// ProjectTests groups the stored task descriptions relevant to one
// project: its user-defined flows plus the global preprod checklist.
type ProjectTests struct {
	WebsiteSpecific []*models.ProjectTest
	Checklist       []*models.ProjectTest
}

// Store defines the persistence interface for vibetest.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error)
	AddSessionMessage(ctx context.Context, sessionID, body string) error
	ListSessionMessages(ctx context.Context, sessionID string) ([]*models.SessionMessage, error)
	MarkSessionRunning(ctx context.Context, id string) error
	CompleteSession(ctx context.Context, id string) error
	FailSession(ctx context.Context, id, errMsg string) error

	// Executions
	CreateExecution(ctx context.Context, exec *models.Execution) error
	GetExecution(ctx context.Context, id string) (*models.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus) error
	SaveExecutionResult(ctx context.Context, id string, passed bool, message, errText string) error
	SaveExecutionScreenshot(ctx context.Context, id, screenshot string) error
	GetExecutionsBySession(ctx context.Context, sessionID string) ([]*models.Execution, error)

	// Reports
	CreateReport(ctx context.Context, report *models.Report) error
	GetReportBySession(ctx context.Context, sessionID string) (*models.Report, error)

	// Project tests
	AddProjectTest(ctx context.Context, test *models.ProjectTest) error
	ListProjectTests(ctx context.Context, projectID string, kind models.TestKind) ([]*models.ProjectTest, error)
	DeleteProjectTest(ctx context.Context, id string) error
	GetTestsForProject(ctx context.Context, projectID string) (*ProjectTests, error)

	// Schedules
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	ListSchedules(ctx context.Context, enabledOnly bool) ([]*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	MarkScheduleRun(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
