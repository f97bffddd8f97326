package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/vibetest/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent pool workers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// modesFromString parses a stored comma-joined mode list. Values are
// valid by construction, so parsing is lenient.
func modesFromString(s string) []models.Mode {
	var modes []models.Mode
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			modes = append(modes, models.Mode(part))
		}
	}
	return modes
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = newULID()
	}
	if session.Status == "" {
		session.Status = models.SessionStatusPending
	}
	session.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, base_url, project_id, modes, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.BaseURL, session.ProjectID, models.JoinModes(session.Modes),
		string(session.Status), session.Error, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, base_url, project_id, modes, status, error, created_at, completed_at
		FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error) {
	query := `SELECT id, base_url, project_id, modes, status, error, created_at, completed_at
		FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var modes, status string
	var completedAt sql.NullTime

	err := row.Scan(&session.ID, &session.BaseURL, &session.ProjectID, &modes,
		&status, &session.Error, &session.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	session.Modes = modesFromString(modes)
	session.Status = models.SessionStatus(status)
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return session, nil
}

func (s *SQLiteStore) AddSessionMessage(ctx context.Context, sessionID, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, body, created_at) VALUES (?, ?, ?)`,
		sessionID, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add session message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessionMessages(ctx context.Context, sessionID string) ([]*models.SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, session_id, body, created_at FROM session_messages
		WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*models.SessionMessage
	for rows.Next() {
		m := &models.SessionMessage{}
		if err := rows.Scan(&m.Seq, &m.SessionID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) MarkSessionRunning(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ? AND status NOT IN (?, ?)`,
		string(models.SessionStatusRunning), id,
		string(models.SessionStatusCompleted), string(models.SessionStatusFailed),
	)
	if err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found or already terminal: %s", id)
	}
	return nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, completed_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		string(models.SessionStatusCompleted), time.Now().UTC(), id,
		string(models.SessionStatusCompleted), string(models.SessionStatusFailed),
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found or already terminal: %s", id)
	}
	return nil
}

func (s *SQLiteStore) FailSession(ctx context.Context, id, errMsg string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status NOT IN (?, ?)`,
		string(models.SessionStatusFailed), errMsg, time.Now().UTC(), id,
		string(models.SessionStatusCompleted), string(models.SessionStatusFailed),
	)
	if err != nil {
		return fmt.Errorf("fail session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found or already terminal: %s", id)
	}
	return nil
}

// --- Executions ---

func (s *SQLiteStore) CreateExecution(ctx context.Context, exec *models.Execution) error {
	if exec.ID == "" {
		exec.ID = newULID()
	}
	if exec.Status == "" {
		exec.Status = models.ExecutionStatusPending
	}
	if exec.Tag == "" {
		exec.Tag = models.ModeExploratory
	}
	exec.CreatedAt = time.Now().UTC()

	var passed any
	if exec.Passed != nil {
		passed = boolToInt(*exec.Passed)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, session_id, task, tag, status, passed, message, error, screenshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.SessionID, exec.Task, string(exec.Tag), string(exec.Status),
		passed, exec.Message, exec.Error, exec.Screenshot, exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, task, tag, status, passed, message, error, screenshot, created_at, started_at, completed_at
		FROM executions WHERE id = ?`, id)

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus) error {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	switch status {
	case models.ExecutionStatusRunning:
		result, err = s.db.ExecContext(ctx,
			`UPDATE executions SET status = ?, started_at = ? WHERE id = ?`,
			string(status), now, id)
	case models.ExecutionStatusSuccess, models.ExecutionStatusError:
		result, err = s.db.ExecContext(ctx,
			`UPDATE executions SET status = ?, completed_at = ? WHERE id = ?`,
			string(status), now, id)
	default:
		result, err = s.db.ExecContext(ctx,
			`UPDATE executions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) SaveExecutionResult(ctx context.Context, id string, passed bool, message, errText string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET passed = ?, message = ?, error = ? WHERE id = ?`,
		boolToInt(passed), message, errText, id,
	)
	if err != nil {
		return fmt.Errorf("save execution result: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) SaveExecutionScreenshot(ctx context.Context, id, screenshot string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET screenshot = ? WHERE id = ?`, screenshot, id,
	)
	if err != nil {
		return fmt.Errorf("save execution screenshot: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("execution not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetExecutionsBySession(ctx context.Context, sessionID string) ([]*models.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, task, tag, status, passed, message, error, screenshot, created_at, started_at, completed_at
		FROM executions WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get executions by session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	exec := &models.Execution{}
	var tag, status string
	var passed sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&exec.ID, &exec.SessionID, &exec.Task, &tag, &status,
		&passed, &exec.Message, &exec.Error, &exec.Screenshot,
		&exec.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	exec.Tag = models.Mode(tag)
	exec.Status = models.ExecutionStatus(status)
	if passed.Valid {
		b := passed.Int64 != 0
		exec.Passed = &b
	}
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// --- Reports ---

// CreateReport persists a report and its issues in one transaction, so
// a failure never leaves a partial report behind.
func (s *SQLiteStore) CreateReport(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = newULID()
	}
	report.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin report transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, session_id, summary, created_at) VALUES (?, ?, ?, ?)`,
		report.ID, report.SessionID, report.Summary, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	for i, issue := range report.Issues {
		if issue.ID == "" {
			issue.ID = newULID()
		}
		issue.ReportID = report.ID

		_, err = tx.ExecContext(ctx,
			`INSERT INTO report_issues (id, report_id, execution_id, severity, risk, detail, advice, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.ID, issue.ReportID, issue.ExecutionID, string(issue.Severity),
			issue.Risk, issue.Detail, issue.Advice, i,
		)
		if err != nil {
			return fmt.Errorf("create report issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReportBySession(ctx context.Context, sessionID string) (*models.Report, error) {
	report := &models.Report{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, summary, created_at FROM reports WHERE session_id = ?`, sessionID,
	).Scan(&report.ID, &report.SessionID, &report.Summary, &report.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report not found for session: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_id, execution_id, severity, risk, detail, advice
		FROM report_issues WHERE report_id = ? ORDER BY position`, report.ID)
	if err != nil {
		return nil, fmt.Errorf("get report issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		issue := &models.Issue{}
		var severity string
		if err := rows.Scan(&issue.ID, &issue.ReportID, &issue.ExecutionID,
			&severity, &issue.Risk, &issue.Detail, &issue.Advice); err != nil {
			return nil, fmt.Errorf("scan report issue: %w", err)
		}
		issue.Severity = models.Severity(severity)
		report.Issues = append(report.Issues, issue)
	}
	return report, rows.Err()
}

// --- Project tests ---

func (s *SQLiteStore) AddProjectTest(ctx context.Context, test *models.ProjectTest) error {
	if test.ID == "" {
		test.ID = newULID()
	}
	if test.Kind == "" {
		test.Kind = models.TestKindWebsite
	}
	test.CreatedAt = time.Now().UTC()

	if test.Position == 0 {
		// Append after the current last item of the same project+kind.
		var max sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT MAX(position) FROM project_tests WHERE project_id = ? AND kind = ?`,
			test.ProjectID, string(test.Kind)).Scan(&max)
		if err != nil {
			return fmt.Errorf("next test position: %w", err)
		}
		test.Position = int(max.Int64) + 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project_tests (id, project_id, description, kind, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		test.ID, test.ProjectID, test.Description, string(test.Kind), test.Position, test.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add project test: %w", err)
	}
	return nil
}

// ListProjectTests lists stored tests, filtered by project and kind
// when those are non-empty. Checklist items live under an empty
// project id, so kind alone selects them.
func (s *SQLiteStore) ListProjectTests(ctx context.Context, projectID string, kind models.TestKind) ([]*models.ProjectTest, error) {
	query := `SELECT id, project_id, description, kind, position, created_at
		FROM project_tests WHERE 1=1`
	var args []any

	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY position, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list project tests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tests []*models.ProjectTest
	for rows.Next() {
		t := &models.ProjectTest{}
		var k string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Description, &k, &t.Position, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project test: %w", err)
		}
		t.Kind = models.TestKind(k)
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (s *SQLiteStore) DeleteProjectTest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM project_tests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project test: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project test not found: %s", id)
	}
	return nil
}

// GetTestsForProject returns a project's user-defined flows together
// with the global pre-production checklist (stored under an empty
// project id). Without a project id only the checklist is returned.
func (s *SQLiteStore) GetTestsForProject(ctx context.Context, projectID string) (*ProjectTests, error) {
	var website []*models.ProjectTest
	if projectID != "" {
		var err error
		website, err = s.ListProjectTests(ctx, projectID, models.TestKindWebsite)
		if err != nil {
			return nil, err
		}
	}
	checklist, err := s.ListProjectTests(ctx, "", models.TestKindChecklist)
	if err != nil {
		return nil, err
	}
	return &ProjectTests{WebsiteSpecific: website, Checklist: checklist}, nil
}

// --- Schedules ---

func (s *SQLiteStore) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = newULID()
	}
	schedule.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, name, cron, base_url, modes, agents, project_id, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Name, schedule.Cron, schedule.BaseURL,
		models.JoinModes(schedule.Modes), schedule.Agents, schedule.ProjectID,
		boolToInt(schedule.Enabled), schedule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSchedules(ctx context.Context, enabledOnly bool) ([]*models.Schedule, error) {
	query := `SELECT id, name, cron, base_url, modes, agents, project_id, enabled, created_at, last_run_at
		FROM schedules`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*models.Schedule
	for rows.Next() {
		sch := &models.Schedule{}
		var modes string
		var enabled int
		var lastRunAt sql.NullTime
		if err := rows.Scan(&sch.ID, &sch.Name, &sch.Cron, &sch.BaseURL, &modes,
			&sch.Agents, &sch.ProjectID, &enabled, &sch.CreatedAt, &lastRunAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		sch.Modes = modesFromString(modes)
		sch.Enabled = enabled != 0
		if lastRunAt.Valid {
			sch.LastRunAt = &lastRunAt.Time
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schedule not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) MarkScheduleRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_run_at = ? WHERE id = ?`, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark schedule run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schedule not found: %s", id)
	}
	return nil
}
