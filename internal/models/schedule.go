package models

import "time"

// TestKind distinguishes stored task descriptions.
type TestKind string

const (
	// TestKindWebsite marks a project-specific user flow.
	TestKindWebsite TestKind = "website"
	// TestKindChecklist marks a global pre-production checklist item.
	TestKindChecklist TestKind = "checklist"
)

// ProjectTest is a stored task description, either a user-defined flow
// belonging to a project or a global pre-production checklist item
// (empty project id).
type ProjectTest struct {
	ID          string
	ProjectID   string
	Description string
	Kind        TestKind
	Position    int
	CreatedAt   time.Time
}

// Schedule defines a recurring test session started by the serve loop.
type Schedule struct {
	ID        string
	Name      string
	Cron      string
	BaseURL   string
	Modes     []Mode
	Agents    int
	ProjectID string
	Enabled   bool
	CreatedAt time.Time
	LastRunAt *time.Time
}
