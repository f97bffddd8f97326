package models

import "time"

// Severity ranks how serious a reported issue is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Issue is one defect surfaced while aggregating a session's executions.
type Issue struct {
	ID          string
	ReportID    string
	ExecutionID string // execution that revealed this issue
	Severity    Severity
	Risk        string // short description of what is at risk
	Detail      string
	Advice      string
}

// Report is the severity-classified summary of a session. One per
// session, created once after the session drains, immutable after.
type Report struct {
	ID        string
	SessionID string
	Summary   string
	Issues    []*Issue
	CreatedAt time.Time
}
