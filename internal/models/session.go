package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus represents the state of a test session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Mode identifies the source of a session's tasks.
type Mode string

const (
	ModeExploratory Mode = "exploratory"
	ModeUserFlow    Mode = "user_flow"
	ModePreprod     Mode = "preprod"
)

// AllModes lists every mode in its canonical execution order.
// The orchestrator always runs modes in this order regardless of how
// the caller ordered them in the request.
var AllModes = []Mode{ModeExploratory, ModeUserFlow, ModePreprod}

// ParseModes parses a comma-separated mode list. The value "all"
// expands to every mode. Unknown names are rejected.
func ParseModes(s string) ([]Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		modes := make([]Mode, len(AllModes))
		copy(modes, AllModes)
		return modes, nil
	}

	var modes []Mode
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch Mode(part) {
		case ModeExploratory, ModeUserFlow, ModePreprod:
			modes = append(modes, Mode(part))
		default:
			return nil, fmt.Errorf("unknown mode: %s (use: exploratory, user_flow, preprod, all)", part)
		}
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no modes specified")
	}
	return modes, nil
}

// JoinModes renders a mode list back to its comma-separated form.
func JoinModes(modes []Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

// Session represents one requested test run against a base URL.
type Session struct {
	ID          string
	BaseURL     string
	ProjectID   string // optional; required only for user_flow mode
	Modes       []Mode
	Status      SessionStatus
	Error       string // captured error for failed sessions
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// SessionMessage is one append-only progress log entry for a session.
type SessionMessage struct {
	Seq       int64
	SessionID string
	Body      string
	CreatedAt time.Time
}
