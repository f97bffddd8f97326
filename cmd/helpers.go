package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/output"
	"github.com/joescharf/vibetest/internal/store"
)

// shortID returns the first 12 characters of an ID for display.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// timeAgo formats a time as a relative string for table cells.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatDuration renders a duration the way test runs are read: plain
// seconds under a minute, minutes and seconds above.
func formatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

// sessionDuration renders how long a session ran, elapsed time for
// running sessions, or a dash before anything started.
func sessionDuration(s *models.Session) string {
	if s.CompletedAt != nil {
		return formatDuration(s.CompletedAt.Sub(s.CreatedAt))
	}
	if s.Status == models.SessionStatusRunning {
		return formatDuration(time.Since(s.CreatedAt))
	}
	return "-"
}

// findSession resolves a session by full ID or unique prefix.
func findSession(ctx context.Context, st store.Store, id string) (*models.Session, error) {
	if s, err := st.GetSession(ctx, id); err == nil {
		return s, nil
	}

	sessions, err := st.ListSessions(ctx, store.SessionListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var match *models.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("session prefix %q is ambiguous", id)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return match, nil
}

// renderSessionTable prints sessions in the standard list layout.
func renderSessionTable(sessions []*models.Session) {
	table := ui.Table([]string{"ID", "URL", "Modes", "Status", "Created", "Duration"})
	for _, s := range sessions {
		table.Append([]string{
			output.Cyan(shortID(s.ID)),
			s.BaseURL,
			models.JoinModes(s.Modes),
			output.StatusColor(string(s.Status)),
			timeAgo(s.CreatedAt),
			sessionDuration(s),
		})
	}
	table.Render()
}
