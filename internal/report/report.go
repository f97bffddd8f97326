// Package report turns a session's raw execution records into a
// persisted, severity-ranked bug report.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/vibetest/internal/llm"
	"github.com/joescharf/vibetest/internal/models"
)

type reportStore interface {
	GetExecutionsBySession(ctx context.Context, sessionID string) ([]*models.Execution, error)
	CreateReport(ctx context.Context, report *models.Report) error
	GetReportBySession(ctx context.Context, sessionID string) (*models.Report, error)
}

type summarizer interface {
	SummarizeExecutions(ctx context.Context, records []llm.ExecutionRecord) (*llm.SessionSummary, error)
}

// Aggregator builds the consolidated report for a finished session.
type Aggregator struct {
	store reportStore
	llm   summarizer
}

func NewAggregator(st reportStore, s summarizer) *Aggregator {
	return &Aggregator{store: st, llm: s}
}

// Summarize classifies every execution of the session into issues and
// persists the result. A session carries at most one report: when one
// already exists it is returned as stored, without re-running
// classification. Nothing is persisted when classification fails, so a
// retry starts from a clean slate.
func (a *Aggregator) Summarize(ctx context.Context, sessionID string) (*models.Report, error) {
	if rep, err := a.store.GetReportBySession(ctx, sessionID); err == nil {
		return rep, nil
	}

	execs, err := a.store.GetExecutionsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch executions: %w", err)
	}
	if len(execs) == 0 {
		return nil, fmt.Errorf("no executions recorded for session %s", sessionID)
	}

	records := make([]llm.ExecutionRecord, len(execs))
	for i, e := range execs {
		records[i] = llm.ExecutionRecord{
			ID:      e.ID,
			Task:    e.Task,
			Tag:     string(e.Tag),
			Status:  string(e.Status),
			Passed:  e.Passed,
			Message: e.Message,
			Error:   e.Error,
		}
	}

	summary, err := a.llm.SummarizeExecutions(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	rep := &models.Report{
		SessionID: sessionID,
		Summary:   summary.Summary,
		Issues:    make([]*models.Issue, 0, len(summary.Issues)),
	}
	for _, issue := range summary.Issues {
		rep.Issues = append(rep.Issues, &models.Issue{
			ExecutionID: issue.ExecutionID,
			Severity:    normalizeSeverity(issue.Severity),
			Risk:        issue.Risk,
			Detail:      issue.Detail,
			Advice:      issue.Advice,
		})
	}

	if err := a.store.CreateReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}
	return rep, nil
}

// normalizeSeverity maps free-form model output onto the three known
// levels. Unrecognized values land on medium rather than being dropped
// or inflated.
func normalizeSeverity(s string) models.Severity {
	switch models.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityMedium:
		return models.SeverityMedium
	case models.SeverityLow:
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// SeverityCounts tallies issues per level.
func SeverityCounts(issues []*models.Issue) (high, medium, low int) {
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityHigh:
			high++
		case models.SeverityMedium:
			medium++
		case models.SeverityLow:
			low++
		}
	}
	return high, medium, low
}

// Markdown renders a report for terminals and chat surfaces. Issues
// are grouped by severity, most serious first.
func Markdown(rep *models.Report) string {
	var b strings.Builder

	b.WriteString("# Test Report\n\n")
	fmt.Fprintf(&b, "Session: %s\n\n", rep.SessionID)
	b.WriteString(rep.Summary)
	b.WriteString("\n")

	if len(rep.Issues) == 0 {
		b.WriteString("\nNo issues found.\n")
		return b.String()
	}

	high, medium, low := SeverityCounts(rep.Issues)
	fmt.Fprintf(&b, "\n%d issue(s): %d high, %d medium, %d low\n", len(rep.Issues), high, medium, low)

	for _, severity := range []models.Severity{models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		issues := filterBySeverity(rep.Issues, severity)
		if len(issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s severity\n\n", strings.ToUpper(string(severity)[:1])+string(severity)[1:])
		for _, issue := range issues {
			fmt.Fprintf(&b, "- **%s**: %s\n", issue.Risk, issue.Detail)
			if issue.Advice != "" {
				fmt.Fprintf(&b, "  - Fix: %s\n", issue.Advice)
			}
			if issue.ExecutionID != "" {
				fmt.Fprintf(&b, "  - Execution: %s\n", issue.ExecutionID)
			}
		}
	}

	return b.String()
}

func filterBySeverity(issues []*models.Issue, severity models.Severity) []*models.Issue {
	var out []*models.Issue
	for _, issue := range issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}
