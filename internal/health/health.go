package health

import (
	"github.com/joescharf/vibetest/internal/models"
)

// SessionHealth represents the computed health of a test session.
type SessionHealth struct {
	Total        int
	PassRate     int // 0-40
	Stability    int // 0-25
	IssueImpact  int // 0-25
	ModeCoverage int // 0-10
}

// Scorer computes health scores for finished sessions.
type Scorer struct{}

// NewScorer returns a new health Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes a health score (0-100) from a session's executions
// and its report issues. A nil issue list means no report yet; it is
// treated the same as a clean report.
func (s *Scorer) Score(execs []*models.Execution, issues []*models.Issue) *SessionHealth {
	h := &SessionHealth{}

	// Pass rate (40 pts) - verdicts that came back is_working
	h.PassRate = scorePassRate(execs, 40)

	// Stability (25 pts) - runs that finished without agent errors
	h.Stability = scoreStability(execs, 25)

	// Issue impact (25 pts) - fewer and milder issues = better
	h.IssueImpact = scoreIssues(issues, len(execs), 25)

	// Mode coverage (10 pts) - more modes exercised = more confidence
	h.ModeCoverage = scoreModes(execs, 10)

	h.Total = h.PassRate + h.Stability + h.IssueImpact + h.ModeCoverage
	return h
}

// scorePassRate converts the passing share of verdicts to points.
// Executions without a verdict (still pending or running) count
// against the rate only by being excluded from it.
func scorePassRate(execs []*models.Execution, maxPoints int) int {
	terminal, passed := 0, 0
	for _, e := range execs {
		if e.Passed == nil {
			continue
		}
		terminal++
		if *e.Passed {
			passed++
		}
	}
	if terminal == 0 {
		return 0
	}
	return int(float64(maxPoints) * float64(passed) / float64(terminal))
}

// scoreStability measures how many runs completed without the agent
// itself erroring out.
func scoreStability(execs []*models.Execution, maxPoints int) int {
	if len(execs) == 0 {
		return 0
	}
	ok := 0
	for _, e := range execs {
		if e.Status == models.ExecutionStatusSuccess {
			ok++
		}
	}
	return int(float64(maxPoints) * float64(ok) / float64(len(execs)))
}

// scoreIssues weighs report issues by severity against session size.
func scoreIssues(issues []*models.Issue, execCount, maxPoints int) int {
	if len(issues) == 0 {
		return maxPoints // clean report = healthy
	}

	weight := 0
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityHigh:
			weight += 3
		case models.SeverityMedium:
			weight += 2
		default:
			weight++
		}
	}

	if execCount < 1 {
		execCount = 1
	}
	// Worst case is every execution surfacing a high-severity issue.
	ratio := float64(weight) / float64(execCount*3)
	if ratio > 1 {
		ratio = 1
	}
	return int(float64(maxPoints) * (1 - ratio*0.8))
}

// scoreModes rewards sessions that exercised more test modes.
func scoreModes(execs []*models.Execution, maxPoints int) int {
	seen := make(map[models.Mode]bool)
	for _, e := range execs {
		seen[e.Tag] = true
	}
	switch len(seen) {
	case 0:
		return 0
	case 1:
		return int(float64(maxPoints) * 0.3)
	case 2:
		return int(float64(maxPoints) * 0.6)
	default:
		return maxPoints
	}
}
