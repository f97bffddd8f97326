// Package orchestrator drives a test session through its requested
// modes: exploratory discovery, stored user flows, and the preprod
// checklist. Modes run strictly in that order, each feeding its own
// task batch to the worker pool so results keep their mode tag.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/pool"
	"github.com/joescharf/vibetest/internal/store"
)

type sessionStore interface {
	MarkSessionRunning(ctx context.Context, id string) error
	AddSessionMessage(ctx context.Context, sessionID, body string) error
	CompleteSession(ctx context.Context, id string) error
	FailSession(ctx context.Context, id, errMsg string) error
	GetTestsForProject(ctx context.Context, projectID string) (*store.ProjectTests, error)
}

type scouter interface {
	Discover(ctx context.Context, url string) []string
}

type runner interface {
	Run(ctx context.Context, req pool.Request) (*pool.Result, error)
}

// Options describes one session run.
type Options struct {
	SessionID   string
	BaseURL     string
	StartURLs   []string
	Modes       []models.Mode
	Concurrency int
	ProjectID   string
}

// Orchestrator owns session status transitions. Nothing else moves a
// session between pending, running, and its terminal states.
type Orchestrator struct {
	store sessionStore
	scout scouter
	pool  runner

	// Notify, when set, receives every progress message right after
	// it is persisted. The serve command uses it to push live events.
	Notify func(sessionID, body string)
}

func New(st sessionStore, sc scouter, p runner) *Orchestrator {
	return &Orchestrator{store: st, scout: sc, pool: p}
}

// RunSession executes the requested modes in fixed order and returns
// the session's terminal status. A mode failure marks the session
// failed and stops further modes; in-flight tasks of the failing mode
// have already drained by then, so no execution is left running.
func (o *Orchestrator) RunSession(ctx context.Context, opts Options) (models.SessionStatus, error) {
	if err := o.store.MarkSessionRunning(ctx, opts.SessionID); err != nil {
		return models.SessionStatusFailed, fmt.Errorf("mark session running: %w", err)
	}

	for _, mode := range models.AllModes {
		if !slices.Contains(opts.Modes, mode) {
			continue
		}
		if err := o.runMode(ctx, mode, opts); err != nil {
			o.say(ctx, opts.SessionID, fmt.Sprintf("%s testing failed: %v", mode, err))
			if ferr := o.store.FailSession(ctx, opts.SessionID, err.Error()); ferr != nil {
				slog.Warn("failed to mark session failed", "session", opts.SessionID, "error", ferr)
			}
			return models.SessionStatusFailed, err
		}
	}

	if err := o.store.CompleteSession(ctx, opts.SessionID); err != nil {
		return models.SessionStatusFailed, fmt.Errorf("complete session: %w", err)
	}
	return models.SessionStatusCompleted, nil
}

func (o *Orchestrator) runMode(ctx context.Context, mode models.Mode, opts Options) error {
	switch mode {
	case models.ModeExploratory:
		return o.runExploratory(ctx, opts)
	case models.ModeUserFlow:
		return o.runUserFlows(ctx, opts)
	case models.ModePreprod:
		return o.runPreprodChecks(ctx, opts)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func (o *Orchestrator) runExploratory(ctx context.Context, opts Options) error {
	urls := opts.StartURLs
	if len(urls) == 0 {
		urls = []string{opts.BaseURL}
	}
	o.say(ctx, opts.SessionID, fmt.Sprintf("exploratory: scouting %d starting URL(s)", len(urls)))

	for _, url := range urls {
		tasks := o.scout.Discover(ctx, url)
		o.say(ctx, opts.SessionID, fmt.Sprintf("exploratory: %d tasks queued for %s", len(tasks), url))

		result, err := o.pool.Run(ctx, pool.Request{
			SessionID:   opts.SessionID,
			BaseURL:     url,
			Tasks:       tasks,
			Concurrency: opts.Concurrency,
			Tag:         models.ModeExploratory,
		})
		if err != nil {
			return fmt.Errorf("exploratory pool for %s: %w", url, err)
		}
		o.say(ctx, opts.SessionID, fmt.Sprintf("exploratory: %s done, %d/%d passed", url, passCount(result), result.TaskCount))
	}
	return nil
}

func (o *Orchestrator) runUserFlows(ctx context.Context, opts Options) error {
	if opts.ProjectID == "" {
		o.say(ctx, opts.SessionID, "user_flow: skipped, missing project_id")
		return nil
	}

	tests, err := o.store.GetTestsForProject(ctx, opts.ProjectID)
	if err != nil {
		return fmt.Errorf("fetch tests for project %s: %w", opts.ProjectID, err)
	}
	if len(tests.WebsiteSpecific) == 0 {
		o.say(ctx, opts.SessionID, fmt.Sprintf("user_flow: no stored flows for project %s, skipping", opts.ProjectID))
		return nil
	}

	tasks := make([]string, len(tests.WebsiteSpecific))
	for i, t := range tests.WebsiteSpecific {
		tasks[i] = t.Description
	}
	o.say(ctx, opts.SessionID, fmt.Sprintf("user_flow: running %d stored flows", len(tasks)))

	result, err := o.pool.Run(ctx, pool.Request{
		SessionID:   opts.SessionID,
		BaseURL:     opts.BaseURL,
		Tasks:       tasks,
		Concurrency: opts.Concurrency,
		Tag:         models.ModeUserFlow,
	})
	if err != nil {
		return fmt.Errorf("user flow pool: %w", err)
	}
	o.say(ctx, opts.SessionID, fmt.Sprintf("user_flow: done, %d/%d passed", passCount(result), result.TaskCount))
	return nil
}

func (o *Orchestrator) runPreprodChecks(ctx context.Context, opts Options) error {
	tests, err := o.store.GetTestsForProject(ctx, opts.ProjectID)
	if err != nil {
		return fmt.Errorf("fetch preprod checklist: %w", err)
	}
	if len(tests.Checklist) == 0 {
		o.say(ctx, opts.SessionID, "preprod: checklist is empty, skipping")
		return nil
	}

	tasks := make([]string, len(tests.Checklist))
	for i, t := range tests.Checklist {
		tasks[i] = t.Description
	}
	o.say(ctx, opts.SessionID, fmt.Sprintf("preprod: running %d checklist items", len(tasks)))

	result, err := o.pool.Run(ctx, pool.Request{
		SessionID:   opts.SessionID,
		BaseURL:     opts.BaseURL,
		Tasks:       tasks,
		Concurrency: opts.Concurrency,
		Tag:         models.ModePreprod,
	})
	if err != nil {
		return fmt.Errorf("preprod pool: %w", err)
	}
	o.say(ctx, opts.SessionID, fmt.Sprintf("preprod: done, %d/%d passed", passCount(result), result.TaskCount))
	return nil
}

// say appends a progress message to the session log. The log is
// best-effort observability, so persistence failures are logged and
// the session keeps going.
func (o *Orchestrator) say(ctx context.Context, sessionID, body string) {
	if err := o.store.AddSessionMessage(ctx, sessionID, body); err != nil {
		slog.Warn("failed to record session message", "session", sessionID, "error", err)
	}
	if o.Notify != nil {
		o.Notify(sessionID, body)
	}
}

func passCount(result *pool.Result) int {
	n := 0
	for _, outcome := range result.Outcomes {
		if outcome.Passed != nil && *outcome.Passed {
			n++
		}
	}
	return n
}
