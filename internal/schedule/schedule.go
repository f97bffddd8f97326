// Package schedule launches recurring test sessions from cron
// expressions stored alongside the rest of the data. Schedules added
// while the loop is running are picked up on the next tick.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joescharf/vibetest/internal/models"
)

type scheduleStore interface {
	ListSchedules(ctx context.Context, enabledOnly bool) ([]*models.Schedule, error)
	MarkScheduleRun(ctx context.Context, id string) error
}

// RunFunc launches one scheduled session and blocks until it drains.
type RunFunc func(ctx context.Context, sched *models.Schedule) error

// Scheduler polls stored schedules and fires the ones that are due.
type Scheduler struct {
	store  scheduleStore
	parser cron.Parser

	// Interval is how often due schedules are checked.
	Interval time.Duration

	mu      sync.Mutex
	running map[string]bool
}

func NewScheduler(st scheduleStore) *Scheduler {
	return &Scheduler{
		store:    st,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		Interval: time.Minute,
		running:  make(map[string]bool),
	}
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns when the schedule would next fire after now, or the
// zero time when the expression does not parse.
func NextRun(s *models.Schedule, now time.Time) time.Time {
	sched, err := ParseCron(s.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

// Run polls until ctx is cancelled. Each due schedule launches in its
// own goroutine; a schedule never overlaps itself, but different
// schedules run independently.
func (sc *Scheduler) Run(ctx context.Context, launch RunFunc) {
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sc.tick(ctx, launch)
		}
	}
}

func (sc *Scheduler) tick(ctx context.Context, launch RunFunc) {
	schedules, err := sc.store.ListSchedules(ctx, true)
	if err != nil {
		slog.Warn("failed to list schedules", "error", err)
		return
	}

	now := time.Now()
	for _, s := range schedules {
		if !sc.shouldRun(s, now) {
			continue
		}

		sc.markRunning(s.ID)
		// Record the run before launching so a session outliving the
		// process does not refire on restart.
		if err := sc.store.MarkScheduleRun(ctx, s.ID); err != nil {
			slog.Warn("failed to record schedule run", "schedule", s.Name, "error", err)
		}

		go func(s *models.Schedule) {
			defer sc.markDone(s.ID)
			slog.Info("launching scheduled session", "schedule", s.Name, "base_url", s.BaseURL)
			if err := launch(ctx, s); err != nil {
				slog.Error("scheduled session failed", "schedule", s.Name, "error", err)
			}
		}(s)
	}
}

// shouldRun reports whether the schedule is due. A schedule that has
// never run is backdated 24h so daily schedules fire on first sight
// instead of waiting a full period.
func (sc *Scheduler) shouldRun(s *models.Schedule, now time.Time) bool {
	sc.mu.Lock()
	active := sc.running[s.ID]
	sc.mu.Unlock()
	if active {
		return false
	}

	parsed, err := sc.parser.Parse(s.Cron)
	if err != nil {
		slog.Warn("invalid cron expression", "schedule", s.Name, "cron", s.Cron, "error", err)
		return false
	}

	last := now.Add(-24 * time.Hour)
	if s.LastRunAt != nil {
		last = *s.LastRunAt
	}
	return now.After(parsed.Next(last))
}

func (sc *Scheduler) markRunning(id string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.running[id] = true
}

func (sc *Scheduler) markDone(id string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.running, id)
}
