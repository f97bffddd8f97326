package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Invoker runs one task per isolated browser session. Sessions are
// never shared across tasks; the agent service is stateful and leaked
// state between tasks corrupts results.
type Invoker struct {
	client   Client
	headless bool
}

// NewInvoker returns an Invoker backed by the given client.
func NewInvoker(client Client, headless bool) *Invoker {
	return &Invoker{client: client, headless: headless}
}

// Invoke allocates a fresh session, runs the task, and returns the
// normalized final result text. The session is released on every exit
// path; release failures are logged, never returned, because a leaked
// context must not fail an otherwise-successful task. If observer is
// non-nil it is called once per step; observer failures are logged and
// the run continues.
func (inv *Invoker) Invoke(ctx context.Context, task string, schema json.RawMessage, observer StepFunc) (string, error) {
	session, err := inv.client.CreateSession(ctx, inv.headless)
	if err != nil {
		return "", fmt.Errorf("create browser session: %w", err)
	}
	defer func() {
		// Release even when ctx is already cancelled.
		if err := inv.client.ReleaseSession(context.WithoutCancel(ctx), session.ID); err != nil {
			slog.Warn("failed to release browser session", "session", session.ID, "error", err)
		}
	}()

	result, err := inv.client.Run(ctx, session.ID, RunRequest{Task: task, ResultSchema: schema}, safeObserver(observer))
	if err != nil {
		return "", fmt.Errorf("agent run: %w", err)
	}
	return result.Text, nil
}

// safeObserver wraps an observer so its failures are swallowed and
// logged instead of aborting the run.
func safeObserver(observer StepFunc) StepFunc {
	if observer == nil {
		return nil
	}
	return func(ctx context.Context, step StepEvent) error {
		if err := observer(ctx, step); err != nil {
			slog.Warn("step observer failed", "step", step.Index, "action", step.Action, "error", err)
		}
		return nil
	}
}
