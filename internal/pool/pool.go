// Package pool runs batches of browser test tasks with bounded
// concurrency. Each task gets its own execution record and its own
// browser session; one task failing never aborts the batch.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/vibetest/internal/browser"
	"github.com/joescharf/vibetest/internal/models"
)

// maxConcurrency caps the number of in-flight browser agents no matter
// what the caller asks for. Browser sessions are expensive.
const maxConcurrency = 10

// TaskVerdict is the structured result every agent run must produce.
type TaskVerdict struct {
	IsWorking bool   `json:"is_working" jsonschema:"description=Whether the tested elements worked as expected"`
	Message   string `json:"message" jsonschema:"description=One sentence on what was tested and what happened"`
	Error     string `json:"error,omitempty" jsonschema:"description=Error details when something failed"`
}

var verdictSchema = mustVerdictSchema()

func mustVerdictSchema() json.RawMessage {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.Marshal(r.Reflect(&TaskVerdict{}))
	if err != nil {
		panic(fmt.Sprintf("reflect verdict schema: %v", err))
	}
	return b
}

type store interface {
	CreateExecution(ctx context.Context, exec *models.Execution) error
	UpdateExecutionStatus(ctx context.Context, id string, status models.ExecutionStatus) error
	SaveExecutionResult(ctx context.Context, id string, passed bool, message, errText string) error
	SaveExecutionScreenshot(ctx context.Context, id, screenshot string) error
}

type invoker interface {
	Invoke(ctx context.Context, task string, schema json.RawMessage, observer browser.StepFunc) (string, error)
}

// Request describes one batch of tasks to run against a base URL.
type Request struct {
	SessionID   string
	BaseURL     string
	Tasks       []string
	Concurrency int
	Tag         models.Mode
}

// Result aggregates a finished batch. Outcomes are index-aligned with
// the request's task list regardless of completion order.
type Result struct {
	BaseURL     string
	TaskCount   int
	Concurrency int
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Outcomes    []*models.Execution
	Status      string
}

// Pool dispatches tasks to browser agents with bounded concurrency.
type Pool struct {
	store   store
	invoker invoker

	// GraceDelay is the pause after the last worker finishes that
	// lets browser sessions close before results are reported.
	GraceDelay time.Duration
}

func New(st store, inv invoker) *Pool {
	return &Pool{store: st, invoker: inv, GraceDelay: time.Second}
}

// Run executes every task in the request and returns one outcome per
// task, in input order. Execution records are created up front in
// pending state so progress is observable while the batch runs; a
// failure creating them is the only error Run returns. Individual
// task failures are recorded on their execution and never abort the
// batch.
func (p *Pool) Run(ctx context.Context, req Request) (*Result, error) {
	limit := req.Concurrency
	if limit < 1 {
		limit = 1
	}
	if limit > maxConcurrency {
		limit = maxConcurrency
	}

	start := time.Now().UTC()

	execs := make([]*models.Execution, len(req.Tasks))
	for i, task := range req.Tasks {
		exec := &models.Execution{
			SessionID: req.SessionID,
			Task:      task,
			Tag:       req.Tag,
			Status:    models.ExecutionStatusPending,
		}
		if err := p.store.CreateExecution(ctx, exec); err != nil {
			return nil, fmt.Errorf("create execution for task %d: %w", i, err)
		}
		execs[i] = exec
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, exec := range execs {
		g.Go(func() error {
			p.runTask(ctx, exec, req.BaseURL)
			return nil
		})
	}
	g.Wait()

	if len(execs) > 0 && p.GraceDelay > 0 {
		time.Sleep(p.GraceDelay)
	}

	end := time.Now().UTC()
	return &Result{
		BaseURL:     req.BaseURL,
		TaskCount:   len(req.Tasks),
		Concurrency: limit,
		StartedAt:   start,
		EndedAt:     end,
		Duration:    end.Sub(start),
		Outcomes:    execs,
		Status:      "completed",
	}, nil
}

// runTask drives one task to a terminal state. Errors stop at this
// boundary: they are persisted on the execution, never returned.
func (p *Pool) runTask(ctx context.Context, exec *models.Execution, baseURL string) {
	if err := p.store.UpdateExecutionStatus(ctx, exec.ID, models.ExecutionStatusRunning); err != nil {
		slog.Warn("failed to mark execution running", "execution", exec.ID, "error", err)
	}

	observer := func(ctx context.Context, step browser.StepEvent) error {
		if step.Screenshot == "" {
			return nil
		}
		return p.store.SaveExecutionScreenshot(ctx, exec.ID, step.Screenshot)
	}

	text, err := p.invoker.Invoke(ctx, buildInstruction(exec.Task, baseURL), verdictSchema, observer)
	if err != nil {
		p.finish(ctx, exec, false, "", err.Error(), models.ExecutionStatusError)
		return
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		p.finish(ctx, exec, false, text, err.Error(), models.ExecutionStatusError)
		return
	}

	p.finish(ctx, exec, verdict.IsWorking, verdict.Message, verdict.Error, models.ExecutionStatusSuccess)
}

func (p *Pool) finish(ctx context.Context, exec *models.Execution, passed bool, message, errText string, status models.ExecutionStatus) {
	if err := p.store.SaveExecutionResult(ctx, exec.ID, passed, message, errText); err != nil {
		slog.Warn("failed to save execution result", "execution", exec.ID, "error", err)
	}
	if err := p.store.UpdateExecutionStatus(ctx, exec.ID, status); err != nil {
		slog.Warn("failed to update execution status", "execution", exec.ID, "error", err)
	}

	exec.Status = status
	exec.Passed = &passed
	exec.Message = message
	exec.Error = errText
}

func buildInstruction(task, baseURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Navigate to %s using the go_to_url action before anything else, unless the task already tells you where to start.\n\n", baseURL)
	b.WriteString(task)
	b.WriteString("\n\nWhen finished, respond with a JSON verdict: ")
	b.WriteString(`{"is_working": <bool>, "message": "<one sentence on what you tested and what happened>", "error": "<details, only when something failed>"}`)
	return b.String()
}

// parseVerdict validates an agent's final output against the verdict
// shape. Agents sometimes wrap the JSON in prose, so the first balanced
// object span is extracted before decoding.
func parseVerdict(text string) (*TaskVerdict, error) {
	raw := strings.TrimSpace(text)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var v TaskVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	if v.Message == "" {
		return nil, fmt.Errorf("verdict missing required message field")
	}
	return &v, nil
}
