package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/vibetest/internal/health"
	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/output"
	"github.com/joescharf/vibetest/internal/pool"
	"github.com/joescharf/vibetest/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run <base-url>",
	Short: "Run a test session against a web app",
	Long: `Run starts a test session against the given base URL and blocks
until every agent finishes. The scout surveys the app first and splits
it into non-overlapping tasks, one per agent; --modes widens coverage
to stored user flows and the preprod checklist.

With --task or --tasks-file the session skips discovery and runs the
given task descriptions directly.`,
	Example: `  vibetest run https://staging.example.com
  vibetest run https://staging.example.com --modes all --agents 5 --project shop
  vibetest run http://localhost:3000 --task "Sign up with a fresh account"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("modes", "exploratory", "Comma-separated modes: exploratory, user_flow, preprod, or all")
	runCmd.Flags().Int("agents", 0, "Concurrent browser agents (default from config)")
	runCmd.Flags().StringSlice("start-url", nil, "Additional URL to explore (repeatable)")
	runCmd.Flags().StringP("project", "p", "", "Project ID for stored user flows")
	runCmd.Flags().StringArray("task", nil, "Ad-hoc task description, skips discovery (repeatable)")
	runCmd.Flags().String("tasks-file", "", "YAML file listing ad-hoc task descriptions")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	baseURL := args[0]

	modesFlag, _ := cmd.Flags().GetString("modes")
	modes, err := models.ParseModes(modesFlag)
	if err != nil {
		return err
	}

	agents, _ := cmd.Flags().GetInt("agents")
	if agents < 1 {
		agents = defaultAgents()
	}

	startURLs, _ := cmd.Flags().GetStringSlice("start-url")
	projectID, _ := cmd.Flags().GetString("project")
	tasks, _ := cmd.Flags().GetStringArray("task")

	if tasksFile, _ := cmd.Flags().GetString("tasks-file"); tasksFile != "" {
		fromFile, err := readTasksFile(tasksFile)
		if err != nil {
			return err
		}
		tasks = append(tasks, fromFile...)
	}

	if dryRun {
		ui.DryRunMsg("would run %s against %s with %d agents", models.JoinModes(modes), baseURL, agents)
		return nil
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	session := &models.Session{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Modes:     modes,
	}
	if err := st.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ui.Info("Session %s started: %s agents=%d modes=%s",
		output.Cyan(shortID(session.ID)), baseURL, agents, models.JoinModes(modes))

	if len(tasks) > 0 {
		return runAdhoc(ctx, st, session, tasks, agents)
	}

	orch := newEngine(st)
	orch.Notify = func(_, body string) { ui.Info("%s", body) }

	status, runErr := orch.RunSession(ctx, orchestrator.Options{
		SessionID:   session.ID,
		BaseURL:     baseURL,
		StartURLs:   startURLs,
		Modes:       modes,
		Concurrency: agents,
		ProjectID:   projectID,
	})

	summarizeSession(ctx, st, session.ID)

	if runErr != nil {
		return fmt.Errorf("session %s failed: %w", shortID(session.ID), runErr)
	}
	ui.Success("Session %s %s", shortID(session.ID), status)
	ui.Info("Run `vibetest report generate %s` for the bug report", shortID(session.ID))
	return nil
}

// runAdhoc runs explicit task descriptions through the pool, skipping
// the scout. The command owns the session transitions the orchestrator
// would otherwise make.
func runAdhoc(ctx context.Context, st store.Store, session *models.Session, tasks []string, agents int) error {
	if err := st.MarkSessionRunning(ctx, session.ID); err != nil {
		return fmt.Errorf("mark session running: %w", err)
	}

	res, err := newPool(st, newInvoker()).Run(ctx, pool.Request{
		SessionID:   session.ID,
		BaseURL:     session.BaseURL,
		Tasks:       tasks,
		Concurrency: agents,
		Tag:         models.ModeUserFlow,
	})
	if err != nil {
		if ferr := st.FailSession(ctx, session.ID, err.Error()); ferr != nil {
			ui.Warning("could not mark session failed: %v", ferr)
		}
		return fmt.Errorf("session %s failed: %w", shortID(session.ID), err)
	}

	if err := st.CompleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}

	summarizeSession(ctx, st, session.ID)
	ui.Success("Session %s completed: %d tasks in %s",
		shortID(session.ID), res.TaskCount, formatDuration(res.Duration))
	return nil
}

// readTasksFile loads task descriptions from a YAML list.
func readTasksFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var tasks []string
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks file %s: %w", path, err)
	}

	var out []string
	for _, t := range tasks {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tasks file %s contains no tasks", path)
	}
	return out, nil
}

// summarizeSession prints the execution outcomes and health score for
// a finished (or failed) session.
func summarizeSession(ctx context.Context, st store.Store, sessionID string) {
	execs, err := st.GetExecutionsBySession(ctx, sessionID)
	if err != nil || len(execs) == 0 {
		return
	}

	table := ui.Table([]string{"Agent", "Task", "Mode", "Status", "Verdict"})
	for _, e := range execs {
		table.Append([]string{
			shortID(e.ID),
			truncate(e.Task, 60),
			string(e.Tag),
			output.StatusColor(string(e.Status)),
			output.PassColor(e.Passed),
		})
	}
	table.Render()

	var issues []*models.Issue
	if rep, err := st.GetReportBySession(ctx, sessionID); err == nil {
		issues = rep.Issues
	}
	h := health.NewScorer().Score(execs, issues)

	passed, failed := 0, 0
	for _, e := range execs {
		if e.Passed == nil {
			continue
		}
		if *e.Passed {
			passed++
		} else {
			failed++
		}
	}
	ui.Info("%d passed, %d failed, health %s/100", passed, failed, output.HealthColor(h.Total))
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
