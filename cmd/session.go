package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/health"
	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/output"
	"github.com/joescharf/vibetest/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Inspect test sessions",
	RunE:    sessionListRun,
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List test sessions",
	RunE:    sessionListRun,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its agent executions",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionShowRun,
}

func init() {
	sessionListCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed)")
	sessionListCmd.Flags().StringP("project", "p", "", "Filter by project ID")
	sessionListCmd.Flags().Int("limit", 20, "Maximum sessions to show")

	sessionShowCmd.Flags().Bool("log", false, "Include the session progress log")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionListRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	projectID, _ := cmd.Flags().GetString("project")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 {
		limit = 20
	}

	sessions, err := st.ListSessions(ctx, store.SessionListFilter{
		Status:    models.SessionStatus(status),
		ProjectID: projectID,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.Info("No sessions yet. Start one with `vibetest run <base-url>`.")
		return nil
	}

	renderSessionTable(sessions)
	return nil
}

func sessionShowRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	s, err := findSession(ctx, st, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan("Session"), s.ID)
	fmt.Fprintf(ui.Out, "  URL:      %s\n", s.BaseURL)
	if s.ProjectID != "" {
		fmt.Fprintf(ui.Out, "  Project:  %s\n", s.ProjectID)
	}
	fmt.Fprintf(ui.Out, "  Modes:    %s\n", models.JoinModes(s.Modes))
	fmt.Fprintf(ui.Out, "  Status:   %s\n", output.StatusColor(string(s.Status)))
	if s.Error != "" {
		fmt.Fprintf(ui.Out, "  Error:    %s\n", output.Red(s.Error))
	}
	fmt.Fprintf(ui.Out, "  Created:  %s (%s)\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"), timeAgo(s.CreatedAt))
	fmt.Fprintf(ui.Out, "  Duration: %s\n", sessionDuration(s))

	execs, err := st.GetExecutionsBySession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	if len(execs) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Agent", "Task", "Mode", "Status", "Verdict", "Message"})
		for _, e := range execs {
			table.Append([]string{
				shortID(e.ID),
				truncate(e.Task, 45),
				string(e.Tag),
				output.StatusColor(string(e.Status)),
				output.PassColor(e.Passed),
				truncate(e.Message, 50),
			})
		}
		table.Render()

		var issues []*models.Issue
		if rep, rerr := st.GetReportBySession(ctx, s.ID); rerr == nil {
			issues = rep.Issues
		}
		h := health.NewScorer().Score(execs, issues)
		fmt.Fprintf(ui.Out, "\nHealth: %s/100 (pass rate %d, stability %d, issues %d, coverage %d)\n",
			output.HealthColor(h.Total), h.PassRate, h.Stability, h.IssueImpact, h.ModeCoverage)
	}

	if showLog, _ := cmd.Flags().GetBool("log"); showLog {
		msgs, err := st.ListSessionMessages(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("list session messages: %w", err)
		}
		if len(msgs) > 0 {
			fmt.Fprintln(ui.Out)
			for _, m := range msgs {
				fmt.Fprintf(ui.Out, "  %s  %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Body)
			}
		}
	}

	return nil
}
