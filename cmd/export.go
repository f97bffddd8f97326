package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/store"
)

var (
	exportFormat  string
	exportType    string
	exportSession string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export sessions, executions, or schedules in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "sessions", "Data type: sessions, executions, schedules")
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Session ID (required for --type executions)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch exportType {
	case "sessions":
		return exportSessions(ctx, s)
	case "executions":
		return exportExecutions(ctx, s)
	case "schedules":
		return exportSchedules(ctx, s)
	default:
		return fmt.Errorf("unknown export type: %s (use: sessions, executions, schedules)", exportType)
	}
}

func exportSessions(ctx context.Context, s store.Store) error {
	sessions, err := s.ListSessions(ctx, store.SessionListFilter{})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "BaseURL", "ProjectID", "Modes", "Status", "Created", "Duration"})
		for _, sess := range sessions {
			w.Write([]string{sess.ID, sess.BaseURL, sess.ProjectID, models.JoinModes(sess.Modes),
				string(sess.Status), sess.CreatedAt.Format("2006-01-02T15:04:05Z"), sessionDuration(sess)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Test Sessions")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| URL | Modes | Status | Duration |")
		fmt.Fprintln(ui.Out, "|-----|-------|--------|----------|")
		for _, sess := range sessions {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n",
				sess.BaseURL, models.JoinModes(sess.Modes), sess.Status, sessionDuration(sess))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportExecutions(ctx context.Context, s store.Store) error {
	if exportSession == "" {
		return fmt.Errorf("--session is required for --type executions")
	}
	sess, err := findSession(ctx, s, exportSession)
	if err != nil {
		return err
	}
	execs, err := s.GetExecutionsBySession(ctx, sess.ID)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(execs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "Task", "Mode", "Status", "Verdict", "Message", "Error"})
		for _, e := range execs {
			verdict := ""
			if e.Passed != nil {
				verdict = fmt.Sprintf("%t", *e.Passed)
			}
			w.Write([]string{e.ID, e.Task, string(e.Tag), string(e.Status), verdict, e.Message, e.Error})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Executions for %s\n", shortID(sess.ID))
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Task | Mode | Status | Verdict |")
		fmt.Fprintln(ui.Out, "|------|------|--------|---------|")
		for _, e := range execs {
			verdict := "-"
			if e.Passed != nil {
				if *e.Passed {
					verdict = "pass"
				} else {
					verdict = "fail"
				}
			}
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", truncate(e.Task, 60), e.Tag, e.Status, verdict)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportSchedules(ctx context.Context, s store.Store) error {
	schedules, err := s.ListSchedules(ctx, false)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(schedules)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "Name", "Cron", "BaseURL", "Modes", "Agents", "Enabled"})
		for _, sch := range schedules {
			w.Write([]string{sch.ID, sch.Name, sch.Cron, sch.BaseURL,
				models.JoinModes(sch.Modes), fmt.Sprintf("%d", sch.Agents), fmt.Sprintf("%t", sch.Enabled)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Schedules")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Name | Cron | URL | Modes |")
		fmt.Fprintln(ui.Out, "|------|------|-----|-------|")
		for _, sch := range schedules {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", sch.Name, sch.Cron, sch.BaseURL, models.JoinModes(sch.Modes))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}
