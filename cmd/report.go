package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/report"
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Aliases: []string{"reports"},
	Short:   "Generate and view session bug reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:     "generate <session-id>",
	Aliases: []string{"gen"},
	Short:   "Condense a session's raw results into a bug report",
	Long: `Generate reads every execution of a finished session and has the LLM
write a consolidated, severity-ranked bug report. Each session gets
one report; generating again returns the stored one.`,
	Args: cobra.ExactArgs(1),
	RunE: reportGenerateRun,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's stored bug report",
	Args:  cobra.ExactArgs(1),
	RunE:  reportShowRun,
}

func init() {
	reportShowCmd.Flags().String("format", "markdown", "Output format: markdown or json")

	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}

func reportGenerateRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	s, err := findSession(ctx, st, args[0])
	if err != nil {
		return err
	}

	agg := newAggregator(st)
	if agg == nil {
		// Without an LLM we can still show a previously stored report.
		if rep, rerr := st.GetReportBySession(ctx, s.ID); rerr == nil {
			fmt.Fprint(ui.Out, report.Markdown(rep))
			return nil
		}
		return fmt.Errorf("no Anthropic API key configured (set ANTHROPIC_API_KEY or anthropic.api_key)")
	}

	rep, err := agg.Summarize(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	fmt.Fprint(ui.Out, report.Markdown(rep))
	return nil
}

func reportShowRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	s, err := findSession(ctx, st, args[0])
	if err != nil {
		return err
	}

	rep, err := st.GetReportBySession(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("no report for session %s, run `vibetest report generate %s` first",
			shortID(s.ID), shortID(s.ID))
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "markdown", "md":
		fmt.Fprint(ui.Out, report.Markdown(rep))
	case "json":
		out, err := json.MarshalIndent(reportJSON(rep), "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Fprintln(ui.Out, string(out))
	default:
		return fmt.Errorf("unknown format: %s (use markdown or json)", format)
	}
	return nil
}

type issueOut struct {
	ExecutionID string `json:"execution_id,omitempty"`
	Severity    string `json:"severity"`
	Risk        string `json:"risk"`
	Detail      string `json:"detail"`
	Advice      string `json:"advice,omitempty"`
}

type reportOut struct {
	SessionID string     `json:"session_id"`
	Summary   string     `json:"summary"`
	CreatedAt string     `json:"created_at"`
	Issues    []issueOut `json:"issues"`
}

func reportJSON(rep *models.Report) reportOut {
	out := reportOut{
		SessionID: rep.SessionID,
		Summary:   rep.Summary,
		CreatedAt: rep.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Issues:    make([]issueOut, 0, len(rep.Issues)),
	}
	for _, is := range rep.Issues {
		out.Issues = append(out.Issues, issueOut{
			ExecutionID: is.ExecutionID,
			Severity:    string(is.Severity),
			Risk:        is.Risk,
			Detail:      is.Detail,
			Advice:      is.Advice,
		})
	}
	return out
}
