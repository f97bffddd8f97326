package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/scout"
)

var scoutCmd = &cobra.Command{
	Use:   "scout <base-url>",
	Short: "Preview the tasks agents would run against a URL",
	Long: `Scout surveys the app the way a session's exploratory mode does and
prints the per-agent task list without running anything. Useful for
checking what a run would cover before spending agent time on it.`,
	Args: cobra.ExactArgs(1),
	RunE: scoutRun,
}

func init() {
	rootCmd.AddCommand(scoutCmd)
}

func scoutRun(cmd *cobra.Command, args []string) error {
	url := args[0]

	inv := newInvoker()
	var sc *scout.Scout
	if c := newLLMClient(); c != nil {
		sc = scout.New(inv, c)
	} else {
		ui.Warning("No Anthropic API key configured, showing fallback tasks")
		sc = scout.New(inv, nil)
	}

	tasks := sc.Discover(cmd.Context(), url)
	ui.Info("%d tasks for %s:", len(tasks), url)
	for i, t := range tasks {
		fmt.Fprintf(ui.Out, "  %2d. %s\n", i+1, t)
	}
	return nil
}
