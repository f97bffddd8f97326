package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/output"
	"github.com/joescharf/vibetest/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"schedules"},
	Short:   "Manage recurring test sessions",
	Long: `Schedules launch test sessions on a cron expression while
` + "`vibetest serve`" + ` is running. A schedule that is due fires once; it
never overlaps itself.`,
	RunE: scheduleListRun,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <name> <base-url>",
	Short: "Add a recurring test session",
	Example: `  vibetest schedule add nightly https://staging.example.com --cron "0 3 * * *"
  vibetest schedule add hourly-smoke http://localhost:3000 --cron "0 * * * *" --modes all`,
	Args: cobra.ExactArgs(2),
	RunE: scheduleAddRun,
}

var scheduleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List schedules",
	RunE:    scheduleListRun,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a schedule",
	Args:    cobra.ExactArgs(1),
	RunE:    scheduleRemoveRun,
}

func init() {
	scheduleAddCmd.Flags().String("cron", "", "Five-field cron expression (required)")
	scheduleAddCmd.Flags().String("modes", "exploratory", "Comma-separated modes for the scheduled runs")
	scheduleAddCmd.Flags().Int("agents", 0, "Concurrent browser agents (default from config)")
	scheduleAddCmd.Flags().StringP("project", "p", "", "Project ID for stored user flows")
	_ = scheduleAddCmd.MarkFlagRequired("cron")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleAddRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	cronExpr, _ := cmd.Flags().GetString("cron")
	if _, err := schedule.ParseCron(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	modesFlag, _ := cmd.Flags().GetString("modes")
	modes, err := models.ParseModes(modesFlag)
	if err != nil {
		return err
	}

	agents, _ := cmd.Flags().GetInt("agents")
	if agents < 1 {
		agents = defaultAgents()
	}
	projectID, _ := cmd.Flags().GetString("project")

	if dryRun {
		ui.DryRunMsg("would add schedule %q (%s) for %s", args[0], cronExpr, args[1])
		return nil
	}

	sched := &models.Schedule{
		Name:      args[0],
		Cron:      cronExpr,
		BaseURL:   args[1],
		Modes:     modes,
		Agents:    agents,
		ProjectID: projectID,
		Enabled:   true,
	}
	if err := st.CreateSchedule(ctx, sched); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}

	next := schedule.NextRun(sched, time.Now())
	ui.Success("Schedule %s added, next run %s", output.Cyan(shortID(sched.ID)), next.Local().Format("2006-01-02 15:04"))
	ui.Info("Schedules fire while `vibetest serve` is running")
	return nil
}

func scheduleListRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	schedules, err := st.ListSchedules(ctx, false)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if len(schedules) == 0 {
		ui.Info("No schedules. Add one with `vibetest schedule add`.")
		return nil
	}

	now := time.Now()
	table := ui.Table([]string{"ID", "Name", "Cron", "URL", "Modes", "Last Run", "Next Run"})
	for _, s := range schedules {
		lastRun := "never"
		if s.LastRunAt != nil {
			lastRun = timeAgo(*s.LastRunAt)
		}
		nextRun := "-"
		if s.Enabled {
			if next := schedule.NextRun(s, now); !next.IsZero() {
				nextRun = next.Local().Format("01-02 15:04")
			}
		}
		table.Append([]string{
			output.Cyan(shortID(s.ID)),
			s.Name,
			s.Cron,
			s.BaseURL,
			models.JoinModes(s.Modes),
			lastRun,
			nextRun,
		})
	}
	table.Render()
	return nil
}

func scheduleRemoveRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("would remove schedule %s", args[0])
		return nil
	}

	if err := st.DeleteSchedule(ctx, args[0]); err != nil {
		return fmt.Errorf("remove schedule: %w", err)
	}
	ui.Success("Removed schedule %s", args[0])
	return nil
}
