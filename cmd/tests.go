package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/output"
)

var testsCmd = &cobra.Command{
	Use:     "tests",
	Aliases: []string{"test"},
	Short:   "Manage stored test descriptions",
	Long: `Tests are natural-language task descriptions agents run verbatim.
Project tests describe user flows for one app and run in user_flow
mode; checklist tests are global preprod checks (--checklist) and run
in preprod mode against every project.`,
	RunE: testsListRun,
}

var testsAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Store a test description",
	Args:  cobra.ExactArgs(1),
	RunE:  testsAddRun,
}

var testsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored test descriptions",
	RunE:    testsListRun,
}

var testsRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a stored test description",
	Args:    cobra.ExactArgs(1),
	RunE:    testsRemoveRun,
}

func init() {
	testsAddCmd.Flags().StringP("project", "p", "", "Project the flow belongs to")
	testsAddCmd.Flags().Bool("checklist", false, "Store as a global preprod checklist item")

	testsListCmd.Flags().StringP("project", "p", "", "Filter by project ID")
	testsListCmd.Flags().Bool("checklist", false, "Show only preprod checklist items")

	testsCmd.AddCommand(testsAddCmd)
	testsCmd.AddCommand(testsListCmd)
	testsCmd.AddCommand(testsRemoveCmd)
	rootCmd.AddCommand(testsCmd)
}

func testsAddRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	checklist, _ := cmd.Flags().GetBool("checklist")

	kind := models.TestKindWebsite
	if checklist {
		kind = models.TestKindChecklist
		projectID = ""
	} else if projectID == "" {
		return fmt.Errorf("--project is required for user flow tests (or use --checklist)")
	}

	if dryRun {
		ui.DryRunMsg("would add %s test: %s", kind, args[0])
		return nil
	}

	test := &models.ProjectTest{
		ProjectID:   projectID,
		Description: args[0],
		Kind:        kind,
	}
	if err := st.AddProjectTest(ctx, test); err != nil {
		return fmt.Errorf("add test: %w", err)
	}

	ui.Success("Added %s test %s", kind, output.Cyan(shortID(test.ID)))
	return nil
}

func testsListRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	projectID, _ := cmd.Flags().GetString("project")
	checklist, _ := cmd.Flags().GetBool("checklist")

	var kind models.TestKind
	if checklist {
		kind = models.TestKindChecklist
	}

	tests, err := st.ListProjectTests(ctx, projectID, kind)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}
	if len(tests) == 0 {
		ui.Info("No stored tests. Add one with `vibetest tests add`.")
		return nil
	}

	table := ui.Table([]string{"ID", "Kind", "Project", "Description"})
	for _, t := range tests {
		proj := t.ProjectID
		if proj == "" {
			proj = "-"
		}
		table.Append([]string{
			output.Cyan(shortID(t.ID)),
			string(t.Kind),
			proj,
			truncate(t.Description, 70),
		})
	}
	table.Render()
	return nil
}

func testsRemoveRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("would remove test %s", args[0])
		return nil
	}

	if err := st.DeleteProjectTest(ctx, args[0]); err != nil {
		return fmt.Errorf("remove test: %w", err)
	}
	ui.Success("Removed test %s", args[0])
	return nil
}
