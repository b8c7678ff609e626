package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/scenario"
)

// ExecutionsCmd represents the executions command - execution history
var ExecutionsCmd = &cobra.Command{
	Use:     "executions",
	Aliases: []string{"exec"},
	Short:   "Inspect execution history",
	Long: `Inspect past and running test executions.

Every accepted run is recorded with its settings, status and consolidated
per-scenario results.

Commands:
  apiprobe executions ls              # List recent executions
  apiprobe executions show <id>       # Show one execution with its results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// executionsLsCmd lists executions
var executionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List executions",
	Long: `List executions, newest first, optionally filtered.

Status filters:
  pending   - Accepted, not yet started
  running   - Currently executing
  completed - Finished with results (scenarios may still have failed)
  failed    - The execution itself failed

Examples:
  apiprobe executions ls                       # Recent executions
  apiprobe executions ls --project payments    # One project
  apiprobe executions ls --status failed       # Only failed executions
  apiprobe executions ls --limit 50            # Show up to 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectFilter, _ := cmd.Flags().GetString("project")
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runExecutionsLs(projectFilter, statusFilter, limit)
	},
}

// executionsShowCmd shows one execution with its scenario results
var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution with its results",
	Long: `Display detailed information for an execution:
- Selectors it ran with (suite, test case, entity, tags)
- Settings (environment, workers, timeout, retries)
- Status, counters and timing
- Per-scenario results, outline examples unrolled

Example:
  apiprobe executions show 6f1c9a4e-0b7d-4f2e-9c3a-1d2e3f4a5b6c`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExecutionsShow(args[0])
	},
}

func init() {
	executionsLsCmd.Flags().String("project", "", "Filter by project")
	executionsLsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed)")
	executionsLsCmd.Flags().Int("limit", 20, "Maximum number of executions to display")

	ExecutionsCmd.AddCommand(executionsLsCmd)
	ExecutionsCmd.AddCommand(executionsShowCmd)
}

// runExecutionsLs lists executions
func runExecutionsLs(projectFilter, statusFilter string, limit int) error {
	if statusFilter != "" && !execution.IsValidStatus(statusFilter) {
		return errors.Newf("invalid status %q (valid: pending, running, completed, failed, cancelled)", statusFilter)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := execution.NewStore(database)
	executions, total, err := store.List(execution.ListFilter{
		ProjectID: projectFilter,
		Status:    statusFilter,
		Limit:     limit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to list executions")
	}

	if len(executions) == 0 {
		fmt.Println("No executions found")
		return nil
	}

	// Print table header
	fmt.Printf("%-10s %-18s %-10s %-10s %-10s %s\n", "EXECUTION", "PROJECT", "STATUS", "SCENARIOS", "DURATION", "CREATED")
	fmt.Printf("%-10s %-18s %-10s %-10s %-10s %s\n", "---------", "-------", "------", "---------", "--------", "-------")

	for _, exec := range executions {
		fmt.Printf("%-10s %-18s %-10s %-10s %-10s %s\n",
			shortExecutionID(exec.ExecutionID),
			truncate(exec.ProjectID, 18),
			exec.Status,
			scenarioCount(exec),
			formatDurationMS(exec.ExecutionTimeMS),
			exec.CreatedAt.Local().Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nShowing %d of %d execution(s)\n", len(executions), total)
	return nil
}

// runExecutionsShow displays one execution and its scenario results
func runExecutionsShow(executionID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := execution.NewStore(database)
	exec, err := store.GetByExecutionID(executionID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.Newf("execution %s not found", executionID)
		}
		return errors.Wrap(err, "failed to load execution")
	}

	fmt.Printf("Execution: %s\n", exec.ExecutionID)
	fmt.Printf("  Project: %s\n", exec.ProjectID)
	if exec.SuiteID != "" {
		fmt.Printf("  Suite: %s\n", exec.SuiteID)
	}
	if exec.TestCaseID != "" {
		fmt.Printf("  Test case: %s\n", exec.TestCaseID)
	}
	if exec.Entity != "" {
		target := exec.Entity
		if exec.Method != "" {
			target = fmt.Sprintf("%s (%s)", exec.Entity, exec.Method)
		}
		fmt.Printf("  Entity: %s\n", target)
	}
	if len(exec.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(exec.Tags, ", "))
	}
	if len(exec.ScenarioNames()) > 0 {
		fmt.Printf("  Scenarios: %s\n", strings.Join(exec.ScenarioNames(), ", "))
	}
	fmt.Printf("  Status: %s\n", exec.Status)
	if exec.TriggeredBy != "" {
		fmt.Printf("  Triggered by: %s\n", exec.TriggeredBy)
	}
	if exec.Revision != "" {
		fmt.Printf("  Revision: %s\n", exec.Revision)
	}
	if exec.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", exec.ErrorMessage)
	}
	fmt.Printf("\n")

	fmt.Printf("Scenarios: %d total, %d passed, %d failed\n",
		exec.TotalScenarios, exec.PassedScenarios, exec.FailedScenarios)
	fmt.Printf("Duration: %s\n", formatDurationMS(exec.ExecutionTimeMS))
	fmt.Printf("\n")

	fmt.Printf("Config:\n")
	fmt.Printf("  Environment: %s\n", exec.Config.Environment)
	fmt.Printf("  Workers: %d\n", exec.Config.Workers)
	if exec.Config.TimeoutSeconds > 0 {
		fmt.Printf("  Timeout: %ds\n", exec.Config.TimeoutSeconds)
	}
	if exec.Config.Retries > 0 {
		fmt.Printf("  Retries: %d\n", exec.Config.Retries)
	}
	fmt.Printf("\n")

	fmt.Printf("Created: %s\n", exec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if exec.StartedAt != nil {
		fmt.Printf("Started: %s\n", exec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if exec.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", exec.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}

	results := execution.NewResultStore(database)
	rows, err := results.ListByExecutionID(executionID)
	if err != nil {
		return errors.Wrap(err, "failed to load scenario results")
	}
	if len(rows) == 0 {
		return nil
	}

	fmt.Printf("\nResults:\n")
	for _, row := range rows {
		line := fmt.Sprintf("  %s %s (%s)", statusMark(row.Status), row.Name, formatDurationMS(row.DurationMS))
		if row.Status == scenario.StatusFailed && row.ErrorMessage != "" {
			line += ": " + firstLine(row.ErrorMessage)
		}
		fmt.Println(line)
	}

	return nil
}

// statusMark returns the one-character verdict for a scenario status
func statusMark(status scenario.Status) string {
	switch status {
	case scenario.StatusPassed:
		return "✓"
	case scenario.StatusFailed:
		return "✗"
	default:
		return "-"
	}
}

// scenarioCount renders passed/total for the list view, "-" before results exist
func scenarioCount(exec *execution.Execution) string {
	if exec.TotalScenarios == 0 && !exec.Status.Terminal() {
		return "-"
	}
	return fmt.Sprintf("%d/%d", exec.PassedScenarios, exec.TotalScenarios)
}

// formatDurationMS renders a millisecond count for display, "-" when unset
func formatDurationMS(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
