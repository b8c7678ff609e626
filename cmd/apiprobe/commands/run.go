package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/apiprobe/apiprobe/catalog"
	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/event"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/logger"
	"github.com/apiprobe/apiprobe/scenario"
	"github.com/apiprobe/apiprobe/workspace"
)

// RunCmd triggers one execution and follows it to completion
var RunCmd = &cobra.Command{
	Use:   "run PROJECT",
	Short: "Run tests for a project and wait for results",
	Long: `Trigger a test execution and follow it to completion.

Selectors narrow what runs; with none the whole project runs. The command
exits non-zero when the execution fails or any scenario fails, so it can
gate CI pipelines.

Examples:
  apiprobe run payments                           # Everything in the project
  apiprobe run payments --suite checkout          # One suite
  apiprobe run payments --entity user             # One entity's feature file
  apiprobe run payments --entity user --method POST
  apiprobe run payments --tags @smoke             # Tag selection
  apiprobe run payments --scenario 'Create user'  # Named scenarios
  apiprobe run payments --workers 4 --timeout 600`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runSuite          string
	runTestCase       string
	runEntity         string
	runMethod         string
	runTestType       string
	runTags           []string
	runScenarios      []string
	runEnvironment    string
	runWorkers        int
	runTimeout        int
	runRetries        int
	runParallel       bool
	runKeepReports    bool
	runKeepReportsSet bool
)

func init() {
	RunCmd.Flags().StringVar(&runSuite, "suite", "", "Run only this test suite")
	RunCmd.Flags().StringVar(&runTestCase, "test-case", "", "Run only this test case")
	RunCmd.Flags().StringVar(&runEntity, "entity", "", "Run tests for one entity (resolved via the workspace manifest)")
	RunCmd.Flags().StringVar(&runMethod, "method", "", "Filter by HTTP method (requires --entity)")
	RunCmd.Flags().StringVar(&runTestType, "test-type", "", "Filter by test type tag (e.g. positive, negative)")
	RunCmd.Flags().StringSliceVar(&runTags, "tags", nil, "Cucumber tags to select")
	RunCmd.Flags().StringSliceVar(&runScenarios, "scenario", nil, "Scenario display names to run")
	RunCmd.Flags().StringVar(&runEnvironment, "env", "", "Target environment (default from config)")
	RunCmd.Flags().IntVar(&runWorkers, "workers", 0, "Parallel scenario workers (default from config)")
	RunCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Wall-clock timeout in seconds (default from config)")
	RunCmd.Flags().IntVar(&runRetries, "retries", 0, "Retry count for flaky scenarios (default from config)")
	RunCmd.Flags().BoolVar(&runParallel, "parallel", false, "Force parallel execution")
	RunCmd.Flags().BoolVar(&runKeepReports, "keep-reports", false, "Keep the report directory after parsing")
}

// runRequest assembles the execution request from the command flags
func runRequest(projectID string, verbosity int) execution.Request {
	req := execution.Request{
		ProjectID:      projectID,
		SuiteID:        runSuite,
		TestCaseID:     runTestCase,
		Entity:         runEntity,
		Method:         runMethod,
		TestType:       runTestType,
		Tags:           runTags,
		ScenarioNames:  runScenarios,
		Environment:    runEnvironment,
		Verbose:        verbosity >= logger.VerbosityDebug,
		Parallel:       runParallel,
		Workers:        runWorkers,
		TimeoutSeconds: runTimeout,
		Retries:        runRetries,
		TriggeredBy:    "cli",
	}
	if runKeepReportsSet {
		keep := runKeepReports
		req.KeepReports = &keep
	}
	return req
}

func runRun(cmd *cobra.Command, args []string) error {
	projectID := args[0]
	verbosity, _ := cmd.Flags().GetCount("verbose")
	logger.ApplyVerbosity(verbosity)

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	publisher := event.NewPublisher(logger.Logger)
	ws := workspace.NewManager(cfg.GetWorkspaceRoot(), cfg.Workspace.Sources, logger.Logger)
	execStore := execution.NewStore(database)
	resultStore := execution.NewResultStore(database)
	catalogStore := catalog.NewStore(database)

	orch, err := execution.NewDefaultOrchestrator(execStore, resultStore, ws, catalogStore, publisher, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to create orchestrator")
	}

	runKeepReportsSet = cmd.Flags().Changed("keep-reports")

	// Subscribe before triggering so no progress event slips past
	events, unsubscribe := publisher.Subscribe(projectID)
	defer unsubscribe()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Running tests for %s...", projectID))

	receipt, err := orch.Execute(cmd.Context(), runRequest(projectID, verbosity))
	if err != nil {
		spinner.Fail("Execution rejected")
		return err
	}
	logger.Infow("Execution accepted",
		"execution_id", receipt.ExecutionID,
		"affected_test_cases", receipt.AffectedTestCases)

	// The run detaches into the background; Wait blocks until it reaches a
	// terminal state. Events only drive the spinner text.
	waitDone := make(chan struct{})
	go func() {
		orch.Wait()
		close(waitDone)
	}()

	for running := true; running; {
		select {
		case ev := <-events:
			if logger.ShouldLogTrace(verbosity) {
				logger.Debugw("Event frame",
					"execution_id", ev.ExecutionID,
					"kind", ev.Kind,
					"status", ev.Status,
					"message", ev.Message)
			}
			if ev.ExecutionID != receipt.ExecutionID {
				continue
			}
			if ev.Kind == event.KindProgress && ev.Progress != nil {
				spinner.UpdateText(fmt.Sprintf("Running tests for %s... %d%%", projectID, *ev.Progress))
			}
		case <-waitDone:
			running = false
		}
	}

	exec, err := execStore.GetByExecutionID(receipt.ExecutionID)
	if err != nil {
		spinner.Fail("Execution finished but could not be read back")
		return errors.Wrap(err, "failed to load execution")
	}

	rows, err := resultStore.ListByExecutionID(receipt.ExecutionID)
	if err != nil {
		logger.Warnw("Failed to load scenario results", "error", err)
	}

	printRunOutcome(spinner, exec, rows)

	if exec.Status != execution.StatusCompleted {
		return errors.Newf("execution %s %s: %s",
			shortExecutionID(exec.ExecutionID), exec.Status, exec.ErrorMessage)
	}
	if exec.FailedScenarios > 0 {
		return errors.Newf("%d of %d scenarios failed", exec.FailedScenarios, exec.TotalScenarios)
	}
	return nil
}

// printRunOutcome stops the spinner with the verdict and renders the
// per-scenario table
func printRunOutcome(spinner *pterm.SpinnerPrinter, exec *execution.Execution, rows []*execution.ResultRow) {
	elapsed := time.Duration(exec.ExecutionTimeMS) * time.Millisecond
	summary := fmt.Sprintf("%d/%d scenarios passed in %s",
		exec.PassedScenarios, exec.TotalScenarios, elapsed.Round(time.Millisecond))

	switch {
	case exec.Status == execution.StatusCompleted && exec.FailedScenarios == 0:
		spinner.Success(summary)
	case exec.Status == execution.StatusCompleted:
		spinner.Fail(summary)
	default:
		spinner.Fail(fmt.Sprintf("Execution %s: %s", exec.Status, exec.ErrorMessage))
	}

	if len(rows) == 0 {
		return
	}

	table := pterm.TableData{{"Status", "Scenario", "Duration", "Feature"}}
	for _, row := range rows {
		table = append(table, []string{
			statusCell(row.Status),
			row.Name,
			(time.Duration(row.DurationMS) * time.Millisecond).String(),
			row.Feature,
		})
	}
	pterm.Println()
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		logger.Debugw("Failed to render results table", "error", err)
	}

	// Failure details after the table so they are the last thing on screen
	for _, row := range rows {
		if row.Status == scenario.StatusFailed && row.ErrorMessage != "" {
			pterm.Error.Printf("%s: %s\n", row.Name, firstLine(row.ErrorMessage))
		}
	}

	fmt.Printf("\nExecution ID: %s\n", exec.ExecutionID)
}

// statusCell colors a scenario status for table output
func statusCell(status scenario.Status) string {
	switch status {
	case scenario.StatusPassed:
		return pterm.FgGreen.Sprint(status)
	case scenario.StatusFailed:
		return pterm.FgRed.Sprint(status)
	default:
		return pterm.FgYellow.Sprint(status)
	}
}

// firstLine trims a multi-line error down to its first line
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// shortExecutionID truncates a UUID for display
func shortExecutionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
