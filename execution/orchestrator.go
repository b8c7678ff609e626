package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apiprobe/apiprobe/catalog"
	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/event"
	"github.com/apiprobe/apiprobe/report"
	"github.com/apiprobe/apiprobe/runner"
	"github.com/apiprobe/apiprobe/scenario"
	"github.com/apiprobe/apiprobe/workspace"
)

// ProcessRunner launches a prepared runner invocation. Satisfied by
// *runner.Runner.
type ProcessRunner interface {
	Run(ctx context.Context, spec runner.CommandSpec, onLine func(string)) error
}

// ReportParser reads the report a run left behind. Satisfied by
// *report.Parser. Never errors: a missing or broken report is an empty
// result set.
type ReportParser interface {
	Parse(reportPath string) []scenario.Result
}

// EventPublisher fans lifecycle events out to subscribers. Satisfied by
// *event.Publisher.
type EventPublisher interface {
	Publish(event.Event)
}

// TestCaseRegistry receives per-scenario outcomes after each run, keyed by
// scenario display name. Satisfied by *catalog.Store.
type TestCaseRegistry interface {
	FindTestCaseByName(projectID, name string) (*catalog.TestCase, error)
	UpdateLastRun(tc *catalog.TestCase, run catalog.LastRun) error
	CountTestCases(projectID string, filter catalog.CaseFilter) (int, error)
}

// TestSuiteRegistry receives aggregate run stats when an execution ran under
// a suite. Satisfied by *catalog.Store.
type TestSuiteRegistry interface {
	UpdateExecutionStats(projectID, suiteID string, stats catalog.SuiteStats) error
}

// BugTracker files bugs for failed scenarios. Entirely best-effort; nil
// disables it.
type BugTracker interface {
	CreateBugsFromResults(projectID, executionID string, results []scenario.Result) error
}

// Orchestrator owns the execution lifecycle: it accepts requests, detaches
// the actual run into the background, and guarantees that every accepted
// execution reaches a terminal state with its results persisted before the
// terminal event goes out.
type Orchestrator struct {
	store     *Store
	results   *ResultStore
	workspace *workspace.Manager
	runner    ProcessRunner
	parser    ReportParser
	publisher EventPublisher
	testCases TestCaseRegistry  // optional
	suites    TestSuiteRegistry // optional
	bugs      BugTracker        // optional
	config    func() *config.Config
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[string]*runner.Listener
	wg       sync.WaitGroup
}

// OrchestratorOptions wires an Orchestrator. Store, Results, Workspace,
// Runner, Parser and Publisher are required; the registries and bug tracker
// are optional, Config defaults to the live config snapshot.
type OrchestratorOptions struct {
	Store     *Store
	Results   *ResultStore
	Workspace *workspace.Manager
	Runner    ProcessRunner
	Parser    ReportParser
	Publisher EventPublisher
	TestCases TestCaseRegistry
	Suites    TestSuiteRegistry
	Bugs      BugTracker
	Config    func() *config.Config
	Logger    *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator after validating required wiring
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("orchestrator requires an execution store")
	}
	if opts.Results == nil {
		return nil, errors.New("orchestrator requires a result store")
	}
	if opts.Workspace == nil {
		return nil, errors.New("orchestrator requires a workspace manager")
	}
	if opts.Runner == nil {
		return nil, errors.New("orchestrator requires a process runner")
	}
	if opts.Parser == nil {
		return nil, errors.New("orchestrator requires a report parser")
	}
	if opts.Publisher == nil {
		return nil, errors.New("orchestrator requires an event publisher")
	}
	if opts.Config == nil {
		opts.Config = config.Current
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	return &Orchestrator{
		store:     opts.Store,
		results:   opts.Results,
		workspace: opts.Workspace,
		runner:    opts.Runner,
		parser:    opts.Parser,
		publisher: opts.Publisher,
		testCases: opts.TestCases,
		suites:    opts.Suites,
		bugs:      opts.Bugs,
		config:    opts.Config,
		logger:    opts.Logger,
		sessions:  make(map[string]*runner.Listener),
	}, nil
}

// NewDefaultOrchestrator wires an orchestrator with the concrete runner and
// parser implementations and the catalog store as both registries
func NewDefaultOrchestrator(store *Store, results *ResultStore, ws *workspace.Manager,
	catalogStore *catalog.Store, publisher EventPublisher, logger *zap.SugaredLogger) (*Orchestrator, error) {
	return NewOrchestrator(OrchestratorOptions{
		Store:     store,
		Results:   results,
		Workspace: ws,
		Runner:    runner.NewRunner(logger),
		Parser:    report.NewParser(logger),
		Publisher: publisher,
		TestCases: catalogStore,
		Suites:    catalogStore,
		Logger:    logger,
	})
}

// Execute accepts a request, persists a Pending execution, publishes the
// started event and detaches the run into the background. The returned
// Receipt is the caller's only synchronous answer; everything after arrives
// via events or polling.
//
// The context covers request admission only. The background run is
// deliberately detached and governed by the execution's own timeout.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Receipt, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "request context cancelled")
	}

	cfg := o.config()
	exec := buildExecution(req, cfg)
	exec.ReportPath = o.workspace.ReportPath(exec.ProjectID, exec.ExecutionID)

	if err := o.store.Create(exec); err != nil {
		return nil, errors.Wrap(err, "failed to create execution record")
	}

	affected := o.countAffectedTestCases(exec)

	o.logger.Infow("Execution accepted",
		"execution_id", exec.ExecutionID,
		"project_id", exec.ProjectID,
		"entity", exec.Entity,
		"scenario_names", exec.ScenarioName,
		"workers", exec.Config.Workers,
		"affected_test_cases", affected,
	)

	o.publisher.Publish(event.Event{
		ExecutionID: exec.ExecutionID,
		Kind:        event.KindStarted,
		Status:      string(exec.Status),
		ProjectID:   exec.ProjectID,
		Message:     "execution accepted",
		Timestamp:   time.Now().UTC(),
		Entity:      exec.Entity,
		SuiteID:     exec.SuiteID,
		TestCaseID:  exec.TestCaseID,
	})

	o.wg.Add(1)
	go o.run(exec)

	return &Receipt{
		ExecutionID:       exec.ExecutionID,
		Status:            exec.Status,
		AffectedTestCases: affected,
	}, nil
}

// Wait blocks until all in-flight background runs finish. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// LiveResults returns the live listener snapshot for a running execution.
// ok is false once the run finished (or never existed); callers fall back
// to persisted rows.
func (o *Orchestrator) LiveResults(executionID string) (scenarios []runner.LiveScenario, progress runner.Progress, ok bool) {
	o.mu.Lock()
	listener := o.sessions[executionID]
	o.mu.Unlock()
	if listener == nil {
		return nil, runner.Progress{}, false
	}
	return listener.Scenarios(), listener.Snapshot(), true
}

// run is the detached background task. It must reach a terminal state on
// every path, including panics.
func (o *Orchestrator) run(exec *Execution) {
	defer o.wg.Done()
	defer o.closeSession(exec.ExecutionID)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorw("Execution panicked",
				"execution_id", exec.ExecutionID,
				"panic", r,
			)
			o.forceFailed(exec, errors.Newf("internal error: %v", r))
		}
	}()

	ctx := context.Background()

	runErr := o.runProcess(ctx, exec)
	if runErr != nil {
		o.logger.Warnw("Runner did not complete cleanly",
			"execution_id", exec.ExecutionID,
			"error", runErr,
		)
	}

	// The report is parsed regardless of how the process ended. A failed or
	// killed run often leaves a partial report; whatever parsed is kept.
	results := o.parser.Parse(exec.ReportPath)

	if err := o.reconcile(exec, results, runErr); err != nil {
		o.forceFailed(exec, err)
		return
	}

	o.publishTerminal(exec, results)
	o.cleanupReports(exec)
}

// runProcess prepares the workspace, marks the execution Running and drives
// the runner process to completion. Returned errors describe either setup
// failures or the process outcome; both leave report parsing to the caller.
func (o *Orchestrator) runProcess(ctx context.Context, exec *Execution) error {
	if o.workspace.HasRemoteSource(exec.ProjectID) {
		if err := o.workspace.SyncRemote(ctx, exec.ProjectID); err != nil {
			return errors.Wrap(err, "workspace sync failed")
		}
	}

	projectDir, err := o.workspace.EnsureProject(exec.ProjectID)
	if err != nil {
		return errors.Wrap(err, "workspace setup failed")
	}

	exec.Revision = o.workspace.Revision(exec.ProjectID)

	target, err := o.workspace.ResolveTarget(exec.ProjectID, exec.Entity)
	if err != nil {
		return errors.Wrap(err, "target resolution failed")
	}

	if err := exec.Start(); err != nil {
		return err
	}
	if err := o.store.Update(exec); err != nil {
		return errors.Wrap(err, "failed to persist running state")
	}

	cfg := o.config()
	baseArgs, err := runner.SplitArgs(cfg.Runner.ExtraArgs)
	if err != nil {
		return err
	}

	if exec.Config.Workers > 1 {
		if warning := runner.MemoryPressureWarning(exec.Config.Workers); warning != "" {
			o.logger.Warnw("Worker count may exceed available memory",
				"execution_id", exec.ExecutionID,
				"workers", exec.Config.Workers,
				"detail", warning,
			)
		}
	}

	spec := runner.BuildCommand(runner.BuildInput{
		Binary:              cfg.GetRunnerBinary(),
		BaseArgs:            baseArgs,
		WorkingDir:          projectDir,
		FeaturePaths:        target.FeaturePaths,
		Entity:              exec.Entity,
		Method:              exec.Method,
		TestType:            exec.TestType,
		Tags:                mergeTags(exec.Tags, target.Tags),
		ScenarioNames:       exec.ScenarioNames(),
		Environment:         exec.Config.Environment,
		ExecutionID:         exec.ExecutionID,
		Retries:             exec.Config.Retries,
		Workers:             exec.Config.Workers,
		SupportsConcurrency: cfg.Runner.SupportsConcurrency,
		ReportPath:          exec.ReportPath,
		TimeoutSec:          exec.Config.TimeoutSeconds,
	})

	listener := runner.NewListener(func(p runner.Progress) {
		o.publishProgress(exec, p)
	})
	o.trackSession(exec.ExecutionID, listener)

	o.logger.Infow("Launching runner",
		"execution_id", exec.ExecutionID,
		"command", spec.String(),
		"dir", spec.Dir,
	)

	return o.runner.Run(ctx, spec, listener.HandleLine)
}

// reconcile folds the run outcome into storage: counters from the parsed
// results, terminal status from the process outcome, result rows unrolled
// per instance. Rows commit before the status update so a consumer reacting
// to the terminal event always finds them; registry propagation afterwards
// is best-effort and never fails the execution.
func (o *Orchestrator) reconcile(exec *Execution, results []scenario.Result, runErr error) error {
	totals := scenario.Tally(results)
	exec.TotalScenarios = totals.Scenarios
	exec.PassedScenarios = totals.Passed
	exec.FailedScenarios = totals.Failed
	exec.ExecutionTimeMS = totals.DurationMS

	if err := o.results.SaveResults(exec.ExecutionID, exec.ProjectID, results); err != nil {
		return err
	}

	if runErr != nil {
		if err := exec.Fail(runErr.Error()); err != nil {
			return err
		}
	} else {
		if err := exec.Complete(); err != nil {
			return err
		}
	}

	if err := o.store.Update(exec); err != nil {
		return errors.Wrap(err, "failed to persist execution outcome")
	}

	o.propagateToCatalog(exec, results)
	o.updateSuiteStats(exec, totals)
	o.fileBugs(exec, results)
	return nil
}

// forceFailed is the last line of defense: whatever went wrong, the
// execution must not stay Running. The guard on Fail is bypassed here
// because a reconciliation error can arrive after Complete already ran.
func (o *Orchestrator) forceFailed(exec *Execution, cause error) {
	o.logger.Errorw("Execution failed during reconciliation",
		"execution_id", exec.ExecutionID,
		"error", cause,
	)

	if exec.Status != StatusFailed {
		now := time.Now().UTC()
		exec.Status = StatusFailed
		exec.ErrorMessage = cause.Error()
		if exec.CompletedAt == nil {
			exec.CompletedAt = &now
		}
		exec.UpdatedAt = now
	}

	if err := o.store.Update(exec); err != nil {
		o.logger.Errorw("Failed to persist failed state",
			"execution_id", exec.ExecutionID,
			"error", err,
		)
	}

	o.publisher.Publish(event.Event{
		ExecutionID: exec.ExecutionID,
		Kind:        event.KindFailed,
		Status:      string(StatusFailed),
		ProjectID:   exec.ProjectID,
		Message:     cause.Error(),
		Timestamp:   time.Now().UTC(),
		Entity:      exec.Entity,
		SuiteID:     exec.SuiteID,
		TestCaseID:  exec.TestCaseID,
	})
}

func (o *Orchestrator) publishTerminal(exec *Execution, results []scenario.Result) {
	totals := scenario.Tally(results)

	e := event.Event{
		ExecutionID: exec.ExecutionID,
		Status:      string(exec.Status),
		ProjectID:   exec.ProjectID,
		Timestamp:   time.Now().UTC(),
		Entity:      exec.Entity,
		SuiteID:     exec.SuiteID,
		TestCaseID:  exec.TestCaseID,
		Totals:      &totals,
	}

	if exec.Status == StatusFailed {
		e.Kind = event.KindFailed
		e.Message = exec.ErrorMessage
	} else {
		e.Kind = event.KindCompleted
		e.Message = fmt.Sprintf("%d scenarios: %d passed, %d failed, %d skipped",
			totals.Scenarios, totals.Passed, totals.Failed, totals.Skipped)
		e.Results = results
	}

	o.publisher.Publish(e)
}

func (o *Orchestrator) publishProgress(exec *Execution, p runner.Progress) {
	var percent *int
	if p.ScenariosStarted > 0 {
		v := p.ScenariosFinished * 100 / p.ScenariosStarted
		if v > 99 {
			v = 99 // terminal events own 100
		}
		percent = &v
	}

	o.publisher.Publish(event.Event{
		ExecutionID: exec.ExecutionID,
		Kind:        event.KindProgress,
		Status:      string(StatusRunning),
		ProjectID:   exec.ProjectID,
		Message:     fmt.Sprintf("%d/%d scenarios finished", p.ScenariosFinished, p.ScenariosStarted),
		Progress:    percent,
		Timestamp:   time.Now().UTC(),
		Entity:      exec.Entity,
		SuiteID:     exec.SuiteID,
		TestCaseID:  exec.TestCaseID,
	})
}

// propagateToCatalog pushes each logical scenario's outcome to the test
// case registry by display name. Scenarios without a registered case are
// skipped; individual propagation failures are logged, never fatal.
func (o *Orchestrator) propagateToCatalog(exec *Execution, results []scenario.Result) {
	if o.testCases == nil {
		return
	}

	ranAt := time.Now().UTC()
	if exec.CompletedAt != nil {
		ranAt = *exec.CompletedAt
	}

	for _, result := range results {
		tc, err := o.testCases.FindTestCaseByName(exec.ProjectID, result.Name)
		if err != nil {
			if errors.IsNotFoundError(err) {
				o.logger.Debugw("No registered test case for scenario",
					"project_id", exec.ProjectID,
					"scenario", result.Name,
				)
			} else {
				o.logger.Warnw("Test case lookup failed",
					"project_id", exec.ProjectID,
					"scenario", result.Name,
					"error", err,
				)
			}
			continue
		}

		run := catalog.LastRun{
			Status:      string(result.Status),
			ExecutionID: exec.ExecutionID,
			At:          ranAt,
			Detail:      runDetail(result),
		}
		if err := o.testCases.UpdateLastRun(tc, run); err != nil {
			o.logger.Warnw("Failed to propagate scenario outcome",
				"project_id", exec.ProjectID,
				"scenario", result.Name,
				"error", err,
			)
		}
	}
}

// runDetail converts a consolidated result into catalog detail, carrying
// per-example outcomes for outline scenarios
func runDetail(result scenario.Result) *catalog.RunDetail {
	detail := &catalog.RunDetail{
		Status:       string(result.Status),
		DurationMS:   result.DurationMS,
		ErrorMessage: result.ErrorMessage,
	}
	if result.ExampleCount != nil {
		detail.ExampleCount = *result.ExampleCount
	}
	for _, instance := range result.IndividualExecutions {
		detail.Examples = append(detail.Examples, catalog.ExampleOutcome{
			Name:       instance.Name,
			Index:      instance.ExecutionIndex,
			Status:     string(instance.Status),
			DurationMS: instance.DurationMS,
			Error:      instance.ErrorMessage,
		})
	}
	return detail
}

func (o *Orchestrator) updateSuiteStats(exec *Execution, totals scenario.Totals) {
	if o.suites == nil || exec.SuiteID == "" {
		return
	}

	ranAt := time.Now().UTC()
	if exec.CompletedAt != nil {
		ranAt = *exec.CompletedAt
	}

	stats := catalog.SuiteStats{
		TotalCases:      totals.Scenarios,
		Passed:          totals.Passed,
		Failed:          totals.Failed,
		ExecutionTimeMS: totals.DurationMS,
		LastExecutionAt: ranAt,
	}
	if err := o.suites.UpdateExecutionStats(exec.ProjectID, exec.SuiteID, stats); err != nil {
		o.logger.Warnw("Failed to update suite stats",
			"project_id", exec.ProjectID,
			"suite_id", exec.SuiteID,
			"error", err,
		)
	}
}

func (o *Orchestrator) fileBugs(exec *Execution, results []scenario.Result) {
	if o.bugs == nil {
		return
	}

	var failed []scenario.Result
	for _, r := range results {
		if r.Status == scenario.StatusFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}

	if err := o.bugs.CreateBugsFromResults(exec.ProjectID, exec.ExecutionID, failed); err != nil {
		o.logger.Warnw("Failed to forward failures to bug tracker",
			"project_id", exec.ProjectID,
			"execution_id", exec.ExecutionID,
			"failed_scenarios", len(failed),
			"error", err,
		)
	}
}

func (o *Orchestrator) cleanupReports(exec *Execution) {
	if exec.Config.KeepReports {
		o.logger.Debugw("Keeping report directory",
			"execution_id", exec.ExecutionID,
			"report_path", exec.ReportPath,
		)
		return
	}
	if err := o.workspace.CleanupReports(exec.ProjectID, exec.ExecutionID); err != nil {
		o.logger.Warnw("Failed to remove report directory",
			"execution_id", exec.ExecutionID,
			"error", err,
		)
	}
}

// countAffectedTestCases sizes the run for the receipt. Best-effort: a
// registry error degrades to zero, never blocks admission.
func (o *Orchestrator) countAffectedTestCases(exec *Execution) int {
	if o.testCases == nil {
		return 0
	}

	names := exec.ScenarioNames()
	if len(names) > 0 {
		count := 0
		for _, name := range names {
			if _, err := o.testCases.FindTestCaseByName(exec.ProjectID, name); err == nil {
				count++
			}
		}
		return count
	}

	count, err := o.testCases.CountTestCases(exec.ProjectID, catalog.CaseFilter{
		TestCaseID: exec.TestCaseID,
		Entity:     exec.Entity,
		Method:     exec.Method,
		TestType:   exec.TestType,
	})
	if err != nil {
		o.logger.Warnw("Failed to count affected test cases",
			"project_id", exec.ProjectID,
			"error", err,
		)
		return 0
	}
	return count
}

func (o *Orchestrator) trackSession(executionID string, listener *runner.Listener) {
	o.mu.Lock()
	o.sessions[executionID] = listener
	o.mu.Unlock()
}

func (o *Orchestrator) closeSession(executionID string) {
	o.mu.Lock()
	delete(o.sessions, executionID)
	o.mu.Unlock()
}

// mergeTags appends manifest tags the request did not already carry
func mergeTags(requestTags, manifestTags []string) []string {
	if len(manifestTags) == 0 {
		return requestTags
	}
	seen := make(map[string]bool, len(requestTags))
	merged := append([]string{}, requestTags...)
	for _, t := range requestTags {
		seen[t] = true
	}
	for _, t := range manifestTags {
		if !seen[t] {
			merged = append(merged, t)
			seen[t] = true
		}
	}
	return merged
}
