// Package runner builds and executes invocations of the external scenario
// runner binary. It knows how to translate an execution request into
// concrete flags, how to stream the child process's output line by line,
// and how to surface a non-zero exit as a typed failure while leaving
// report parsing to the caller.
package runner

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Environment variable names injected into the child process. Step
// implementations inside the runner read execution-scoped configuration
// from these instead of a side channel.
const (
	EnvExecutionID    = "APIPROBE_EXECUTION_ID"
	EnvEnvironment    = "APIPROBE_ENVIRONMENT"
	EnvEntity         = "APIPROBE_ENTITY"
	EnvMethod         = "APIPROBE_METHOD"
	EnvTestType       = "APIPROBE_TEST_TYPE"
	EnvTags           = "APIPROBE_TAGS"
	EnvScenarioNames  = "APIPROBE_SCENARIO_NAMES"
	EnvTimeoutSeconds = "APIPROBE_TIMEOUT_SECONDS"
)

// BuildInput is everything BuildCommand needs, already resolved: the
// runner binary from configuration, the execution request's filters, and
// the per-execution report path chosen by the orchestrator.
type BuildInput struct {
	Binary     string
	BaseArgs   []string
	WorkingDir string

	// FeaturePaths are the scenario sources to run, relative to
	// WorkingDir. Empty means the runner's default discovery.
	FeaturePaths []string

	Entity        string
	Method        string
	TestType      string
	Tags          []string
	ScenarioNames []string
	Environment   string
	ExecutionID   string

	Retries int
	Workers int
	// SupportsConcurrency reflects configuration: the worker count is
	// only forwarded as a flag when the configured runner is known to
	// accept one. It is always recorded on the CommandSpec for logging.
	SupportsConcurrency bool

	ReportPath string
	TimeoutSec int
}

// CommandSpec is a fully resolved runner invocation, ready for Runner.Run.
type CommandSpec struct {
	Binary     string
	Args       []string
	Dir        string
	Env        []string
	ReportPath string
	Workers    int
	TimeoutSec int
}

// String renders the invocation shell-quoted for logs.
func (s CommandSpec) String() string {
	return shellquote.Join(append([]string{s.Binary}, s.Args...)...)
}

// SplitArgs splits an operator-supplied argument string shell-style, so a
// configured `extra_args = "--strict --format pretty"` becomes separate argv
// entries with quoting respected.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid extra runner args %q: %w", s, err)
	}
	return args, nil
}

// BuildCommand translates an execution request into a concrete runner
// invocation. Pure: no filesystem or process side effects.
//
// Scenario-name filtering takes precedence over tag filtering: when
// specific scenario names are requested, one --name flag is emitted per
// name and tags are not forwarded at all. The machine-readable report is
// always requested, alongside the live event stream on stdout.
func BuildCommand(in BuildInput) CommandSpec {
	args := append([]string{}, in.BaseArgs...)
	args = append(args,
		"--format", "events",
		"--format", "cucumber:"+in.ReportPath,
	)

	if len(in.ScenarioNames) > 0 {
		for _, name := range in.ScenarioNames {
			args = append(args, "--name", name)
		}
	} else if len(in.Tags) > 0 {
		args = append(args, "--tags", strings.Join(in.Tags, " && "))
	}

	if in.Retries > 0 {
		args = append(args, "--retry", fmt.Sprintf("%d", in.Retries))
	}
	if in.Workers > 1 && in.SupportsConcurrency {
		args = append(args, "--concurrency", fmt.Sprintf("%d", in.Workers))
	}

	args = append(args, in.FeaturePaths...)

	return CommandSpec{
		Binary:     in.Binary,
		Args:       args,
		Dir:        in.WorkingDir,
		Env:        buildEnv(in),
		ReportPath: in.ReportPath,
		Workers:    in.Workers,
		TimeoutSec: in.TimeoutSec,
	}
}

func buildEnv(in BuildInput) []string {
	pairs := []struct {
		key   string
		value string
	}{
		{EnvExecutionID, in.ExecutionID},
		{EnvEnvironment, in.Environment},
		{EnvEntity, in.Entity},
		{EnvMethod, in.Method},
		{EnvTestType, in.TestType},
		{EnvTags, strings.Join(in.Tags, ",")},
		{EnvScenarioNames, strings.Join(in.ScenarioNames, ",")},
	}

	var env []string
	for _, p := range pairs {
		if p.value != "" {
			env = append(env, p.key+"="+p.value)
		}
	}
	if in.TimeoutSec > 0 {
		env = append(env, fmt.Sprintf("%s=%d", EnvTimeoutSeconds, in.TimeoutSec))
	}
	return env
}
