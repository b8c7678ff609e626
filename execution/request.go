package execution

import (
	"strings"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
)

// Request describes what a caller wants executed. Everything except
// ProjectID is optional; omitted settings fall back to config defaults.
type Request struct {
	ProjectID     string   `json:"project_id"`
	SuiteID       string   `json:"suite_id,omitempty"`
	TestCaseID    string   `json:"test_case_id,omitempty"`
	Entity        string   `json:"entity,omitempty"`
	Method        string   `json:"method,omitempty"`
	TestType      string   `json:"test_type,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ScenarioNames []string `json:"scenario_names,omitempty"`

	Environment    string `json:"environment,omitempty"`
	Verbose        bool   `json:"verbose,omitempty"`
	KeepReports    *bool  `json:"keep_reports,omitempty"` // nil = config default
	Parallel       bool   `json:"parallel,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Retries        int    `json:"retries,omitempty"`

	TriggeredBy string `json:"triggered_by,omitempty"`
}

// Validate checks the request before any record is created
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.NewInvalidRequestError("project_id is required")
	}
	if r.Workers < 0 {
		return errors.NewInvalidRequestError("workers must be >= 0, got %d", r.Workers)
	}
	if r.TimeoutSeconds < 0 {
		return errors.NewInvalidRequestError("timeout_seconds must be >= 0, got %d", r.TimeoutSeconds)
	}
	if r.Retries < 0 {
		return errors.NewInvalidRequestError("retries must be >= 0, got %d", r.Retries)
	}
	for _, name := range r.ScenarioNames {
		if strings.TrimSpace(name) == "" {
			return errors.NewInvalidRequestError("scenario names must not be blank")
		}
	}
	return nil
}

// Receipt acknowledges an accepted execution request. The execution itself
// runs in the background; callers follow it via events or polling.
type Receipt struct {
	ExecutionID       string `json:"execution_id"`
	Status            Status `json:"status"`
	AffectedTestCases int    `json:"affected_test_cases"`
}

// buildExecution materializes the Pending aggregate from a validated
// request, filling omitted settings from the config snapshot
func buildExecution(r Request, cfg *config.Config) *Execution {
	exec := New(r.ProjectID)
	exec.SuiteID = r.SuiteID
	exec.TestCaseID = r.TestCaseID
	exec.Entity = r.Entity
	exec.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	exec.TestType = r.TestType
	exec.Tags = r.Tags
	exec.ScenarioName = strings.Join(r.ScenarioNames, ",")
	exec.TriggeredBy = r.TriggeredBy

	environment := r.Environment
	if environment == "" {
		environment = cfg.Execution.Environment
	}

	workers := r.Workers
	if workers <= 0 {
		workers = cfg.Execution.Workers
	}
	if r.Parallel && workers < 2 {
		workers = 2
	}
	if workers < 1 {
		workers = 1
	}

	keepReports := cfg.Execution.KeepReports
	if r.KeepReports != nil {
		keepReports = *r.KeepReports
	}

	timeout := r.TimeoutSeconds
	if timeout <= 0 {
		timeout = cfg.Execution.TimeoutSeconds
	}

	retries := r.Retries
	if retries <= 0 {
		retries = cfg.Execution.Retries
	}

	exec.Config = RunConfig{
		Environment:    environment,
		Verbose:        r.Verbose,
		KeepReports:    keepReports,
		Parallel:       r.Parallel || workers > 1,
		Workers:        workers,
		TimeoutSeconds: timeout,
		Retries:        retries,
	}
	return exec
}
