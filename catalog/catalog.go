// Package catalog is the registry of known test cases and suites. Execution
// outcomes are propagated into it after each run, keyed by scenario display
// name, so the catalog always shows the latest result per test case.
package catalog

import (
	"time"
)

// TestCase is a registered, individually addressable test case.
// Name must match the scenario display name the runner reports; that name is
// the correlation key between executions and the catalog.
type TestCase struct {
	ID        int64     `json:"-"`
	CaseID    string    `json:"case_id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Entity    string    `json:"entity"`
	Method    string    `json:"method,omitempty"`
	TestType  string    `json:"test_type,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LastRunStatus   string     `json:"last_run_status,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID string     `json:"last_execution_id,omitempty"`
	LastRunDetail   *RunDetail `json:"last_run_detail,omitempty"`
}

// TestSuite groups test cases and carries aggregate stats from the most
// recent execution that ran under the suite
type TestSuite struct {
	ID              int64      `json:"-"`
	SuiteID         string     `json:"suite_id"`
	ProjectID       string     `json:"project_id"`
	Name            string     `json:"name"`
	TotalCases      int        `json:"total_cases"`
	Passed          int        `json:"passed"`
	Failed          int        `json:"failed"`
	ExecutionTimeMS int64      `json:"execution_time_ms"`
	LastExecutionAt *time.Time `json:"last_execution_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RunDetail is the outline-aware outcome of a test case's most recent run.
// For scenario outlines it carries one entry per example instance so the
// catalog can show which examples failed, not just the aggregate.
type RunDetail struct {
	Status       string           `json:"status"`
	DurationMS   int64            `json:"duration_ms"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ExampleCount int              `json:"example_count,omitempty"`
	Examples     []ExampleOutcome `json:"examples,omitempty"`
}

// ExampleOutcome is one example instance's outcome within an outline run
type ExampleOutcome struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// LastRun carries one execution's outcome into the catalog
type LastRun struct {
	Status      string
	ExecutionID string
	At          time.Time
	Detail      *RunDetail
}

// CaseFilter narrows which test cases an execution is considered to affect
type CaseFilter struct {
	TestCaseID string // matches case_id exactly
	Entity     string
	Method     string
	TestType   string
}

// SuiteStats is the aggregate outcome written back to a suite after a run
type SuiteStats struct {
	TotalCases      int
	Passed          int
	Failed          int
	ExecutionTimeMS int64
	LastExecutionAt time.Time
}
