// Package execution owns the test execution lifecycle: the persisted
// Execution aggregate, its status machine, result storage, and the
// orchestrator that drives the runner and reconciles its report.
package execution

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apiprobe/apiprobe/errors"
)

// Status represents the current state of an execution
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once the execution can no longer change state
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RunConfig is the per-execution settings bag, persisted as JSON alongside
// the execution so historical rows show exactly how they ran
type RunConfig struct {
	Environment    string `json:"environment,omitempty"`
	Verbose        bool   `json:"verbose,omitempty"`
	KeepReports    bool   `json:"keep_reports,omitempty"`
	Parallel       bool   `json:"parallel,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Retries        int    `json:"retries,omitempty"`
}

// Execution is one end-to-end runner invocation. ExecutionID is the
// externally visible identifier; the integer ID stays internal to storage.
type Execution struct {
	ID           int64     `json:"-"`
	ExecutionID  string    `json:"execution_id"`
	ProjectID    string    `json:"project_id"`
	SuiteID      string    `json:"suite_id,omitempty"`
	TestCaseID   string    `json:"test_case_id,omitempty"`
	Entity       string    `json:"entity,omitempty"`
	Method       string    `json:"method,omitempty"`
	TestType     string    `json:"test_type,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	ScenarioName string    `json:"scenario_name,omitempty"` // comma-separated display names
	Config       RunConfig `json:"config"`
	Status       Status    `json:"status"`

	TotalScenarios  int   `json:"total_scenarios"`
	PassedScenarios int   `json:"passed_scenarios"`
	FailedScenarios int   `json:"failed_scenarios"`
	ExecutionTimeMS int64 `json:"execution_time_ms"`

	ErrorMessage string `json:"error_message,omitempty"`
	TriggeredBy  string `json:"triggered_by,omitempty"`
	ReportPath   string `json:"report_path,omitempty"`
	Revision     string `json:"revision,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New creates a Pending execution for a project
func New(projectID string) *Execution {
	now := time.Now().UTC()
	return &Execution{
		ExecutionID: uuid.NewString(),
		ProjectID:   projectID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ScenarioNames splits the comma-separated scenario name list
func (e *Execution) ScenarioNames() []string {
	if e.ScenarioName == "" {
		return nil
	}
	parts := strings.Split(e.ScenarioName, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Start marks the execution as running
func (e *Execution) Start() error {
	if e.Status != StatusPending {
		return errors.Newf("cannot start execution in status %q", e.Status)
	}
	now := time.Now().UTC()
	e.Status = StatusRunning
	e.StartedAt = &now
	e.UpdatedAt = now
	return nil
}

// Complete marks the execution as completed
func (e *Execution) Complete() error {
	if e.Status != StatusRunning {
		return errors.Newf("cannot complete execution in status %q", e.Status)
	}
	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now
	return nil
}

// Fail marks the execution as failed with an error message.
// Legal from Pending as well as Running: setup failures never reached Start.
func (e *Execution) Fail(msg string) error {
	if e.Status.Terminal() {
		return errors.Newf("cannot fail execution in status %q", e.Status)
	}
	now := time.Now().UTC()
	e.Status = StatusFailed
	e.ErrorMessage = msg
	e.CompletedAt = &now
	e.UpdatedAt = now
	return nil
}

// Cancel marks the execution as cancelled. No orchestrator path enters this
// state today; it exists for an external cancel operation.
func (e *Execution) Cancel(reason string) error {
	if e.Status.Terminal() {
		return errors.Newf("cannot cancel execution in status %q", e.Status)
	}
	now := time.Now().UTC()
	e.Status = StatusCancelled
	e.ErrorMessage = reason
	e.CompletedAt = &now
	e.UpdatedAt = now
	return nil
}

// Duration returns the wall-clock run time once both timestamps exist
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}
