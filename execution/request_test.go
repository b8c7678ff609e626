package execution

import (
	"testing"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/internal/util"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid minimal", Request{ProjectID: "proj-1"}, false},
		{"valid full", Request{
			ProjectID:     "proj-1",
			Entity:        "users",
			Method:        "POST",
			Tags:          []string{"@smoke"},
			ScenarioNames: []string{"Create user"},
			Workers:       4,
		}, false},
		{"missing project", Request{}, true},
		{"blank project", Request{ProjectID: "   "}, true},
		{"negative workers", Request{ProjectID: "proj-1", Workers: -1}, true},
		{"negative timeout", Request{ProjectID: "proj-1", TimeoutSeconds: -5}, true},
		{"negative retries", Request{ProjectID: "proj-1", Retries: -2}, true},
		{"blank scenario name", Request{ProjectID: "proj-1", ScenarioNames: []string{"Create user", "  "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsInvalidRequestError(err) {
				t.Errorf("Validate() error should be an invalid request error, got %v", err)
			}
		})
	}
}

func requestTestConfig() *config.Config {
	return &config.Config{
		Execution: config.ExecutionConfig{
			Environment:    "staging",
			Workers:        1,
			TimeoutSeconds: 600,
			Retries:        1,
			KeepReports:    false,
		},
	}
}

func TestBuildExecutionDefaults(t *testing.T) {
	exec := buildExecution(Request{ProjectID: "proj-1"}, requestTestConfig())

	if exec.Status != StatusPending {
		t.Errorf("Status = %q, want pending", exec.Status)
	}
	if exec.Config.Environment != "staging" {
		t.Errorf("Environment = %q, want config default", exec.Config.Environment)
	}
	if exec.Config.Workers != 1 {
		t.Errorf("Workers = %d, want 1", exec.Config.Workers)
	}
	if exec.Config.TimeoutSeconds != 600 {
		t.Errorf("TimeoutSeconds = %d, want 600", exec.Config.TimeoutSeconds)
	}
	if exec.Config.Retries != 1 {
		t.Errorf("Retries = %d, want 1", exec.Config.Retries)
	}
	if exec.Config.KeepReports {
		t.Error("KeepReports should follow the config default (false)")
	}
	if exec.Config.Parallel {
		t.Error("Parallel should be false with a single worker")
	}
}

func TestBuildExecutionOverrides(t *testing.T) {
	req := Request{
		ProjectID:      "proj-1",
		SuiteID:        "ts_abc",
		TestCaseID:     "tc_def",
		Entity:         "users",
		Method:         " post ",
		TestType:       "positive",
		Tags:           []string{"@smoke"},
		ScenarioNames:  []string{"Create user", "Delete user"},
		Environment:    "production",
		Workers:        4,
		TimeoutSeconds: 120,
		Retries:        3,
		KeepReports:    util.Ptr(true),
		TriggeredBy:    "ci",
	}

	exec := buildExecution(req, requestTestConfig())

	if exec.Method != "POST" {
		t.Errorf("Method = %q, want normalized POST", exec.Method)
	}
	if exec.ScenarioName != "Create user,Delete user" {
		t.Errorf("ScenarioName = %q", exec.ScenarioName)
	}
	if exec.Config.Environment != "production" {
		t.Errorf("Environment = %q, want production", exec.Config.Environment)
	}
	if exec.Config.Workers != 4 {
		t.Errorf("Workers = %d, want 4", exec.Config.Workers)
	}
	if !exec.Config.Parallel {
		t.Error("Parallel should be derived from workers > 1")
	}
	if exec.Config.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d, want 120", exec.Config.TimeoutSeconds)
	}
	if exec.Config.Retries != 3 {
		t.Errorf("Retries = %d, want 3", exec.Config.Retries)
	}
	if !exec.Config.KeepReports {
		t.Error("KeepReports override should win over config default")
	}
	if exec.TriggeredBy != "ci" {
		t.Errorf("TriggeredBy = %q", exec.TriggeredBy)
	}
}

// Parallel without an explicit worker count must still get more than one
// worker, otherwise the flag would silently do nothing.
func TestBuildExecutionParallelBumpsWorkers(t *testing.T) {
	exec := buildExecution(Request{ProjectID: "proj-1", Parallel: true}, requestTestConfig())

	if exec.Config.Workers != 2 {
		t.Errorf("Workers = %d, want 2", exec.Config.Workers)
	}
	if !exec.Config.Parallel {
		t.Error("Parallel should be set")
	}
}

func TestBuildExecutionKeepReportsFollowsConfig(t *testing.T) {
	cfg := requestTestConfig()
	cfg.Execution.KeepReports = true

	exec := buildExecution(Request{ProjectID: "proj-1"}, cfg)
	if !exec.Config.KeepReports {
		t.Error("KeepReports should inherit the config default")
	}

	exec = buildExecution(Request{ProjectID: "proj-1", KeepReports: util.Ptr(false)}, cfg)
	if exec.Config.KeepReports {
		t.Error("explicit false should override the config default")
	}
}
