package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apiprobe/apiprobe/config"
	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/runner"
	"github.com/apiprobe/apiprobe/scenario"
)

// seedExecution inserts an execution row in the given status.
func seedExecution(t *testing.T, srv *Server, projectID string, status execution.Status) *execution.Execution {
	t.Helper()

	exec := execution.New(projectID)
	switch status {
	case execution.StatusRunning:
		exec.Start()
	case execution.StatusCompleted:
		exec.Start()
		exec.Complete()
	case execution.StatusFailed:
		exec.Start()
		exec.Fail("seeded failure")
	}

	if err := srv.store.Create(exec); err != nil {
		t.Fatalf("Failed to seed execution: %v", err)
	}
	return exec
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var health map[string]interface{}
	decodeBody(t, resp, &health)

	if health["status"] != "ok" {
		t.Errorf("Health status = %v, want ok", health["status"])
	}
	if health["clients"] != float64(0) {
		t.Errorf("Health clients = %v, want 0", health["clients"])
	}
}

func TestTriggerExecution(t *testing.T) {
	srv, executor := newTestServer(t)
	executor.receipt = &execution.Receipt{
		ExecutionID:       "exec-42",
		Status:            execution.StatusPending,
		AffectedTestCases: 3,
	}

	ts := httptest.NewServer(srv)
	defer ts.Close()

	body := bytes.NewBufferString(`{"project_id": "proj-1", "entity": "users", "method": "POST"}`)
	resp, err := http.Post(ts.URL+"/api/executions", "application/json", body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	var receipt execution.Receipt
	decodeBody(t, resp, &receipt)
	if receipt.ExecutionID != "exec-42" {
		t.Errorf("Receipt execution_id = %q, want exec-42", receipt.ExecutionID)
	}
	if receipt.Status != execution.StatusPending {
		t.Errorf("Receipt status = %q, want pending", receipt.Status)
	}
	if receipt.AffectedTestCases != 3 {
		t.Errorf("Receipt affected_test_cases = %d, want 3", receipt.AffectedTestCases)
	}

	requests := executor.Requests()
	if len(requests) != 1 {
		t.Fatalf("Executor received %d requests, want 1", len(requests))
	}
	if requests[0].ProjectID != "proj-1" || requests[0].Entity != "users" || requests[0].Method != "POST" {
		t.Errorf("Executor received wrong request: %+v", requests[0])
	}
}

func TestTriggerExecutionInvalidRequest(t *testing.T) {
	srv, executor := newTestServer(t)
	executor.err = errors.NewInvalidRequestError("project_id is required")

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/executions", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] == "" {
		t.Error("Expected error message in response body")
	}
}

func TestTriggerExecutionMalformedBody(t *testing.T) {
	srv, executor := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/executions", "application/json", bytes.NewBufferString(`{not json`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	if len(executor.Requests()) != 0 {
		t.Error("Malformed body must not reach the executor")
	}
}

func TestTriggerExecutionInternalError(t *testing.T) {
	srv, executor := newTestServer(t)
	executor.err = errors.New("runner binary missing")

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/executions", "application/json", bytes.NewBufferString(`{"project_id": "proj-1"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestListExecutions(t *testing.T) {
	srv, _ := newTestServer(t)

	seedExecution(t, srv, "proj-1", execution.StatusCompleted)
	seedExecution(t, srv, "proj-1", execution.StatusFailed)
	seedExecution(t, srv, "proj-2", execution.StatusCompleted)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions?project_id=proj-1")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var list ListExecutionsResponse
	decodeBody(t, resp, &list)

	if list.Count != 2 || list.Total != 2 {
		t.Errorf("List count/total = %d/%d, want 2/2", list.Count, list.Total)
	}
	if list.HasMore {
		t.Error("HasMore should be false when everything fit one page")
	}
	for _, exec := range list.Executions {
		if exec.ProjectID != "proj-1" {
			t.Errorf("Execution %s belongs to %q, want proj-1", exec.ExecutionID, exec.ProjectID)
		}
	}
}

func TestListExecutionsPagination(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		seedExecution(t, srv, "proj-1", execution.StatusCompleted)
	}

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions?limit=2&offset=0")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var list ListExecutionsResponse
	decodeBody(t, resp, &list)

	if list.Count != 2 {
		t.Errorf("Page count = %d, want 2", list.Count)
	}
	if list.Total != 5 {
		t.Errorf("Total = %d, want 5", list.Total)
	}
	if !list.HasMore {
		t.Error("HasMore should be true with 5 rows and limit 2")
	}
}

func TestListExecutionsInvalidStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions?status=bogus")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid status filter, got %d", resp.StatusCode)
	}
}

func TestGetExecution(t *testing.T) {
	srv, _ := newTestServer(t)
	seeded := seedExecution(t, srv, "proj-1", execution.StatusCompleted)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions/" + seeded.ExecutionID)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var exec execution.Execution
	decodeBody(t, resp, &exec)
	if exec.ExecutionID != seeded.ExecutionID {
		t.Errorf("Execution id = %q, want %q", exec.ExecutionID, seeded.ExecutionID)
	}
	if exec.Status != execution.StatusCompleted {
		t.Errorf("Execution status = %q, want completed", exec.Status)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions/nonexistent")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestExecutionResultsPersisted(t *testing.T) {
	srv, executor := newTestServer(t)
	seeded := seedExecution(t, srv, "proj-1", execution.StatusCompleted)

	// A terminal execution answers from the store even if a live session
	// somehow still exists.
	executor.live = true

	results := []scenario.Result{
		{Name: "Create user", Status: scenario.StatusPassed, DurationMS: 120},
		{Name: "Delete user", Status: scenario.StatusFailed, DurationMS: 80, ErrorMessage: "expected 204, got 500"},
	}
	if err := srv.results.SaveResults(seeded.ExecutionID, seeded.ProjectID, results); err != nil {
		t.Fatalf("Failed to save results: %v", err)
	}

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions/" + seeded.ExecutionID + "/results")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var out ExecutionResultsResponse
	decodeBody(t, resp, &out)

	if out.Live {
		t.Error("Terminal execution should not report live results")
	}
	if len(out.Results) != 2 {
		t.Fatalf("Expected 2 result rows, got %d", len(out.Results))
	}
	if out.Results[0].Name != "Create user" {
		t.Errorf("First row name = %q, want Create user", out.Results[0].Name)
	}
	if out.Results[1].Status != scenario.StatusFailed {
		t.Errorf("Second row status = %q, want failed", out.Results[1].Status)
	}
}

func TestExecutionResultsLive(t *testing.T) {
	srv, executor := newTestServer(t)
	seeded := seedExecution(t, srv, "proj-1", execution.StatusRunning)

	executor.live = true
	executor.scenarios = []runner.LiveScenario{
		{Location: "features/users.feature:12", Status: scenario.StatusPassed},
	}
	executor.progress = runner.Progress{ScenariosStarted: 2, ScenariosFinished: 1}

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions/" + seeded.ExecutionID + "/results")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var out ExecutionResultsResponse
	decodeBody(t, resp, &out)

	if !out.Live {
		t.Fatal("Running execution with a session should report live results")
	}
	if len(out.Scenarios) != 1 || out.Scenarios[0].Location != "features/users.feature:12" {
		t.Errorf("Live scenarios = %+v", out.Scenarios)
	}
	if out.Progress == nil || out.Progress.ScenariosFinished != 1 {
		t.Errorf("Live progress = %+v", out.Progress)
	}
}

func TestExecutionResultsRunningWithoutSession(t *testing.T) {
	srv, _ := newTestServer(t)
	seeded := seedExecution(t, srv, "proj-1", execution.StatusRunning)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/executions/" + seeded.ExecutionID + "/results")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var out ExecutionResultsResponse
	decodeBody(t, resp, &out)

	// No live session and nothing persisted yet: an empty, non-live answer.
	if out.Live {
		t.Error("No session exists, response should not be live")
	}
	if len(out.Results) != 0 {
		t.Errorf("Expected no rows, got %d", len(out.Results))
	}
}

func TestExecutionsMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/executions", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/executions = %d, want 405", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/executions/some-id", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT /api/executions/{id} = %d, want 405", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://example.com"}},
	}
	srv.config = func() *config.Config { return cfg }

	ts := httptest.NewServer(srv)
	defer ts.Close()

	// Preflight from an allowed origin.
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/executions", nil)
	req.Header.Set("Origin", "http://example.com:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Preflight status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://example.com:3000" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}

	// A disallowed origin gets no CORS grant.
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for disallowed origin, want empty", got)
	}
}
