package server

import (
	"fmt"
	"net/http"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/execution"
	"github.com/apiprobe/apiprobe/runner"
	"github.com/apiprobe/apiprobe/version"
)

// =======================
// API Response Types
// =======================

// ListExecutionsResponse represents the response for listing executions
type ListExecutionsResponse struct {
	Executions []execution.Execution `json:"executions"`
	Count      int                   `json:"count"`
	Total      int                   `json:"total"`
	HasMore    bool                  `json:"has_more"`
}

// ExecutionResultsResponse carries an execution's scenario results. Finished
// executions return persisted rows; a run still in flight returns the live
// listener view instead, marked by Live.
type ExecutionResultsResponse struct {
	ExecutionID string                `json:"execution_id"`
	Status      execution.Status      `json:"status"`
	Live        bool                  `json:"live"`
	Results     []execution.ResultRow `json:"results,omitempty"`
	Scenarios   []runner.LiveScenario `json:"scenarios,omitempty"`
	Progress    *runner.Progress      `json:"progress,omitempty"`
}

// =======================
// HTTP Handlers
// =======================

// HandleHealth serves health check endpoint with version info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	health := map[string]interface{}{
		"status":  "ok",
		"version": versionInfo.Version,
		"commit":  versionInfo.Short(),
		"clients": s.clientCount(),
	}
	if err := s.db.Ping(); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
	}

	writeJSON(w, http.StatusOK, health)
}

// HandleExecutions serves execution history and accepts new execution requests
// GET /api/executions?project_id=&entity=&method=&test_type=&status=&limit=50&offset=0
// POST /api/executions
func (s *Server) HandleExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleListExecutions(w, r)
	case http.MethodPost:
		s.handleTriggerExecution(w, r)
	}
}

// handleListExecutions returns paged execution history, newest first
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQueryParam(r, "limit", 50, 1, 200)
	offset := parseIntQueryParam(r, "offset", 0, 0, 1000000)

	q := r.URL.Query()
	statusFilter := q.Get("status")
	if statusFilter != "" && !execution.IsValidStatus(statusFilter) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status: %s", statusFilter))
		return
	}

	filter := execution.ListFilter{
		ProjectID:  q.Get("project_id"),
		SuiteID:    q.Get("suite_id"),
		TestCaseID: q.Get("test_case_id"),
		Entity:     q.Get("entity"),
		Method:     q.Get("method"),
		TestType:   q.Get("test_type"),
		Status:     statusFilter,
		Limit:      limit,
		Offset:     offset,
	}

	executions, total, err := s.store.List(filter)
	if err != nil {
		s.logger.Errorw("Failed to list executions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	// Convert to response format (flatten pointer slice)
	execResponses := make([]execution.Execution, 0, len(executions))
	for _, exec := range executions {
		execResponses = append(execResponses, *exec)
	}

	response := ListExecutionsResponse{
		Executions: execResponses,
		Count:      len(executions),
		Total:      total,
		HasMore:    offset+len(executions) < total,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleTriggerExecution accepts an execution request and returns the receipt.
// The run itself happens in the background; 202 means accepted, not passed.
func (s *Server) handleTriggerExecution(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	receipt, err := s.executor.Execute(r.Context(), req)
	if err != nil {
		if errors.IsInvalidRequestError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Errorw("Failed to start execution",
			"error", err,
			"project_id", req.ProjectID,
		)
		writeError(w, http.StatusInternalServerError, "Failed to start execution")
		return
	}

	s.logger.Infow("Execution accepted",
		"execution_id", shortID(receipt.ExecutionID),
		"project_id", req.ProjectID,
		"affected_test_cases", receipt.AffectedTestCases,
	)
	writeJSON(w, http.StatusAccepted, receipt)
}

// HandleExecution serves a single execution and its scenario results
// GET /api/executions/{execution_id}
// GET /api/executions/{execution_id}/results
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}
	executionID := parts[0]

	isResultsRequest := len(parts) > 1 && parts[1] == "results"

	exec, err := s.store.GetByExecutionID(executionID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, "Execution not found")
			return
		}
		s.logger.Errorw("Failed to get execution", "error", err, "execution_id", executionID)
		writeError(w, http.StatusInternalServerError, "Failed to get execution")
		return
	}

	if isResultsRequest {
		s.handleExecutionResults(w, exec)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

// handleExecutionResults picks the result source by execution state. A run
// that is not terminal yet may have a live listener session; once terminal,
// the persisted rows are the authority.
func (s *Server) handleExecutionResults(w http.ResponseWriter, exec *execution.Execution) {
	if !exec.Status.Terminal() {
		if scenarios, progress, ok := s.executor.LiveResults(exec.ExecutionID); ok {
			writeJSON(w, http.StatusOK, ExecutionResultsResponse{
				ExecutionID: exec.ExecutionID,
				Status:      exec.Status,
				Live:        true,
				Scenarios:   scenarios,
				Progress:    &progress,
			})
			return
		}
	}

	rows, err := s.results.ListByExecutionID(exec.ExecutionID)
	if err != nil {
		s.logger.Errorw("Failed to list results", "error", err, "execution_id", exec.ExecutionID)
		writeError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}

	resultRows := make([]execution.ResultRow, 0, len(rows))
	for _, row := range rows {
		resultRows = append(resultRows, *row)
	}

	writeJSON(w, http.StatusOK, ExecutionResultsResponse{
		ExecutionID: exec.ExecutionID,
		Status:      exec.Status,
		Results:     resultRows,
	})
}
