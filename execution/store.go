package execution

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/apiprobe/apiprobe/errors"
)

// Store handles persistence of executions
type Store struct {
	db *sql.DB
}

// NewStore creates a new execution store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListFilter narrows and pages List results
type ListFilter struct {
	ProjectID  string
	SuiteID    string
	TestCaseID string
	Entity     string
	Method     string
	TestType   string
	Status     string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

const executionColumns = `
	id, execution_id, project_id, suite_id, test_case_id, entity, method,
	test_type, tags, scenario_name, config, status,
	total_scenarios, passed_scenarios, failed_scenarios, execution_time_ms,
	error_message, triggered_by, report_path, revision,
	started_at, completed_at, created_at, updated_at
`

// Create inserts a new execution record
func (s *Store) Create(exec *Execution) error {
	tagsJSON, configJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (
			execution_id, project_id, suite_id, test_case_id, entity, method,
			test_type, tags, scenario_name, config, status,
			total_scenarios, passed_scenarios, failed_scenarios, execution_time_ms,
			error_message, triggered_by, report_path, revision,
			started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		exec.ExecutionID,
		exec.ProjectID,
		nullIfEmpty(exec.SuiteID),
		nullIfEmpty(exec.TestCaseID),
		exec.Entity,
		nullIfEmpty(exec.Method),
		nullIfEmpty(exec.TestType),
		tagsJSON,
		nullIfEmpty(exec.ScenarioName),
		configJSON,
		string(exec.Status),
		exec.TotalScenarios,
		exec.PassedScenarios,
		exec.FailedScenarios,
		exec.ExecutionTimeMS,
		nullIfEmpty(exec.ErrorMessage),
		nullIfEmpty(exec.TriggeredBy),
		nullIfEmpty(exec.ReportPath),
		nullIfEmpty(exec.Revision),
		nullableTime(exec.StartedAt),
		nullableTime(exec.CompletedAt),
		exec.CreatedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	exec.ID, err = result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read execution row id")
	}
	return nil
}

// Update persists the mutable fields of an execution
func (s *Store) Update(exec *Execution) error {
	_, configJSON, err := marshalExecutionJSON(exec)
	if err != nil {
		return err
	}

	query := `
		UPDATE executions
		SET status = ?,
		    config = ?,
		    total_scenarios = ?,
		    passed_scenarios = ?,
		    failed_scenarios = ?,
		    execution_time_ms = ?,
		    error_message = ?,
		    report_path = ?,
		    revision = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE execution_id = ?
	`

	result, err := s.db.Exec(query,
		string(exec.Status),
		configJSON,
		exec.TotalScenarios,
		exec.PassedScenarios,
		exec.FailedScenarios,
		exec.ExecutionTimeMS,
		nullIfEmpty(exec.ErrorMessage),
		nullIfEmpty(exec.ReportPath),
		nullIfEmpty(exec.Revision),
		nullableTime(exec.StartedAt),
		nullableTime(exec.CompletedAt),
		time.Now().UTC(),
		exec.ExecutionID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("execution %s", exec.ExecutionID)
	}
	return nil
}

// GetByExecutionID retrieves an execution by its external id
func (s *Store) GetByExecutionID(executionID string) (*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE execution_id = ?`
	return s.scanExecution(s.db.QueryRow(query, executionID))
}

// List retrieves executions matching the filter, newest first, plus the
// total match count for pagination
func (s *Store) List(filter ListFilter) ([]*Execution, int, error) {
	baseQuery := ` FROM executions WHERE 1=1`
	args := []interface{}{}

	if filter.ProjectID != "" {
		baseQuery += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.SuiteID != "" {
		baseQuery += " AND suite_id = ?"
		args = append(args, filter.SuiteID)
	}
	if filter.TestCaseID != "" {
		baseQuery += " AND test_case_id = ?"
		args = append(args, filter.TestCaseID)
	}
	if filter.Entity != "" {
		baseQuery += " AND entity = ?"
		args = append(args, filter.Entity)
	}
	if filter.Method != "" {
		baseQuery += " AND method = ?"
		args = append(args, filter.Method)
	}
	if filter.TestType != "" {
		baseQuery += " AND test_type = ?"
		args = append(args, filter.TestType)
	}
	if filter.Status != "" {
		baseQuery += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		baseQuery += " AND created_at >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		baseQuery += " AND created_at <= ?"
		args = append(args, *filter.Until)
	}

	countQuery := "SELECT COUNT(*)" + baseQuery
	var total int
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count executions")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + executionColumns + baseQuery + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec, err := s.scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate executions")
	}

	return executions, total, nil
}

// Count returns the number of executions matching the filter
func (s *Store) Count(filter ListFilter) (int, error) {
	filter.Limit = 1
	_, total, err := s.List(filter)
	return total, err
}

// DeleteOlderThan removes terminal executions created before the cutoff.
// Result rows cascade. Running and pending executions always survive.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM executions
		WHERE created_at < ?
		  AND status IN ('completed', 'failed', 'cancelled')
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete old executions")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check rows affected")
	}
	return deleted, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanExecution(row scanner) (*Execution, error) {
	var exec Execution
	var suiteID, testCaseID, method, testType, scenarioName sql.NullString
	var errorMessage, triggeredBy, reportPath, revision sql.NullString
	var startedAt, completedAt sql.NullTime
	var status, tagsJSON, configJSON string

	err := row.Scan(
		&exec.ID,
		&exec.ExecutionID,
		&exec.ProjectID,
		&suiteID,
		&testCaseID,
		&exec.Entity,
		&method,
		&testType,
		&tagsJSON,
		&scenarioName,
		&configJSON,
		&status,
		&exec.TotalScenarios,
		&exec.PassedScenarios,
		&exec.FailedScenarios,
		&exec.ExecutionTimeMS,
		&errorMessage,
		&triggeredBy,
		&reportPath,
		&revision,
		&startedAt,
		&completedAt,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("execution")
		}
		return nil, errors.Wrap(err, "failed to scan execution")
	}

	exec.Status = Status(status)
	if suiteID.Valid {
		exec.SuiteID = suiteID.String
	}
	if testCaseID.Valid {
		exec.TestCaseID = testCaseID.String
	}
	if method.Valid {
		exec.Method = method.String
	}
	if testType.Valid {
		exec.TestType = testType.String
	}
	if scenarioName.Valid {
		exec.ScenarioName = scenarioName.String
	}
	if errorMessage.Valid {
		exec.ErrorMessage = errorMessage.String
	}
	if triggeredBy.Valid {
		exec.TriggeredBy = triggeredBy.String
	}
	if reportPath.Valid {
		exec.ReportPath = reportPath.String
	}
	if revision.Valid {
		exec.Revision = revision.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		exec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		exec.CompletedAt = &t
	}

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &exec.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal execution tags")
		}
	}
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &exec.Config); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal execution config")
		}
	}

	return &exec, nil
}

func marshalExecutionJSON(exec *Execution) (tagsJSON, configJSON string, err error) {
	tags := exec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsData, err := json.Marshal(tags)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal execution tags")
	}

	configData, err := json.Marshal(exec.Config)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal execution config")
	}

	return string(tagsData), string(configData), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
