package catalog

import (
	"database/sql"
	"time"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/internal/id"
)

const testSuiteColumns = `
	id, suite_id, project_id, name, total_cases, passed, failed,
	execution_time_ms, last_execution_at, created_at, updated_at
`

// CreateTestSuite inserts a new test suite. A missing SuiteID is generated.
func (s *Store) CreateTestSuite(suite *TestSuite) error {
	if suite.ProjectID == "" {
		return errors.New("test suite requires project id")
	}
	if suite.SuiteID == "" {
		suite.SuiteID = id.New(id.PrefixTestSuite)
	}

	now := time.Now().UTC()
	suite.CreatedAt = now
	suite.UpdatedAt = now

	query := `
		INSERT INTO test_suites (
			suite_id, project_id, name, total_cases, passed, failed,
			execution_time_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		suite.SuiteID,
		suite.ProjectID,
		suite.Name,
		suite.TotalCases,
		suite.Passed,
		suite.Failed,
		suite.ExecutionTimeMS,
		suite.CreatedAt,
		suite.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create test suite")
	}

	suite.ID, err = result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read test suite row id")
	}
	return nil
}

// GetTestSuite retrieves a suite by its suite id within a project
func (s *Store) GetTestSuite(projectID, suiteID string) (*TestSuite, error) {
	query := `SELECT ` + testSuiteColumns + ` FROM test_suites WHERE project_id = ? AND suite_id = ?`

	var suite TestSuite
	var lastExecutionAt sql.NullTime

	err := s.db.QueryRow(query, projectID, suiteID).Scan(
		&suite.ID,
		&suite.SuiteID,
		&suite.ProjectID,
		&suite.Name,
		&suite.TotalCases,
		&suite.Passed,
		&suite.Failed,
		&suite.ExecutionTimeMS,
		&lastExecutionAt,
		&suite.CreatedAt,
		&suite.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("test suite %s", suiteID)
		}
		return nil, errors.Wrap(err, "failed to get test suite")
	}

	if lastExecutionAt.Valid {
		t := lastExecutionAt.Time
		suite.LastExecutionAt = &t
	}
	return &suite, nil
}

// UpdateExecutionStats writes a run's aggregate outcome onto a suite
func (s *Store) UpdateExecutionStats(projectID, suiteID string, stats SuiteStats) error {
	query := `
		UPDATE test_suites
		SET total_cases = ?,
		    passed = ?,
		    failed = ?,
		    execution_time_ms = ?,
		    last_execution_at = ?,
		    updated_at = ?
		WHERE project_id = ? AND suite_id = ?
	`

	result, err := s.db.Exec(query,
		stats.TotalCases,
		stats.Passed,
		stats.Failed,
		stats.ExecutionTimeMS,
		stats.LastExecutionAt,
		time.Now().UTC(),
		projectID,
		suiteID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update suite stats")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("test suite %s", suiteID)
	}
	return nil
}
