package catalog

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/internal/id"
)

// Store handles persistence of the test catalog
type Store struct {
	db *sql.DB
}

// NewStore creates a new catalog store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const testCaseColumns = `
	id, case_id, project_id, name, entity, method, test_type, tags,
	last_run_status, last_run_at, last_execution_id, last_run_detail,
	created_at, updated_at
`

// CreateTestCase inserts a new test case. A missing CaseID is generated.
func (s *Store) CreateTestCase(tc *TestCase) error {
	if tc.ProjectID == "" || tc.Name == "" {
		return errors.New("test case requires project id and name")
	}
	if tc.CaseID == "" {
		tc.CaseID = id.New(id.PrefixTestCase)
	}

	now := time.Now().UTC()
	tc.CreatedAt = now
	tc.UpdatedAt = now

	tagsJSON, err := marshalTags(tc.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO test_cases (
			case_id, project_id, name, entity, method, test_type, tags,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		tc.CaseID,
		tc.ProjectID,
		tc.Name,
		tc.Entity,
		nullIfEmpty(tc.Method),
		nullIfEmpty(tc.TestType),
		tagsJSON,
		tc.CreatedAt,
		tc.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create test case")
	}

	tc.ID, err = result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read test case row id")
	}
	return nil
}

// UpsertTestCase inserts a test case or refreshes its definition when a case
// with the same (project, name) already exists. Last-run columns are left
// untouched on update.
func (s *Store) UpsertTestCase(tc *TestCase) error {
	if tc.ProjectID == "" || tc.Name == "" {
		return errors.New("test case requires project id and name")
	}
	if tc.CaseID == "" {
		tc.CaseID = id.New(id.PrefixTestCase)
	}

	now := time.Now().UTC()
	tagsJSON, err := marshalTags(tc.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO test_cases (
			case_id, project_id, name, entity, method, test_type, tags,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, name) DO UPDATE SET
			entity = excluded.entity,
			method = excluded.method,
			test_type = excluded.test_type,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		tc.CaseID,
		tc.ProjectID,
		tc.Name,
		tc.Entity,
		nullIfEmpty(tc.Method),
		nullIfEmpty(tc.TestType),
		tagsJSON,
		now,
		now,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert test case")
	}

	// Re-read to pick up the surviving case_id and row id on conflict
	existing, err := s.FindTestCaseByName(tc.ProjectID, tc.Name)
	if err != nil {
		return err
	}
	*tc = *existing
	return nil
}

// FindTestCaseByName looks up a test case by its scenario display name.
// This is the correlation key used when propagating execution outcomes.
func (s *Store) FindTestCaseByName(projectID, name string) (*TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE project_id = ? AND name = ?`
	return s.scanTestCase(s.db.QueryRow(query, projectID, name))
}

// GetTestCase retrieves a test case by its case id
func (s *Store) GetTestCase(caseID string) (*TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE case_id = ?`
	return s.scanTestCase(s.db.QueryRow(query, caseID))
}

// ListTestCases returns all test cases for a project, name-ordered
func (s *Store) ListTestCases(projectID string) ([]*TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE project_id = ? ORDER BY name`

	rows, err := s.db.Query(query, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list test cases")
	}
	defer rows.Close()

	var cases []*TestCase
	for rows.Next() {
		tc, err := s.scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate test cases")
	}
	return cases, nil
}

// CountTestCases counts the test cases a run scope touches
func (s *Store) CountTestCases(projectID string, filter CaseFilter) (int, error) {
	query := `SELECT COUNT(*) FROM test_cases WHERE project_id = ?`
	args := []interface{}{projectID}

	if filter.TestCaseID != "" {
		query += " AND case_id = ?"
		args = append(args, filter.TestCaseID)
	}
	if filter.Entity != "" {
		query += " AND entity = ?"
		args = append(args, filter.Entity)
	}
	if filter.Method != "" {
		query += " AND method = ?"
		args = append(args, filter.Method)
	}
	if filter.TestType != "" {
		query += " AND test_type = ?"
		args = append(args, filter.TestType)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count test cases")
	}
	return count, nil
}

// UpdateLastRun records an execution outcome on a test case
func (s *Store) UpdateLastRun(tc *TestCase, run LastRun) error {
	var detailJSON interface{}
	if run.Detail != nil {
		data, err := json.Marshal(run.Detail)
		if err != nil {
			return errors.Wrap(err, "failed to marshal run detail")
		}
		detailJSON = string(data)
	}

	now := time.Now().UTC()
	query := `
		UPDATE test_cases
		SET last_run_status = ?,
		    last_run_at = ?,
		    last_execution_id = ?,
		    last_run_detail = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		run.Status,
		run.At,
		nullIfEmpty(run.ExecutionID),
		detailJSON,
		now,
		tc.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update test case last run")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.Newf("test case not found: %s", tc.CaseID)
	}

	tc.LastRunStatus = run.Status
	runAt := run.At
	tc.LastRunAt = &runAt
	tc.LastExecutionID = run.ExecutionID
	tc.LastRunDetail = run.Detail
	tc.UpdatedAt = now
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTestCase(row scanner) (*TestCase, error) {
	var tc TestCase
	var method, testType, lastRunStatus, lastExecutionID, lastRunDetail sql.NullString
	var lastRunAt sql.NullTime
	var tagsJSON string

	err := row.Scan(
		&tc.ID,
		&tc.CaseID,
		&tc.ProjectID,
		&tc.Name,
		&tc.Entity,
		&method,
		&testType,
		&tagsJSON,
		&lastRunStatus,
		&lastRunAt,
		&lastExecutionID,
		&lastRunDetail,
		&tc.CreatedAt,
		&tc.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("test case")
		}
		return nil, errors.Wrap(err, "failed to scan test case")
	}

	if method.Valid {
		tc.Method = method.String
	}
	if testType.Valid {
		tc.TestType = testType.String
	}
	if lastRunStatus.Valid {
		tc.LastRunStatus = lastRunStatus.String
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		tc.LastRunAt = &t
	}
	if lastExecutionID.Valid {
		tc.LastExecutionID = lastExecutionID.String
	}
	if lastRunDetail.Valid && lastRunDetail.String != "" {
		var detail RunDetail
		if err := json.Unmarshal([]byte(lastRunDetail.String), &detail); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal run detail")
		}
		tc.LastRunDetail = &detail
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tc.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal test case tags")
		}
	}

	return &tc, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tags")
	}
	return string(data), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
