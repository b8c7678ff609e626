package execution

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/apiprobe/apiprobe/errors"
	"github.com/apiprobe/apiprobe/internal/id"
	"github.com/apiprobe/apiprobe/scenario"
)

// ResultStore handles persistence of per-instance scenario results
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a new result store
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// ResultRow is one persisted scenario instance. Outline executions store one
// row per example; BaseName carries the declared scenario name shared by all
// instances, Name the unique instance name.
type ResultRow struct {
	ID             int64           `json:"-"`
	ResultID       string          `json:"result_id"`
	ExecutionID    string          `json:"execution_id"`
	ProjectID      string          `json:"project_id"`
	Name           string          `json:"name"`
	BaseName       string          `json:"base_name"`
	Status         scenario.Status `json:"status"`
	DurationMS     int64           `json:"duration_ms"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Feature        string          `json:"feature,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Line           int             `json:"line,omitempty"`
	ExampleIndex   *int            `json:"example_index,omitempty"`
	ExampleCount   *int            `json:"example_count,omitempty"`
	ExecutionIndex int             `json:"execution_index"`
	Steps          []scenario.Step `json:"steps"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SaveResults persists one row per individually executed scenario instance.
// Consolidated outline groups are unrolled into their individual executions;
// single scenarios store once with execution index 1. All rows for one
// execution commit in a single transaction.
func (s *ResultStore) SaveResults(executionID, projectID string, results []scenario.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin result transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scenario_results (
			result_id, execution_id, project_id, name, base_name, status,
			duration_ms, error_message, feature, tags, line,
			example_index, example_count, execution_index, steps, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare result insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, result := range results {
		for _, instance := range unroll(result) {
			if err := insertInstance(stmt, executionID, projectID, result.Name, instance, now); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit results")
	}
	return nil
}

// unroll flattens a consolidated result into its stored instances
func unroll(result scenario.Result) []scenario.Result {
	if result.HasMultipleExecutions && len(result.IndividualExecutions) > 0 {
		return result.IndividualExecutions
	}
	return []scenario.Result{result}
}

func insertInstance(stmt *sql.Stmt, executionID, projectID, baseName string, instance scenario.Result, now time.Time) error {
	tags := instance.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result tags")
	}

	steps := instance.Steps
	if steps == nil {
		steps = []scenario.Step{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result steps")
	}

	executionIndex := instance.ExecutionIndex
	if executionIndex < 1 {
		executionIndex = 1
	}

	_, err = stmt.Exec(
		id.New(id.PrefixScenarioResult),
		executionID,
		projectID,
		instance.Name,
		baseName,
		string(instance.Status),
		instance.DurationMS,
		nullIfEmpty(instance.ErrorMessage),
		instance.Feature,
		string(tagsJSON),
		instance.Line,
		nullableInt(instance.ExampleIndex),
		nullableInt(instance.ExampleCount),
		executionIndex,
		string(stepsJSON),
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert result for %q", instance.Name)
	}
	return nil
}

const resultColumns = `
	id, result_id, execution_id, project_id, name, base_name, status,
	duration_ms, error_message, feature, tags, line,
	example_index, example_count, execution_index, steps, created_at
`

// ListByExecutionID returns all stored instances for one execution in
// insertion order
func (s *ResultStore) ListByExecutionID(executionID string) ([]*ResultRow, error) {
	query := `SELECT ` + resultColumns + ` FROM scenario_results WHERE execution_id = ? ORDER BY id`

	rows, err := s.db.Query(query, executionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list results")
	}
	defer rows.Close()

	return scanResultRows(rows)
}

// ListByProjectAndName returns the run history for one logical scenario,
// newest first. Outline instances share the logical scenario's base name.
func (s *ResultStore) ListByProjectAndName(projectID, baseName string, limit int) ([]*ResultRow, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + resultColumns + `
		FROM scenario_results
		WHERE project_id = ? AND base_name = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, projectID, baseName, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list result history")
	}
	defer rows.Close()

	return scanResultRows(rows)
}

func scanResultRows(rows *sql.Rows) ([]*ResultRow, error) {
	var results []*ResultRow
	for rows.Next() {
		var row ResultRow
		var status, tagsJSON, stepsJSON string
		var errorMessage sql.NullString
		var exampleIndex, exampleCount sql.NullInt64

		err := rows.Scan(
			&row.ID,
			&row.ResultID,
			&row.ExecutionID,
			&row.ProjectID,
			&row.Name,
			&row.BaseName,
			&status,
			&row.DurationMS,
			&errorMessage,
			&row.Feature,
			&tagsJSON,
			&row.Line,
			&exampleIndex,
			&exampleCount,
			&row.ExecutionIndex,
			&stepsJSON,
			&row.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan result row")
		}

		row.Status = scenario.Status(status)
		if errorMessage.Valid {
			row.ErrorMessage = errorMessage.String
		}
		if exampleIndex.Valid {
			v := int(exampleIndex.Int64)
			row.ExampleIndex = &v
		}
		if exampleCount.Valid {
			v := int(exampleCount.Int64)
			row.ExampleCount = &v
		}
		if err := json.Unmarshal([]byte(tagsJSON), &row.Tags); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal result tags")
		}
		if err := json.Unmarshal([]byte(stepsJSON), &row.Steps); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal result steps")
		}

		results = append(results, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate result rows")
	}
	return results, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
