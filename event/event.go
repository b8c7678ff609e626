// Package event carries execution lifecycle events from the orchestrator to
// live subscribers. Events are transient: they are broadcast to whoever is
// subscribed at publish time and never stored or replayed.
package event

import (
	"time"

	"github.com/apiprobe/apiprobe/scenario"
)

// Kind is the lifecycle moment an event announces.
type Kind string

const (
	KindStarted   Kind = "started"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Event is one execution lifecycle notification. Completed events carry the
// consolidated results payload; by the time a subscriber sees one, the
// result rows are already committed and queryable.
type Event struct {
	ExecutionID string    `json:"execution_id"`
	Kind        Kind      `json:"kind"`
	Status      string    `json:"status"`
	ProjectID   string    `json:"project_id"`
	Message     string    `json:"message,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Correlation ids, set when the execution targeted them.
	Entity     string `json:"entity,omitempty"`
	SuiteID    string `json:"suite_id,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`

	Results []scenario.Result `json:"results,omitempty"`
	Totals  *scenario.Totals  `json:"totals,omitempty"`
}

// Terminal reports whether the event ends its execution's lifecycle.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}
