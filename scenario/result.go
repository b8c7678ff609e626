// Package scenario holds the typed results produced by parsing a runner
// report: scenarios, their ordered steps, and the outline consolidation
// that folds per-example executions into one logical result.
package scenario

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the outcome of a scenario or step
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// StatusFromRunner folds a runner-reported status onto the three statuses
// this subsystem stores. Undefined, pending, and ambiguous steps never
// executed, which is what skipped means here.
func StatusFromRunner(s string) Status {
	switch Status(s) {
	case StatusPassed:
		return StatusPassed
	case StatusFailed:
		return StatusFailed
	default:
		return StatusSkipped
	}
}

// Hook kinds as they appear in runner report keywords. A step whose keyword
// matches one of these is setup/teardown rather than an authored test step.
const (
	HookBefore     = "Before"
	HookAfter      = "After"
	HookBeforeStep = "BeforeStep"
	HookAfterStep  = "AfterStep"
)

// IsHookKind returns true for the four recognized hook keywords.
func IsHookKind(kind string) bool {
	switch kind {
	case HookBefore, HookAfter, HookBeforeStep, HookAfterStep:
		return true
	default:
		return false
	}
}

// SynthesizedHookName builds the display name for a hook step the runner
// reported without one, e.g. "Before Hook". No step is persisted nameless.
func SynthesizedHookName(kind string) string {
	return kind + " Hook"
}

// Step is one atomic action inside a scenario. Steps are embedded in their
// scenario's ordered list and never addressed independently.
//
// Durations are milliseconds everywhere in this subsystem; the report's
// native nanoseconds are converted exactly once, at parse time.
type Step struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	IsHook       bool      `json:"is_hook,omitempty"`
	HookKind     string    `json:"hook_kind,omitempty"`
}

// Result is one executed scenario. For scenario outlines the parser emits
// one Result per example instance and Consolidate folds same-named instances
// into a single logical Result carrying the originals in
// IndividualExecutions.
type Result struct {
	Name         string   `json:"name"`
	Tags         []string `json:"tags,omitempty"`
	Status       Status   `json:"status"`
	DurationMS   int64    `json:"duration_ms"`
	Steps        []Step   `json:"steps"`
	ErrorMessage string   `json:"error_message,omitempty"`

	// Source metadata
	Feature string `json:"feature,omitempty"`
	Line    int    `json:"line,omitempty"`

	// Outline metadata, set during consolidation for grouped instances
	ExampleIndex *int `json:"example_index,omitempty"`
	ExampleCount *int `json:"example_count,omitempty"`

	// ExecutionIndex is 1-based across a consolidated group; 1 for
	// scenarios that executed once.
	ExecutionIndex int `json:"execution_index,omitempty"`

	HasMultipleExecutions bool     `json:"has_multiple_executions,omitempty"`
	IndividualExecutions  []Result `json:"individual_executions,omitempty"`
}

// DeriveStatus computes a scenario's status from its steps: failed if any
// step failed; else skipped if every step was skipped (a scenario with no
// steps never ran anything, so it counts as skipped); else passed.
func DeriveStatus(steps []Step) Status {
	allSkipped := true
	for _, step := range steps {
		if step.Status == StatusFailed {
			return StatusFailed
		}
		if step.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return StatusSkipped
	}
	return StatusPassed
}

// BuildErrorMessage joins "<step>: <message>" for every failed step with
// "; ". Failed steps the runner left without a message contribute just the
// step name. Returns "" when no step failed.
func BuildErrorMessage(steps []Step) string {
	var parts []string
	for _, step := range steps {
		if step.Status != StatusFailed {
			continue
		}
		if step.ErrorMessage == "" {
			parts = append(parts, step.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", step.Name, step.ErrorMessage))
	}
	return strings.Join(parts, "; ")
}

// InstanceName builds the synthesized unique name for one member of a
// consolidated group, e.g. `Create widget (Example 2)`.
func InstanceName(name string, n int) string {
	return fmt.Sprintf("%s (Example %d)", name, n)
}
