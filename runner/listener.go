package runner

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/apiprobe/apiprobe/scenario"
)

// Event names emitted by the runner on stdout with `--format events`, one
// JSON object per line.
const (
	eventRunStarted   = "TestRunStarted"
	eventCaseStarted  = "TestCaseStarted"
	eventStepFinished = "TestStepFinished"
	eventCaseFinished = "TestCaseFinished"
	eventRunFinished  = "TestRunFinished"
)

// runnerEvent is the subset of event fields the listener consumes. Unknown
// events and extra fields are ignored.
type runnerEvent struct {
	Event     string `json:"event"`
	Location  string `json:"location"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// LiveScenario is one scenario completion observed during the run,
// addressed by source location because the event stream does not carry
// display names. The authoritative named results come from the report.
type LiveScenario struct {
	Location   string          `json:"location"`
	Status     scenario.Status `json:"status"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Progress is a point-in-time view of a running suite.
type Progress struct {
	ScenariosStarted  int  `json:"scenarios_started"`
	ScenariosFinished int  `json:"scenarios_finished"`
	ScenariosFailed   int  `json:"scenarios_failed"`
	StepsFinished     int  `json:"steps_finished"`
	RunFinished       bool `json:"run_finished"`
}

// Listener is a session-scoped scratchpad fed one stdout line at a time by
// the process runner. It accumulates scenario and step completions as they
// happen and exposes the running totals on demand, so callers can publish
// live progress without waiting for the process to exit. One Listener
// serves exactly one run; create a fresh one per execution.
type Listener struct {
	mu         sync.Mutex
	progress   Progress
	scenarios  []LiveScenario
	onProgress func(Progress)
}

// NewListener creates a listener. onProgress, if non-nil, is invoked after
// every scenario completion and at run end, with the updated totals.
func NewListener(onProgress func(Progress)) *Listener {
	return &Listener{onProgress: onProgress}
}

// HandleLine consumes one stdout line. Lines that are not runner events,
// including the runner's plain console output, are ignored.
func (l *Listener) HandleLine(line string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return
	}

	var event runnerEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return
	}

	l.mu.Lock()
	notify := false
	switch event.Event {
	case eventCaseStarted:
		l.progress.ScenariosStarted++
	case eventStepFinished:
		l.progress.StepsFinished++
	case eventCaseFinished:
		l.progress.ScenariosFinished++
		status := scenario.StatusFromRunner(event.Status)
		if status == scenario.StatusFailed {
			l.progress.ScenariosFailed++
		}
		l.scenarios = append(l.scenarios, LiveScenario{
			Location:   event.Location,
			Status:     status,
			FinishedAt: eventTime(event.Timestamp),
		})
		notify = true
	case eventRunFinished:
		l.progress.RunFinished = true
		notify = true
	}
	snapshot := l.progress
	callback := l.onProgress
	l.mu.Unlock()

	if notify && callback != nil {
		callback(snapshot)
	}
}

// Snapshot returns the current totals.
func (l *Listener) Snapshot() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.progress
}

// Scenarios returns a copy of the scenario completions observed so far, in
// arrival order.
func (l *Listener) Scenarios() []LiveScenario {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LiveScenario, len(l.scenarios))
	copy(out, l.scenarios)
	return out
}

func eventTime(millis int64) time.Time {
	if millis <= 0 {
		return time.Now()
	}
	return time.UnixMilli(millis)
}
