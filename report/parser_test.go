package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/apiprobe/apiprobe/scenario"
)

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cucumber-report.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(zaptest.NewLogger(t).Sugar())
}

const passingReport = `[
  {
    "uri": "features/widget.feature",
    "id": "widget-api",
    "keyword": "Feature",
    "name": "Widget API",
    "elements": [
      {
        "id": "widget-api;create-widget",
        "keyword": "Scenario",
        "name": "Create widget",
        "line": 8,
        "type": "scenario",
        "tags": [{"name": "@widget", "line": 7}],
        "steps": [
          {
            "keyword": "Given ",
            "name": "the widget service is available",
            "result": {"status": "passed", "duration": 1000000}
          },
          {
            "keyword": "When ",
            "name": "I create a widget",
            "result": {"status": "passed", "duration": 2000000}
          }
        ]
      }
    ]
  }
]`

func TestParsePassingScenario(t *testing.T) {
	parser := newTestParser(t)
	results := parser.Parse(writeReport(t, passingReport))

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "Create widget", r.Name)
	assert.Equal(t, scenario.StatusPassed, r.Status)
	assert.Equal(t, int64(3), r.DurationMS)
	assert.Empty(t, r.ErrorMessage)
	assert.Equal(t, []string{"@widget"}, r.Tags)
	assert.Equal(t, "Widget API", r.Feature)
	assert.Equal(t, 8, r.Line)
	assert.False(t, r.HasMultipleExecutions)
	assert.Empty(t, r.IndividualExecutions)

	require.Len(t, r.Steps, 2)
	assert.Equal(t, "the widget service is available", r.Steps[0].Name)
	assert.Equal(t, int64(1), r.Steps[0].DurationMS)
	assert.Equal(t, int64(2), r.Steps[1].DurationMS)
}

func TestParseFailedStepBuildsErrorMessage(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {
        "name": "Create widget",
        "type": "scenario",
        "steps": [
          {
            "keyword": "Given ",
            "name": "the widget service is available",
            "result": {"status": "passed", "duration": 1000000}
          },
          {
            "keyword": "Then ",
            "name": "the response code is 201",
            "result": {"status": "failed", "duration": 500000, "error_message": "expected 201 got 500"}
          }
        ]
      }
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)
	assert.Equal(t, scenario.StatusFailed, results[0].Status)
	assert.Equal(t, "the response code is 201: expected 201 got 500", results[0].ErrorMessage)
}

func TestParseConsolidatesOutlineExamples(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {
        "name": "Create widget with payload",
        "type": "scenario",
        "steps": [{"keyword": "When ", "name": "I post the payload", "result": {"status": "passed", "duration": 1000000}}]
      },
      {
        "name": "Create widget with payload",
        "type": "scenario",
        "steps": [{"keyword": "When ", "name": "I post the payload", "result": {"status": "failed", "duration": 1000000, "error_message": "boom"}}]
      },
      {
        "name": "Create widget with payload",
        "type": "scenario",
        "steps": [{"keyword": "When ", "name": "I post the payload", "result": {"status": "passed", "duration": 1000000}}]
      }
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)

	group := results[0]
	assert.Equal(t, scenario.StatusFailed, group.Status)
	assert.True(t, group.HasMultipleExecutions)
	assert.Equal(t, int64(3), group.DurationMS)
	require.Len(t, group.IndividualExecutions, 3)
	assert.Equal(t, "Create widget with payload (Example 2)", group.IndividualExecutions[1].Name)
	assert.Equal(t, scenario.StatusFailed, group.IndividualExecutions[1].Status)
}

func TestParseMissingFile(t *testing.T) {
	parser := newTestParser(t)
	results := parser.Parse(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Empty(t, results)
}

func TestParseEmptyFile(t *testing.T) {
	parser := newTestParser(t)
	assert.Empty(t, parser.Parse(writeReport(t, "")))
	assert.Empty(t, parser.Parse(writeReport(t, "   \n\t")))
}

func TestParseNonArrayJSON(t *testing.T) {
	parser := newTestParser(t)
	assert.Empty(t, parser.Parse(writeReport(t, `{"not": "an array"}`)))
	assert.Empty(t, parser.Parse(writeReport(t, `this is not json`)))
}

func TestParseHookSteps(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {
        "name": "Create widget",
        "type": "scenario",
        "steps": [
          {"keyword": "Before", "name": "", "result": {"status": "passed", "duration": 100000}},
          {"keyword": "When ", "name": "I create a widget", "result": {"status": "passed", "duration": 1000000}},
          {"keyword": "After ", "name": "cleanup widgets", "result": {"status": "passed", "duration": 200000}}
        ]
      }
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)
	require.Len(t, results[0].Steps, 3)

	before := results[0].Steps[0]
	assert.True(t, before.IsHook)
	assert.Equal(t, scenario.HookBefore, before.HookKind)
	assert.Equal(t, "Before Hook", before.Name)

	assert.False(t, results[0].Steps[1].IsHook)

	after := results[0].Steps[2]
	assert.True(t, after.IsHook)
	assert.Equal(t, scenario.HookAfter, after.HookKind)
	assert.Equal(t, "cleanup widgets", after.Name)
}

func TestParseSkipsBackgroundElements(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {
        "name": "Shared setup",
        "type": "background",
        "steps": [{"keyword": "Given ", "name": "a clean database", "result": {"status": "passed", "duration": 1000000}}]
      },
      {
        "name": "Create widget",
        "type": "scenario",
        "steps": [{"keyword": "When ", "name": "I create a widget", "result": {"status": "passed", "duration": 1000000}}]
      }
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)
	assert.Equal(t, "Create widget", results[0].Name)
}

func TestParseDurationTruncatesSubMillisecond(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {
        "name": "Create widget",
        "type": "scenario",
        "steps": [
          {"keyword": "When ", "name": "fast step", "result": {"status": "passed", "duration": 999999}},
          {"keyword": "Then ", "name": "slow step", "result": {"status": "passed", "duration": 1500000}}
        ]
      }
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].Steps[0].DurationMS)
	assert.Equal(t, int64(1), results[0].Steps[1].DurationMS)
	assert.Equal(t, int64(1), results[0].DurationMS)
}

func TestParseScenarioWithNoStepsIsSkipped(t *testing.T) {
	parser := newTestParser(t)
	path := writeReport(t, `[
  {
    "name": "Widget API",
    "elements": [
      {"name": "Placeholder scenario", "type": "scenario", "steps": []}
    ]
  }
]`)

	results := parser.Parse(path)
	require.Len(t, results, 1)
	assert.Equal(t, scenario.StatusSkipped, results[0].Status)
}
