// Package report turns a runner's cucumber JSON report file into
// consolidated scenario results. Parsing is fail-open: a missing, empty, or
// malformed report logs a warning and yields zero results so the execution
// can still settle on the runner's exit status alone.
package report

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apiprobe/apiprobe/scenario"
)

// nanosPerMilli is the single place report durations change unit. The wire
// carries nanoseconds, everything downstream is milliseconds.
const nanosPerMilli = 1_000_000

// Parser reads cucumber JSON reports.
type Parser struct {
	logger *zap.SugaredLogger
}

// NewParser creates a report parser. The logger must not be nil.
func NewParser(logger *zap.SugaredLogger) *Parser {
	return &Parser{logger: logger}
}

// Parse reads the report at reportPath and returns its consolidated
// scenario results. It never fails: every unreadable or unparseable state
// degrades to an empty slice with a logged warning, because a crashed
// runner often leaves no report behind and the execution outcome still has
// to be recorded.
func (p *Parser) Parse(reportPath string) []scenario.Result {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		p.logger.Warnw("Report file missing or unreadable, treating as empty",
			"report_path", reportPath,
			"error", err,
		)
		return nil
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		p.logger.Warnw("Report file is empty, treating as empty",
			"report_path", reportPath,
		)
		return nil
	}

	var features []cucumberFeature
	if err := json.Unmarshal(data, &features); err != nil {
		p.logger.Warnw("Report is not a cucumber JSON feature array, treating as empty",
			"report_path", reportPath,
			"error", err,
		)
		return nil
	}

	parsedAt := time.Now()
	var results []scenario.Result
	for _, feature := range features {
		for _, element := range feature.Elements {
			if element.Type == elementTypeBackground {
				continue
			}
			results = append(results, p.parseElement(feature, element, parsedAt))
		}
	}

	return scenario.Consolidate(results)
}

func (p *Parser) parseElement(feature cucumberFeature, element cucumberElement, parsedAt time.Time) scenario.Result {
	result := scenario.Result{
		Name:    element.Name,
		Tags:    element.tagNames(),
		Feature: feature.Name,
		Line:    element.Line,
		Steps:   make([]scenario.Step, 0, len(element.Steps)),
	}

	for _, raw := range element.Steps {
		step := parseStep(raw, parsedAt)
		result.DurationMS += step.DurationMS
		result.Steps = append(result.Steps, step)
	}

	result.Status = scenario.DeriveStatus(result.Steps)
	result.ErrorMessage = scenario.BuildErrorMessage(result.Steps)
	return result
}

func parseStep(raw cucumberStep, parsedAt time.Time) scenario.Step {
	step := scenario.Step{
		Name:         raw.Name,
		Status:       scenario.StatusFromRunner(raw.Result.Status),
		DurationMS:   raw.Result.Duration / nanosPerMilli,
		ErrorMessage: raw.Result.ErrorMessage,
		Timestamp:    parsedAt,
	}

	keyword := strings.TrimSpace(raw.Keyword)
	if scenario.IsHookKind(keyword) {
		step.IsHook = true
		step.HookKind = keyword
		if step.Name == "" {
			step.Name = scenario.SynthesizedHookName(keyword)
		}
	}
	return step
}
