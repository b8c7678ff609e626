package scenario

import "strings"

// Consolidate folds results that share a display name into one logical
// result per name, preserving first-appearance order. Scenario outlines
// surface in runner reports as N same-named scenarios, one per example row;
// callers want them as a single entry with the per-example runs retained.
//
// A group of size 1 passes through unchanged apart from ExecutionIndex.
// For larger groups the consolidated result is fail-dominant (failed if any
// member failed, else passed), sums member durations, joins the non-empty
// member error messages, and borrows the first member's steps as a
// representative sample. Members are kept intact in IndividualExecutions,
// renamed to their instance name and tagged with their 1-based position.
func Consolidate(results []Result) []Result {
	if len(results) == 0 {
		return nil
	}

	groups := make(map[string][]Result, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		if _, seen := groups[r.Name]; !seen {
			order = append(order, r.Name)
		}
		groups[r.Name] = append(groups[r.Name], r)
	}

	consolidated := make([]Result, 0, len(order))
	for _, name := range order {
		members := groups[name]
		if len(members) == 1 {
			single := members[0]
			single.ExecutionIndex = 1
			consolidated = append(consolidated, single)
			continue
		}
		consolidated = append(consolidated, consolidateGroup(name, members))
	}
	return consolidated
}

func consolidateGroup(name string, members []Result) Result {
	count := len(members)
	group := Result{
		Name:                  name,
		Tags:                  members[0].Tags,
		Status:                StatusPassed,
		Steps:                 members[0].Steps,
		Feature:               members[0].Feature,
		Line:                  members[0].Line,
		ExecutionIndex:        1,
		HasMultipleExecutions: true,
		IndividualExecutions:  make([]Result, 0, count),
	}

	var errs []string
	for i, m := range members {
		index := i + 1
		m.Name = InstanceName(name, index)
		m.ExecutionIndex = index
		m.ExampleIndex = intPtr(index)
		m.ExampleCount = intPtr(count)

		if m.Status == StatusFailed {
			group.Status = StatusFailed
		}
		group.DurationMS += m.DurationMS
		if m.ErrorMessage != "" {
			errs = append(errs, m.ErrorMessage)
		}
		group.IndividualExecutions = append(group.IndividualExecutions, m)
	}
	group.ErrorMessage = strings.Join(errs, "; ")
	return group
}

func intPtr(v int) *int {
	return &v
}

// Totals holds the summary counters for one execution. Counting happens
// over the consolidated list, so an outline counts once regardless of how
// many example rows it ran.
type Totals struct {
	Scenarios  int   `json:"scenarios"`
	Passed     int   `json:"passed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// Tally counts consolidated results by status and sums their durations.
func Tally(results []Result) Totals {
	totals := Totals{Scenarios: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			totals.Passed++
		case StatusFailed:
			totals.Failed++
		case StatusSkipped:
			totals.Skipped++
		}
		totals.DurationMS += r.DurationMS
	}
	return totals
}
