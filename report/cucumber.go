package report

// Wire types for the cucumber JSON format the runner writes with
// `--format cucumber:<path>`. Every field is optional on the wire; absent
// fields decode to zero values so a sparse or partially written report
// still yields whatever scenarios it does contain.

type cucumberFeature struct {
	URI      string            `json:"uri"`
	ID       string            `json:"id"`
	Keyword  string            `json:"keyword"`
	Name     string            `json:"name"`
	Elements []cucumberElement `json:"elements"`
}

type cucumberElement struct {
	ID      string         `json:"id"`
	Keyword string         `json:"keyword"`
	Name    string         `json:"name"`
	Line    int            `json:"line"`
	Type    string         `json:"type"`
	Tags    []cucumberTag  `json:"tags"`
	Steps   []cucumberStep `json:"steps"`
}

type cucumberTag struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

type cucumberStep struct {
	Keyword string         `json:"keyword"`
	Name    string         `json:"name"`
	Line    int            `json:"line"`
	Result  cucumberResult `json:"result"`
}

type cucumberResult struct {
	Status string `json:"status"`
	// Duration is in nanoseconds on the wire.
	Duration     int64  `json:"duration"`
	ErrorMessage string `json:"error_message"`
}

const elementTypeBackground = "background"

func (t cucumberTag) name() string {
	return t.Name
}

func (e cucumberElement) tagNames() []string {
	if len(e.Tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.Tags))
	for _, tag := range e.Tags {
		names = append(names, tag.name())
	}
	return names
}
