package tracelog

import (
	"github.com/AntonStoeckl/calltracer-go/calltracer"
)

// Summary aggregates trace lines by tag and outcome.
type Summary struct {
	Total    int                    `json:"total"`
	ByTag    map[calltracer.Tag]int `json:"by_tag"`
	ByStatus map[string]int         `json:"by_status"`

	// FailedTests lists the test names with at least one failed call, in order of first failure.
	FailedTests []string `json:"failed_tests"`
}

// Summarize aggregates lines.
func Summarize(lines []Line) Summary {
	summary := Summary{
		Total:       len(lines),
		ByTag:       make(map[calltracer.Tag]int),
		ByStatus:    make(map[string]int),
		FailedTests: make([]string, 0),
	}

	seen := make(map[string]bool)
	for _, line := range lines {
		summary.ByTag[line.Record.Tag]++

		status := line.Record.Status()
		summary.ByStatus[status]++

		if status != calltracer.StatusFailure {
			continue
		}

		test := TestOf(line)
		if test != "" && !seen[test] {
			seen[test] = true
			summary.FailedTests = append(summary.FailedTests, test)
		}
	}

	return summary
}

// TestOf names the test a line belongs to: the function itself for calls tagged test or
// skipped_test, the classified test name otherwise.
func TestOf(line Line) string {
	switch line.Record.Tag {
	case calltracer.TagTest, calltracer.TagSkippedTest:
		return line.Record.FunctionName
	default:
		return line.Record.TestName
	}
}

// Filter keeps the lines matching every given predicate.
func Filter(lines []Line, predicates ...func(Line) bool) []Line {
	kept := make([]Line, 0, len(lines))

outer:
	for _, line := range lines {
		for _, keep := range predicates {
			if !keep(line) {
				continue outer
			}
		}

		kept = append(kept, line)
	}

	return kept
}

// FailuresOnly keeps failed calls.
func FailuresOnly(line Line) bool {
	return line.Record.Status() == calltracer.StatusFailure
}

// WithTags keeps calls classified with one of tags.
func WithTags(tags ...calltracer.Tag) func(Line) bool {
	return func(line Line) bool {
		for _, tag := range tags {
			if line.Record.Tag == tag {
				return true
			}
		}

		return false
	}
}
