package judge

import (
	"sort"
	"strings"
	"unicode"
)

// CompareOutputs judges actual program output against the expected output.
//
// Exact byte equality passes. When the problem tolerates arbitrary line
// order, both outputs are compared with their lines sorted. Otherwise a
// whitespace-insensitive comparison distinguishes a presentation error
// (correct content, wrong formatting) from a wrong answer.
func CompareOutputs(actual, expected string, ignoreLineOrder bool) Verdict {
	if actual == expected {
		return VerdictPassed
	}
	if ignoreLineOrder && sortedLines(actual) == sortedLines(expected) {
		return VerdictPassed
	}
	if stripWhitespace(actual) == stripWhitespace(expected) {
		return VerdictPresentationError
	}
	return VerdictWrongAnswer
}

func sortedLines(s string) string {
	lines := strings.Split(s, "\n")
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
