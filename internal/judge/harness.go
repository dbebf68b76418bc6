package judge

import (
	"fmt"
	"strings"
)

// UserCodeMarker is the injection point inside a tester harness where the
// user's solution is spliced in.
const UserCodeMarker = "// USER CODE GOES HERE"

// Template is the per-language starter code shown to the user for a
// function-mode problem.
type Template struct {
	ProblemID    int64
	LanguageID   int64
	TemplateCode string
}

// Tester is the per-language harness a function-mode submission is spliced
// into before compilation and execution.
type Tester struct {
	ProblemID  int64
	LanguageID int64
	TesterCode string
}

// SpliceUserCode inserts userCode into the tester at the injection marker.
// A tester without the marker is a configuration error: running it would
// silently ignore the user's code.
func SpliceUserCode(testerCode, userCode string) (string, error) {
	if !strings.Contains(testerCode, UserCodeMarker) {
		return "", fmt.Errorf("tester code has no %q marker", UserCodeMarker)
	}
	return strings.ReplaceAll(testerCode, UserCodeMarker, userCode), nil
}
