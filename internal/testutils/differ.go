package testutils

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffText produces a line-oriented diff between expected and actual text,
// with -/+ prefixes. Returns an empty string when the two are equal. Used by
// rendering tests to show exactly where transcript output diverged.
func DiffText(expected, actual string) string {
	if expected == actual {
		return ""
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(expected, actual)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			fmt.Fprintf(&sb, "%s %s\n", prefix, line)
		}
	}
	return sb.String()
}

// AssertableDiff formats a diff for test failure messages.
func AssertableDiff(expected, actual string) string {
	diff := DiffText(expected, actual)
	if diff == "" {
		return ""
	}
	return "output mismatch (-expected +actual):\n" + diff
}
