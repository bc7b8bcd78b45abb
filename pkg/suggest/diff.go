package suggest

import (
	"github.com/pmezard/go-difflib/difflib"
)

// buildUnifiedDiff renders a unified diff between the current and proposed
// content, labeled with the repository-relative path on both sides.
func buildUnifiedDiff(path, from, to string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
