package notebook

import "strings"

// NormalizeMessage folds newlines into spaces and collapses whitespace runs,
// so a multi-line prompt is submitted as one chat entry.
func NormalizeMessage(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
