package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold trims and case-folds s for case-insensitive identifiers such as emails,
// usernames and permission tags.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
