package sql

import "strings"

// IsPrepareSpan reports whether an otelsql span name belongs to statement
// preparation. Prepare spans carry the statement text but do not execute it.
func IsPrepareSpan(name string) bool {
	return strings.HasSuffix(name, ".prepare")
}
