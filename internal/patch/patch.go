// Package patch implements the string patcher (C2): applying a set of
// disjoint (range, replacement) edits to a source string.
package patch

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a half-open byte range [Start, End) into a source string.
type Range struct {
	Start int
	End   int
}

// Edit replaces the bytes in Range with Replacement.
type Edit struct {
	Range       Range
	Replacement string
}

// Apply sorts edits by start offset and splices their replacements
// into source. Edits must be pairwise disjoint; Apply panics if two
// edits overlap, since that indicates a bug in the caller rather than
// a recoverable condition.
func Apply(source string, edits []Edit) string {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Range.Start < sorted[j].Range.Start })

	var b strings.Builder
	b.Grow(len(source))
	pos := 0
	for _, e := range sorted {
		if e.Range.Start < pos {
			panic(fmt.Sprintf("patch: overlapping edit at %d (previous edit ended at %d)", e.Range.Start, pos))
		}
		b.WriteString(source[pos:e.Range.Start])
		b.WriteString(e.Replacement)
		pos = e.Range.End
	}
	b.WriteString(source[pos:])
	return b.String()
}

// Blanks returns a string of '\n' characters, one per newline inside
// r, so a replacement can preserve line numbers for stack traces.
func Blanks(source string, r Range) string {
	return strings.Repeat("\n", strings.Count(source[r.Start:r.End], "\n"))
}
