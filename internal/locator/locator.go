// Package locator implements the URL-shaped module identifiers used
// throughout Replete: plain locators (file:// or opaque) and the
// versioned form served by the module HTTP port.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// FileScheme is the only scheme the core reads, hashes and watches.
const FileScheme = "file"

// ErrNotFile is returned by operations that require a file:// locator.
var ErrNotFile = errors.New("locator: not a file:// locator")

// Locator is a validated URL-shaped module identifier.
type Locator string

// New wraps a raw string. It performs no validation beyond requiring a
// "scheme://" prefix, since opaque (non-file) schemes are deliberately
// treated as unparsed by the rest of the core (spec §3).
func New(raw string) (Locator, error) {
	if !strings.Contains(raw, "://") {
		return "", fmt.Errorf("locator: %q is not URL-shaped", raw)
	}
	return Locator(raw), nil
}

// Scheme returns the locator's scheme, e.g. "file" or "https".
func (l Locator) Scheme() string {
	s := string(l)
	if i := strings.Index(s, "://"); i >= 0 {
		return s[:i]
	}
	return ""
}

// IsFile reports whether this locator is a file:// locator, i.e. one
// the core may read, hash and watch.
func (l Locator) IsFile() bool {
	return l.Scheme() == FileScheme
}

// Path returns the path component after "file://". It panics if this
// is not a file locator — callers must check IsFile first.
func (l Locator) Path() string {
	if !l.IsFile() {
		panic("locator: Path called on non-file locator " + string(l))
	}
	return strings.TrimPrefix(string(l), FileScheme+"://")
}

// FromPath builds a file:// locator from a filesystem path. path must
// be absolute and slash-separated.
func FromPath(path string) Locator {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return Locator(FileScheme + "://" + path)
}

func (l Locator) String() string { return string(l) }
