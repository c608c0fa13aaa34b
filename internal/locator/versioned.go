package locator

import (
	"fmt"
	"regexp"
)

// versionedSegment matches the "/v<version>/<tag>" prefix injected into
// a locator or URL path immediately after the scheme/authority.
var versionedSegment = regexp.MustCompile(`^/v(\d+)/([^/]+)(/.*)$`)

// Version produces the versioned form of a file:// locator: the
// scheme is kept, and "/v<version>/<tag>" is spliced in immediately
// before the path, as required by spec §3.
func Version(tag string, version int, l Locator) string {
	if !l.IsFile() {
		return string(l)
	}
	return fmt.Sprintf("%s:///v%d/%s%s", l.Scheme(), version, tag, l.Path())
}

// VersionPath produces just the "/v<version>/<tag><path>" path
// component, used by the HTTP module server whose URLs don't carry a
// file:// scheme.
func VersionPath(tag string, version int, path string) string {
	return fmt.Sprintf("/v%d/%s%s", version, tag, path)
}

// StripVersion removes a "/v<version>/<tag>" segment from path if, and
// only if, the embedded tag equals this instance's unguessable tag.
// Locators or request paths bearing a foreign or absent tag are
// returned unchanged with ok=false, per spec §4.6 ("only locators
// bearing this tag are treated as versioned").
func StripVersion(tag string, path string) (stripped string, ok bool) {
	m := versionedSegment.FindStringSubmatch(path)
	if m == nil {
		return path, false
	}
	if m[2] != tag {
		return path, false
	}
	return m[3], true
}
