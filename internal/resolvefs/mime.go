package resolvefs

import (
	"mime"
	"path/filepath"

	"github.com/jamesdiacono/replete/internal/locator"
)

// ModuleMediaType is the media type assigned to guest-language module
// sources (spec §6), used both to decide whether the module server
// rewrites a response (§4.6) and whether depgraph may hash a file as
// text (§4.4).
const ModuleMediaType = "application/vnd.replete.module+javascript"

// moduleExtensions lists the file extensions treated as guest-language
// modules, independent of what net/http's mime package otherwise knows
// about them.
var moduleExtensions = map[string]bool{
	".rep":  true,
	".repl": true,
	".mjs":  true,
	".js":   true,
}

// Mime returns l's media type, or ok=false if none is known — the
// module server responds 500 in that case (spec §4.6).
func (f *FS) Mime(l locator.Locator) (mediaType string, ok bool) {
	if !l.IsFile() {
		return "", false
	}
	ext := filepath.Ext(l.Path())
	if moduleExtensions[ext] {
		return ModuleMediaType, true
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t, true
	}
	return "", false
}
