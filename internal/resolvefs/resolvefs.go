// Package resolvefs provides the default realization of the external
// capabilities the core consumes (spec §4.8): locate, read, mime and
// watch, backed by an afero.Fs, grounded on the teacher's own
// loader.Load(fs, pwd, path)/loader.Dir shape (parent-directory-relative
// joining, rejecting specifiers that carry a scheme when resolving
// against a local parent).
package resolvefs

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/jamesdiacono/replete/internal/locator"
)

// BareResolver resolves a bare (non-relative, non-absolute) specifier
// to a locator. It stands in for the node_modules-style resolver the
// spec keeps as an external collaborator; the zero value always
// fails, matching "default: not-found".
type BareResolver func(specifier string) (locator.Locator, error)

func NotFoundBareResolver(specifier string) (locator.Locator, error) {
	return "", fmt.Errorf("resolvefs: no resolver configured for bare specifier %q", specifier)
}

// FS is the default locate/read/mime/watch implementation over an
// afero.Fs.
type FS struct {
	fs   afero.Fs
	bare BareResolver
}

// New builds an FS. If bare is nil, bare specifiers always fail to
// resolve.
func New(fs afero.Fs, bare BareResolver) *FS {
	if bare == nil {
		bare = NotFoundBareResolver
	}
	return &FS{fs: fs, bare: bare}
}

// Locate resolves specifier against parent, per spec §4.8.
// Relative specifiers ("./x", "../x") are joined against parent's
// directory, which requires parent to be a file:// locator — the same
// "imports should not contain a protocol" rule the teacher's loader
// enforces for local parents. Absolute specifiers ("/x") are rooted at
// the filesystem root. Anything else is a bare specifier, handed to
// the injected BareResolver.
func (f *FS) Locate(specifier string, parent locator.Locator) (locator.Locator, error) {
	switch {
	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		if !parent.IsFile() {
			return "", fmt.Errorf("resolvefs: cannot resolve relative specifier %q against non-file parent %q", specifier, parent)
		}
		dir := path.Dir(parent.Path())
		return locator.FromPath(path.Join(dir, specifier)), nil
	case strings.HasPrefix(specifier, "/"):
		return locator.FromPath(specifier), nil
	case strings.Contains(specifier, "://"):
		return "", fmt.Errorf("resolvefs: imports should not contain a protocol: %q", specifier)
	default:
		return f.bare(specifier)
	}
}

// ReadBytes reads l's raw bytes, for the module server's "serve raw
// bytes for non-module content types" fallback (spec §4.6).
func (f *FS) ReadBytes(l locator.Locator) ([]byte, error) {
	if !l.IsFile() {
		return nil, fmt.Errorf("resolvefs: %w: %s", locator.ErrNotFile, l)
	}
	return afero.ReadFile(f.fs, l.Path())
}

// ReadText reads l's content as text, but only if l is a readable
// file:// locator whose mime type is the guest module type or a
// text/* type; everything else reports ok=false, folding spec §4.4's
// "undefined" condition into one check. This is the Read half of
// depgraph.Source.
func (f *FS) ReadText(l locator.Locator) (src string, ok bool) {
	if !l.IsFile() {
		return "", false
	}
	mediaType, present := f.Mime(l)
	if !present || !isTextLike(mediaType) {
		return "", false
	}
	data, err := afero.ReadFile(f.fs, l.Path())
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Read adapts ReadText to depgraph.Source's Read signature.
func (f *FS) Read(l locator.Locator) (string, bool) { return f.ReadText(l) }

// Resolve adapts Locate to depgraph.Source's Resolve signature.
func (f *FS) Resolve(specifier string, parent locator.Locator) (locator.Locator, error) {
	return f.Locate(specifier, parent)
}

func isTextLike(mediaType string) bool {
	return mediaType == ModuleMediaType || strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json"
}
