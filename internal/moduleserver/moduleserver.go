// Package moduleserver implements the module HTTP server (C6): it
// serves a guest module's source, rewritten so each import specifier
// and dynamic module range points at the projected, versioned URL a
// given evaluator platform expects, per spec §4.6.
package moduleserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jamesdiacono/replete/internal/analyze"
	"github.com/jamesdiacono/replete/internal/locator"
	"github.com/jamesdiacono/replete/internal/patch"
)

// Mime is the external mime capability (spec §4.8).
type Mime interface {
	Mime(l locator.Locator) (mediaType string, ok bool)
}

// Reader is the external read capability, in both its text and raw
// forms — a module response needs the parsed analysis, a non-module
// response only needs the bytes.
type Reader interface {
	ReadText(l locator.Locator) (src string, ok bool)
	ReadBytes(l locator.Locator) ([]byte, error)
}

// Analyzer lets a Reader short-circuit analysis: when the injected
// Reader also implements this (as internal/core's cached reader
// does), serveHTTP reuses its memoized analysis instead of reparsing
// on every request for an unchanged locator (spec §4.5's "analyzing"
// cache).
type Analyzer interface {
	Analyze(l locator.Locator) (a analyze.Analysis, ok bool, err error)
}

// Resolver resolves and versionizes a specifier against a parent
// locator, gathering spec §4.6 step 2's "resolve + versionize" into one
// interface; a Resolve failure aborts the whole response with a 500, since
// no bare, unprojected specifier may reach the rewritten module.
type Resolver interface {
	Resolve(specifier string, parent locator.Locator) (locator.Locator, error)
	Versionize(l locator.Locator, hash *string) string
	Hash(l locator.Locator) *string
}

// Project turns a resolved, versionized locator string into the form a
// particular evaluator platform expects to import it by — a fully
// qualified HTTP URL for a networked evaluator, or a bare path for an
// in-process one (spec §4.6 step 2, §9 "Dynamic dispatch over
// evaluators").
type Project func(versionedLocator string) string

// Server answers module HTTP requests. Tag is the instance's
// unguessable tag (spec §3); only request paths whose versioned
// segment embeds this tag have that segment stripped. ModuleMediaType
// is the content type that triggers specifier rewriting — the caller
// passes resolvefs.ModuleMediaType for the default realization.
type Server struct {
	Tag             string
	ModuleMediaType string
	Mime            Mime
	Reader          Reader
	Resolver        Resolver
	Project         Project
	Logger          logrus.FieldLogger
}

// New builds a Server. project may be nil, in which case the projected
// form is the versioned locator string unchanged (suitable for
// an in-process evaluator sharing this module's locator space). logger
// may be nil, in which case the standard logrus logger is used.
func New(tag, moduleMediaType string, mime Mime, reader Reader, resolver Resolver, project Project, logger logrus.FieldLogger) *Server {
	if project == nil {
		project = func(s string) string { return s }
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		Tag:             tag,
		ModuleMediaType: moduleMediaType,
		Mime:            mime,
		Reader:          reader,
		Resolver:        resolver,
		Project:         project,
		Logger:          logger,
	}
}

// Handler returns an http.Handler serving spec §4.6's GET semantics.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveHTTP)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if stripped, ok := locator.StripVersion(s.Tag, path); ok {
		path = stripped
	}
	l := locator.FromPath(path)

	mediaType, ok := s.Mime.Mime(l)
	if !ok {
		http.Error(w, "moduleserver: no mime type for "+string(l), http.StatusInternalServerError)
		return
	}

	if mediaType != s.ModuleMediaType {
		data, err := s.Reader.ReadBytes(l)
		if err != nil {
			s.Logger.Errorf("moduleserver: read %s: %v", l, err)
			http.Error(w, "moduleserver: read failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", mediaType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	src, ok := s.Reader.ReadText(l)
	if !ok {
		http.Error(w, "moduleserver: cannot read "+string(l)+" as text", http.StatusInternalServerError)
		return
	}

	var a analyze.Analysis
	if an, isAnalyzer := s.Reader.(Analyzer); isAnalyzer {
		var present bool
		var err error
		a, present, err = an.Analyze(l)
		if err != nil || !present {
			s.Logger.Errorf("moduleserver: analyze %s: %v", l, err)
			http.Error(w, "moduleserver: analyze failed", http.StatusInternalServerError)
			return
		}
	} else {
		var err error
		a, err = analyze.Parse(src)
		if err != nil {
			s.Logger.Errorf("moduleserver: analyze %s: %v", l, err)
			http.Error(w, "moduleserver: analyze failed", http.StatusInternalServerError)
			return
		}
	}

	patched, err := s.patchSpecifiers(src, a, l)
	if err != nil {
		s.Logger.Errorf("moduleserver: patch %s: %v", l, err)
		http.Error(w, "moduleserver: patch failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(patched))
}

// patchSpecifiers implements spec §4.6 steps 2-3: every import's
// source-literal range and every dynamic's module range becomes a
// quoted literal holding the specifier's projected, versioned URL.
func (s *Server) patchSpecifiers(src string, a analyze.Analysis, parent locator.Locator) (string, error) {
	var edits []patch.Edit

	for _, im := range a.Imports {
		r := patch.Range{Start: im.SpecifierRange.Start, End: im.SpecifierRange.End}
		projected, err := s.projectSpecifier(im.Specifier, parent)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", im.Specifier, err)
		}
		edits = append(edits, patch.Edit{Range: r, Replacement: literalWithPadding(src, r, projected)})
	}
	for _, d := range a.Dynamics {
		r := patch.Range{Start: d.ModuleRange.Start, End: d.ModuleRange.End}
		projected, err := s.projectSpecifier(d.Value, parent)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", d.Value, err)
		}
		edits = append(edits, patch.Edit{Range: r, Replacement: literalWithPadding(src, r, projected)})
	}

	return patch.Apply(src, edits), nil
}

// projectSpecifier resolves, versionizes and projects one specifier. A
// resolve failure is returned rather than swallowed: no bare relative
// path may escape into the rewritten module source (spec §4.6).
func (s *Server) projectSpecifier(specifier string, parent locator.Locator) (string, error) {
	child, err := s.Resolver.Resolve(specifier, parent)
	if err != nil {
		return "", err
	}
	hash := s.Resolver.Hash(child)
	versioned := s.Resolver.Versionize(child, hash)
	return s.Project(versioned), nil
}

// literalWithPadding renders value as a quoted string literal,
// preserving r's original line count via trailing newline padding, so
// line numbers elsewhere in the file stay meaningful (spec §4.2/§4.6).
func literalWithPadding(src string, r patch.Range, value string) string {
	return strconv.Quote(value) + patch.Blanks(src, r)
}

