// Package analyze implements the source analyzer (C1): it scans a
// guest-language module and extracts import declarations, export
// declarations and dynamic-import forms with precise source ranges.
//
// The scanner is not a full ECMAScript-grammar parser — the spec is
// explicit that the core "does not parse semantics beyond
// imports/exports/top-level declarations" — but it does tokenize the
// source (strings, template literals, comments, nesting depth) so that
// lookalike text inside a string or comment is never mistaken for a
// statement.
package analyze

import "fmt"

// Range is a half-open byte range [Start, End) into the analyzed
// source.
type Range struct {
	Start int
	End   int
}

func (r Range) Slice(src string) string { return src[r.Start:r.End] }

// Names describes the bindings introduced by an import clause. Exactly
// one of the three is populated, matching spec §3's "either a map
// (exported-name -> local-name), a single identifier (namespace
// import), or absent".
type Names struct {
	// Named maps exported name -> local alias, e.g. `{a, b as c}`.
	Named map[string]string
	// Namespace is the local name bound by `* as ns`.
	Namespace string
	// HasNamed/HasNamespace disambiguate an empty Named map (`import
	// "./x.js";` with no clause at all) from one that is simply empty.
	HasNamed     bool
	HasNamespace bool
}

// Import is one top-level import declaration.
type Import struct {
	Range Range
	// SpecifierRange is the range of just the specifier's string
	// literal, a sub-range of Range — the module server rewrites only
	// this part, leaving the rest of the declaration's text in place
	// (spec §4.6 step 3).
	SpecifierRange Range
	Specifier      string
	DefaultName    string // "" if no default binding
	Names          Names
}

// ExportKind classifies an exports entry.
type ExportKind int

const (
	// ExportDefault is `export default <expr>;`. Range runs from the
	// statement's start to the payload expression's start, per spec
	// §4.1, so it can be replaced with an assignment to the scope's
	// default slot.
	ExportDefault ExportKind = iota
	// ExportNamed is `export {...}`, `export const/let/var/function/class ...`.
	ExportNamed
	// ExportAll is `export * from "..."` or `export * as ns from "..."`.
	ExportAll
)

// Export is one top-level export declaration.
type Export struct {
	Range Range
	Kind  ExportKind
}

// DynamicKind classifies a dynamic-import-like expression form.
type DynamicKind int

const (
	DynamicImport     DynamicKind = iota // import(<literal>)
	DynamicMetaResolve                   // metaresolve(<literal>)
	DynamicNewURL                        // new URL(<relative-literal>, meta_url)
)

// Dynamic is one dynamic-import-like occurrence.
type Dynamic struct {
	Kind DynamicKind
	// Value is the literal specifier string (decoded, no quotes).
	Value string
	// ModuleRange is the range to replace when the output is
	// evaluated as a module.
	ModuleRange Range
	// ScriptRange is the range to replace when the output is
	// evaluated as a script. Differs from ModuleRange only for the
	// NewURL form, where the whole (literal, meta_url) pair must
	// collapse to one string literal in script context.
	ScriptRange Range
}

// Analysis is the result of analyzing one module's source.
type Analysis struct {
	Imports  []Import
	Exports  []Export
	Dynamics []Dynamic
}

// SpecifierSet returns the union of every imports[].Specifier and
// dynamics[].Value, per spec §3.
func (a Analysis) SpecifierSet() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, im := range a.Imports {
		add(im.Specifier)
	}
	for _, d := range a.Dynamics {
		add(d.Value)
	}
	return out
}

// ParseError is a ParseFailure (spec §7): a parse error with the
// offending source position.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analyze: parse error at byte %d: %s", e.Pos, e.Msg)
}
