// Package replize implements the REPL-preserving transform (C3): given
// a module's source and its analysis, it produces a self-contained
// script that can be evaluated repeatedly in the same named scope
// without suffering re-declaration errors or losing earlier bindings.
package replize

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jamesdiacono/replete/internal/analyze"
	"github.com/jamesdiacono/replete/internal/patch"
)

// identSpec describes one entry in the harness's identifier list. A
// plain local variable/function/class binding marshals to the JSON
// literal 0; an importation carries enough metadata for the harness's
// static projection loop to pull the right value out of the free
// `imports` array.
type identSpec struct {
	Kind string `json:"kind,omitempty"` // "default", "ns", "named" — "" for a plain local
	Imp  int    `json:"imp"`
	Name string `json:"name,omitempty"` // exported name, for "named"
}

// harnessTemplate is the literal outer harness (spec §4.3): it creates
// (or reuses) the named scope, (re)initializes every identifier the
// payload declares — plain locals to undefined, importations projected
// out of the free `imports` array the host populates before evaluating
// — then runs the payload with `eval` inside a `with` block so the
// payload's free variable references and assignments flow through the
// scope. `eval` is called directly (not through a reference) so it
// inherits the enclosing `with` scope rather than running in global
// scope. The IIFE returns `scope.last_value`, so the host evaluator's
// own run-this-script call completes with the REPL's result value
// rather than needing a second round trip into the scope record.
const harnessTemplate = `(function () {
    var g = (typeof globalThis !== "undefined") ? globalThis : this;
    var scopes = g.__replete_scopes__ || (g.__replete_scopes__ = {});
    var scope = scopes[%s] || (scopes[%s] = {default_export: undefined, last_value: undefined});
    var idents = %s;
    for (var name in idents) {
        if (!Object.prototype.hasOwnProperty.call(idents, name)) {
            continue;
        }
        var spec = idents[name];
        if (spec === 0) {
            scope[name] = undefined;
            continue;
        }
        var imported = imports[spec.imp];
        if (spec.kind === "default") {
            scope[name] = imported ? imported.default : undefined;
        } else if (spec.kind === "ns") {
            scope[name] = imported;
        } else {
            scope[name] = imported ? imported[spec.name] : undefined;
        }
    }
    with (scope) {
        scope.last_value = eval(%s);
    }
    return scope.last_value;
}).call(this);
`

// Replize produces the self-contained script described by spec §4.3.
// dynamicSpecifiers must have one entry per a.Dynamics, in the same
// order, holding the fully resolved/versioned/projected specifier each
// dynamic form is to be rewritten to.
func Replize(source string, a analyze.Analysis, dynamicSpecifiers []string, scopeName string) (string, error) {
	if len(dynamicSpecifiers) != len(a.Dynamics) {
		return "", fmt.Errorf("replize: %d dynamic specifiers provided for %d dynamic forms", len(dynamicSpecifiers), len(a.Dynamics))
	}

	decls, err := scanDeclarations(source)
	if err != nil {
		return "", err
	}

	var edits []patch.Edit
	identifiers := map[string]interface{}{}

	for _, im := range a.Imports {
		r := patch.Range{Start: im.Range.Start, End: im.Range.End}
		edits = append(edits, patch.Edit{Range: r, Replacement: patch.Blanks(source, r)})
	}
	for i, im := range a.Imports {
		if im.DefaultName != "" {
			identifiers[im.DefaultName] = identSpec{Kind: "default", Imp: i}
		}
		if im.Names.HasNamespace {
			identifiers[im.Names.Namespace] = identSpec{Kind: "ns", Imp: i}
		}
		if im.Names.HasNamed {
			for exported, alias := range im.Names.Named {
				identifiers[alias] = identSpec{Kind: "named", Imp: i, Name: exported}
			}
		}
	}

	for _, ex := range a.Exports {
		r := patch.Range{Start: ex.Range.Start, End: ex.Range.End}
		switch ex.Kind {
		case analyze.ExportDefault:
			edits = append(edits, patch.Edit{Range: r, Replacement: "default_export = "})
		default:
			edits = append(edits, patch.Edit{Range: r, Replacement: patch.Blanks(source, r)})
		}
	}

	for i, d := range a.Dynamics {
		r := patch.Range{Start: d.ScriptRange.Start, End: d.ScriptRange.End}
		replacement := strconv.Quote(dynamicSpecifiers[i]) + patch.Blanks(source, r)
		edits = append(edits, patch.Edit{Range: r, Replacement: replacement})
	}

	var funcPrefix string
	for _, d := range decls {
		edits = append(edits, d.edits(source)...)
		for _, n := range d.names {
			if n != "" {
				identifiers[n] = 0
			}
		}
		if d.kind == declFunction && len(d.names) > 0 && d.names[0] != "" {
			funcPrefix += d.names[0] + " = $" + d.names[0] + ";"
		}
	}

	payload := "\"use strict\";\n" + funcPrefix + patch.Apply(source, edits)

	scopeJSON, err := json.Marshal(scopeName)
	if err != nil {
		return "", fmt.Errorf("replize: %w", err)
	}
	identsJSON, err := json.Marshal(identifiers)
	if err != nil {
		return "", fmt.Errorf("replize: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("replize: %w", err)
	}

	return fmt.Sprintf(harnessTemplate, scopeJSON, scopeJSON, identsJSON, payloadJSON), nil
}
