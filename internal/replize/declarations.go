package replize

import (
	"unicode/utf8"

	"github.com/jamesdiacono/replete/internal/lexer"
	"github.com/jamesdiacono/replete/internal/patch"
)

// declKind classifies a top-level declaration found by scan.
type declKind int

const (
	declVar declKind = iota
	declFunction
	declClass
)

// decl is one top-level var/let/const, function or class declaration,
// located by an independent scan over the original source (analyze
// doesn't track these — they aren't import/export forms).
type decl struct {
	kind  declKind
	start int
	end   int
	// names are the identifiers this declaration binds.
	names []string
	// nameStart/nameEnd bound the declared name token itself, for
	// declFunction/declClass (where the name must be rewritten in
	// place, not just recorded).
	nameStart int
	nameEnd   int
	// extra holds additional edits a declVar needs beyond stripping the
	// keyword: " = undefined" insertions for bare declarators, and the
	// parentheses around a leading object-pattern declarator.
	extra []patch.Edit
}

// scanDeclarations walks src looking for top-level (depth-0) var, let,
// const, function and class declarations, per spec §4.3.
func scanDeclarations(src string) ([]decl, error) {
	s := lexer.New(src)
	depth := 0
	var out []decl

	for {
		if err := s.SkipTrivia(); err != nil {
			return nil, err
		}
		if s.Eof() {
			break
		}
		start := s.Pos
		switch {
		case depth == 0 && (s.AtWord("var") || s.AtWord("let") || s.AtWord("const")):
			d, err := scanVarDecl(s, start)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		case depth == 0 && s.AtWord("async") && atAsyncFunction(s):
			s.Pos += len("async")
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			d, err := scanFunctionDecl(s, start)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		case depth == 0 && s.AtWord("function"):
			d, err := scanFunctionDecl(s, start)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		case depth == 0 && s.AtWord("class"):
			d, err := scanClassDecl(s, start)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		default:
			if err := advanceGeneric(s, &depth); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func atAsyncFunction(s *lexer.Scanner) bool {
	save := s.Pos
	defer func() { s.Pos = save }()
	s.Pos += len("async")
	if err := s.SkipTrivia(); err != nil {
		return false
	}
	return s.AtWord("function")
}

func advanceGeneric(s *lexer.Scanner, depth *int) error {
	c := s.Src[s.Pos]
	switch c {
	case '\'', '"', '`':
		return s.SkipStringOrTemplate()
	case '(', '[', '{':
		*depth++
		s.Pos++
	case ')', ']', '}':
		if *depth > 0 {
			*depth--
		}
		s.Pos++
	default:
		if id := s.ReadIdent(); id != "" {
			return nil
		}
		_, size := utf8.DecodeRuneInString(s.Src[s.Pos:])
		if size == 0 {
			size = 1
		}
		s.Pos += size
	}
	return nil
}

func isThreeDots(s *lexer.Scanner) bool {
	return !s.Eof() && s.Src[s.Pos] == '.' &&
		s.Pos+2 < len(s.Src) && s.Src[s.Pos+1] == '.' && s.Src[s.Pos+2] == '.'
}

// scanVarDecl parses `(var|let|const) declarator (, declarator)* ;`.
func scanVarDecl(s *lexer.Scanner, start int) (decl, error) {
	s.ReadIdent() // "var", "let" or "const"
	var names []string
	var extra []patch.Edit
	declaratorCount := 0
	var objStart, objEnd int
	objectPattern := false
	for {
		if err := s.SkipTrivia(); err != nil {
			return decl{}, err
		}
		declaratorCount++
		declaratorStart := s.Pos
		isObject := !s.Eof() && s.Src[s.Pos] == '{'
		isPattern := isObject || (!s.Eof() && s.Src[s.Pos] == '[')
		n, err := bindingNames(s)
		if err != nil {
			return decl{}, err
		}
		names = append(names, n...)
		afterTarget := s.Pos
		if err := s.SkipTrivia(); err != nil {
			return decl{}, err
		}
		if !s.Eof() && s.Src[s.Pos] == '=' {
			s.Pos++
			if err := s.SkipTrivia(); err != nil {
				return decl{}, err
			}
			if err := s.SkipExpressionUntil(",;"); err != nil {
				return decl{}, err
			}
		} else if !isPattern && len(n) == 1 {
			// Bare declarator: `name` becomes `name = undefined`.
			extra = append(extra, patch.Edit{
				Range:       patch.Range{Start: afterTarget, End: afterTarget},
				Replacement: " = undefined",
			})
		}
		if isObject && declaratorCount == 1 {
			objStart, objEnd = declaratorStart, s.Pos
			objectPattern = true
		}
		if err := s.SkipTrivia(); err != nil {
			return decl{}, err
		}
		if !s.Eof() && s.Src[s.Pos] == ',' {
			s.Pos++
			continue
		}
		break
	}
	if !s.Eof() && s.Src[s.Pos] == ';' {
		s.Pos++
	}
	if objectPattern {
		extra = append(extra,
			patch.Edit{Range: patch.Range{Start: objStart, End: objStart}, Replacement: "("},
			patch.Edit{Range: patch.Range{Start: objEnd, End: objEnd}, Replacement: ")"},
		)
	}
	return decl{kind: declVar, start: start, end: s.Pos, names: names, extra: extra}, nil
}

// bindingNames parses one binding target (identifier, object pattern or
// array pattern) at the current position and returns the names it
// binds, leaving s.Pos just past the pattern (before any "= default" or
// separator).
func bindingNames(s *lexer.Scanner) ([]string, error) {
	if s.Eof() {
		return nil, nil
	}
	switch s.Src[s.Pos] {
	case '{':
		return objectPatternNames(s)
	case '[':
		return arrayPatternNames(s)
	default:
		id := s.ReadIdent()
		if id == "" {
			return nil, nil
		}
		return []string{id}, nil
	}
}

func objectPatternNames(s *lexer.Scanner) ([]string, error) {
	var names []string
	s.Pos++ // consume '{'
	for {
		if err := s.SkipTrivia(); err != nil {
			return nil, err
		}
		if s.Eof() {
			return names, nil
		}
		if s.Src[s.Pos] == '}' {
			s.Pos++
			return names, nil
		}
		if s.Src[s.Pos] == ',' {
			s.Pos++
			continue
		}
		if isThreeDots(s) {
			s.Pos += 3
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			if id := s.ReadIdent(); id != "" {
				names = append(names, id)
			}
			continue
		}
		if s.Src[s.Pos] == '[' {
			// computed key: [expr]
			if err := s.SkipExpressionUntil(":"); err != nil {
				return nil, err
			}
		}
		key := s.ReadIdent()
		if err := s.SkipTrivia(); err != nil {
			return nil, err
		}
		switch {
		case !s.Eof() && s.Src[s.Pos] == ':':
			s.Pos++
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			n, err := bindingNames(s)
			if err != nil {
				return nil, err
			}
			names = append(names, n...)
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
		case !s.Eof() && s.Src[s.Pos] == '=':
			names = append(names, key)
		default:
			if key != "" {
				names = append(names, key)
			}
		}
		if !s.Eof() && s.Src[s.Pos] == '=' {
			s.Pos++
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			if err := s.SkipExpressionUntil(",}"); err != nil {
				return nil, err
			}
		}
	}
}

func arrayPatternNames(s *lexer.Scanner) ([]string, error) {
	var names []string
	s.Pos++ // consume '['
	for {
		if err := s.SkipTrivia(); err != nil {
			return nil, err
		}
		if s.Eof() {
			return names, nil
		}
		if s.Src[s.Pos] == ']' {
			s.Pos++
			return names, nil
		}
		if s.Src[s.Pos] == ',' {
			s.Pos++
			continue
		}
		if isThreeDots(s) {
			s.Pos += 3
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			if id := s.ReadIdent(); id != "" {
				names = append(names, id)
			}
			continue
		}
		n, err := bindingNames(s)
		if err != nil {
			return nil, err
		}
		names = append(names, n...)
		if err := s.SkipTrivia(); err != nil {
			return nil, err
		}
		if !s.Eof() && s.Src[s.Pos] == '=' {
			s.Pos++
			if err := s.SkipTrivia(); err != nil {
				return nil, err
			}
			if err := s.SkipExpressionUntil(",]"); err != nil {
				return nil, err
			}
		}
	}
}

// scanFunctionDecl parses `function [*] name (...) { ... }`. s.Pos must
// be at the `function` keyword; a leading `async` has already been
// consumed by the caller.
func scanFunctionDecl(s *lexer.Scanner, start int) (decl, error) {
	s.Pos += len("function")
	if err := s.SkipTrivia(); err != nil {
		return decl{}, err
	}
	if !s.Eof() && s.Src[s.Pos] == '*' {
		s.Pos++
		if err := s.SkipTrivia(); err != nil {
			return decl{}, err
		}
	}
	nameStart := s.Pos
	name := s.ReadIdent()
	nameEnd := s.Pos
	if err := s.SkipTrivia(); err != nil {
		return decl{}, err
	}
	if !s.Eof() && s.Src[s.Pos] == '(' {
		if err := s.SkipBalanced(); err != nil {
			return decl{}, err
		}
	}
	if err := s.SkipTrivia(); err != nil {
		return decl{}, err
	}
	if !s.Eof() && s.Src[s.Pos] == '{' {
		if err := s.SkipBalanced(); err != nil {
			return decl{}, err
		}
	}
	return decl{
		kind: declFunction, start: start, end: s.Pos,
		names: []string{name}, nameStart: nameStart, nameEnd: nameEnd,
	}, nil
}

// scanClassDecl parses `class name [extends ...] { ... }`.
func scanClassDecl(s *lexer.Scanner, start int) (decl, error) {
	s.Pos += len("class")
	if err := s.SkipTrivia(); err != nil {
		return decl{}, err
	}
	name := s.ReadIdent()
	if err := s.SkipExpressionUntil("{"); err != nil {
		return decl{}, err
	}
	if !s.Eof() && s.Src[s.Pos] == '{' {
		if err := s.SkipBalanced(); err != nil {
			return decl{}, err
		}
	}
	return decl{kind: declClass, start: start, end: s.Pos, names: []string{name}}, nil
}

// edits converts a decl into the patch.Edit(s) described by spec §4.3.
// Function declarations additionally need an edit at source offset 0,
// handled by the caller (replize.go), since it isn't local to the
// declaration's own range.
func (d decl) edits(src string) []patch.Edit {
	name := ""
	if len(d.names) > 0 {
		name = d.names[0]
	}
	switch d.kind {
	case declFunction:
		return []patch.Edit{
			{Range: patch.Range{Start: d.nameStart, End: d.nameEnd}, Replacement: "$" + name},
		}
	case declClass:
		return []patch.Edit{
			{Range: patch.Range{Start: d.start, End: d.start}, Replacement: name + " = "},
			{Range: patch.Range{Start: d.end, End: d.end}, Replacement: ";"},
		}
	default: // declVar
		kwEnd := d.start
		for kwEnd < len(src) && src[kwEnd] != ' ' && src[kwEnd] != '\t' && src[kwEnd] != '\n' {
			kwEnd++
		}
		if kwEnd < len(src) {
			kwEnd++ // eat one separating space so "const x" -> "x", not " x"
		}
		out := []patch.Edit{
			{Range: patch.Range{Start: d.start, End: kwEnd}, Replacement: ""},
		}
		return append(out, d.extra...)
	}
}
