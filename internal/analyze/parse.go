package analyze

import (
	"regexp"
	"unicode/utf8"

	"github.com/jamesdiacono/replete/internal/lexer"
)

var relativeSpecifier = regexp.MustCompile(`^\.\.?/`)

// Parse analyzes a guest-language module's source and extracts its
// import declarations, export declarations and dynamic-import-like
// forms, per spec §4.1.
func Parse(src string) (Analysis, error) {
	s := lexer.New(src)
	var a Analysis
	depth := 0

	for {
		if err := s.SkipTrivia(); err != nil {
			return a, parseErr(err)
		}
		if s.Eof() {
			break
		}
		stmtStart := s.Pos
		switch {
		case s.AtWord("import"):
			if err := parseImportOrDynamic(s, depth, stmtStart, &a); err != nil {
				return a, err
			}
		case depth == 0 && s.AtWord("export"):
			if err := parseExport(s, stmtStart, &a); err != nil {
				return a, err
			}
		case s.AtWord("metaresolve"):
			if err := parseMetaResolve(s, &a); err != nil {
				return a, err
			}
		case s.AtWord("new"):
			if err := parseNew(s, &a); err != nil {
				return a, err
			}
		default:
			if err := advanceOne(s, &depth); err != nil {
				return a, err
			}
		}
	}
	return a, nil
}

func parseErr(err error) error {
	if u, ok := err.(*lexer.ErrUnterminated); ok {
		return &ParseError{Pos: u.Pos, Msg: u.Error()}
	}
	return err
}

// advanceOne consumes exactly one lexical unit: a string/template
// literal, a bracket (tracked in depth), or a single rune/word.
func advanceOne(s *lexer.Scanner, depth *int) error {
	c := s.Src[s.Pos]
	switch c {
	case '\'', '"', '`':
		if err := s.SkipStringOrTemplate(); err != nil {
			return parseErr(err)
		}
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

// parseImportOrDynamic disambiguates `import(...)` (valid at any
// depth) from a top-level `import ... from "...";` declaration (valid
// only at depth 0).
func parseImportOrDynamic(s *lexer.Scanner, depth int, stmtStart int, a *Analysis) error {
	s.Pos += len("import")
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if !s.Eof() && s.Src[s.Pos] == '(' {
		return parseCallLiteralArg(s, stmtStart, DynamicImport, a)
	}
	if depth != 0 {
		// `import` used where only the dynamic form is legal; treat
		// as an ordinary (ignored) identifier.
		return nil
	}
	return parseImportDeclaration(s, stmtStart, a)
}

// parseCallLiteralArg handles the `name(<string-literal>)` shape used
// by both `import(...)` and `metaresolve(...)`. s.Pos must be at the
// opening '('. If the sole argument isn't a bare string literal, the
// position is rewound to the '(' so the caller's generic scanning
// picks it back up (spec: "Specifier values whose literal is not a
// string constant are ignored").
func parseCallLiteralArg(s *lexer.Scanner, callStart int, kind DynamicKind, a *Analysis) error {
	parenPos := s.Pos
	s.Pos++ // consume '('
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	val, lstart, lend, ok := s.ReadStringLiteral()
	if ok {
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
	}
	if !ok || s.Eof() || s.Src[s.Pos] != ')' {
		s.Pos = parenPos
		return nil
	}
	s.Pos++ // consume ')'
	var modRange, scriptRange Range
	switch kind {
	case DynamicImport:
		modRange = Range{lstart, lend}
		scriptRange = modRange
	case DynamicMetaResolve:
		modRange = Range{callStart, s.Pos}
		scriptRange = modRange
	}
	a.Dynamics = append(a.Dynamics, Dynamic{
		Kind: kind, Value: val, ModuleRange: modRange, ScriptRange: scriptRange,
	})
	return nil
}

func parseMetaResolve(s *lexer.Scanner, a *Analysis) error {
	callStart := s.Pos
	s.Pos += len("metaresolve")
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if s.Eof() || s.Src[s.Pos] != '(' {
		return nil
	}
	return parseCallLiteralArg(s, callStart, DynamicMetaResolve, a)
}

// parseNew recognizes `new URL(<relative-literal>, meta_url)`; any
// other shape following `new` is left for generic scanning by
// resetting the position back to just after the `new` keyword.
func parseNew(s *lexer.Scanner, a *Analysis) error {
	callStart := s.Pos
	afterNew := s.Pos + len("new")
	save := s.Pos
	s.Pos = afterNew
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if !s.AtWord("URL") {
		s.Pos = save + len("new")
		return nil
	}
	s.Pos += len("URL")
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if s.Eof() || s.Src[s.Pos] != '(' {
		s.Pos = save + len("new")
		return nil
	}
	s.Pos++ // consume '('
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	val, lstart, lend, ok := s.ReadStringLiteral()
	if !ok || !relativeSpecifier.MatchString(val) {
		s.Pos = save + len("new")
		return nil
	}
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if s.Eof() || s.Src[s.Pos] != ',' {
		s.Pos = save + len("new")
		return nil
	}
	s.Pos++ // consume ','
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if !s.AtWord("meta_url") {
		s.Pos = save + len("new")
		return nil
	}
	s.Pos += len("meta_url")
	metaEnd := s.Pos
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if s.Eof() || s.Src[s.Pos] != ')' {
		s.Pos = save + len("new")
		return nil
	}
	s.Pos++ // consume ')'
	a.Dynamics = append(a.Dynamics, Dynamic{
		Kind:        DynamicNewURL,
		Value:       val,
		ModuleRange: Range{lstart, lend},
		ScriptRange: Range{lstart, metaEnd},
	})
	_ = callStart
	return nil
}
