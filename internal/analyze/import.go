package analyze

import "github.com/jamesdiacono/replete/internal/lexer"

// parseImportDeclaration parses the clause after the `import` keyword
// has already been consumed and the call-vs-declaration check has
// ruled out the dynamic form.
func parseImportDeclaration(s *lexer.Scanner, stmtStart int, a *Analysis) error {
	var names Names
	var defaultName string

	consumeClause := func() error {
		if s.Eof() {
			return nil
		}
		switch s.Src[s.Pos] {
		case '*':
			s.Pos++
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
			if !s.AtWord("as") {
				return &ParseError{Pos: s.Pos, Msg: "expected 'as' after '*' in import clause"}
			}
			s.Pos += len("as")
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
			names.Namespace = s.ReadIdent()
			names.HasNamespace = true
		case '{':
			named, err := parseNamedImportClause(s)
			if err != nil {
				return err
			}
			names.Named = named
			names.HasNamed = true
		}
		return nil
	}

	if !s.Eof() && s.Src[s.Pos] != '\'' && s.Src[s.Pos] != '"' {
		// There's a clause before `from`.
		if s.Src[s.Pos] == '*' || s.Src[s.Pos] == '{' {
			if err := consumeClause(); err != nil {
				return err
			}
		} else {
			defaultName = s.ReadIdent()
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
			if !s.Eof() && s.Src[s.Pos] == ',' {
				s.Pos++
				if err := s.SkipTrivia(); err != nil {
					return parseErr(err)
				}
				if err := consumeClause(); err != nil {
					return err
				}
			}
		}
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		if !s.AtWord("from") {
			return &ParseError{Pos: s.Pos, Msg: "expected 'from' in import declaration"}
		}
		s.Pos += len("from")
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
	}

	spec, litStart, litEnd, ok := s.ReadStringLiteral()
	if !ok {
		return &ParseError{Pos: s.Pos, Msg: "expected string literal specifier in import declaration"}
	}
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}
	if !s.Eof() && s.Src[s.Pos] == ';' {
		s.Pos++
	}

	a.Imports = append(a.Imports, Import{
		Range:          Range{stmtStart, s.Pos},
		SpecifierRange: Range{litStart, litEnd},
		Specifier:      spec,
		DefaultName:    defaultName,
		Names:          names,
	})
	return nil
}

func parseNamedImportClause(s *lexer.Scanner) (map[string]string, error) {
	named := make(map[string]string)
	s.Pos++ // consume '{'
	for {
		if err := s.SkipTrivia(); err != nil {
			return nil, parseErr(err)
		}
		if s.Eof() {
			return nil, &ParseError{Pos: s.Pos, Msg: "unterminated named import clause"}
		}
		if s.Src[s.Pos] == '}' {
			s.Pos++
			return named, nil
		}
		name := s.ReadIdent()
		if name == "" {
			return nil, &ParseError{Pos: s.Pos, Msg: "expected identifier in named import clause"}
		}
		if err := s.SkipTrivia(); err != nil {
			return nil, parseErr(err)
		}
		alias := name
		if s.AtWord("as") {
			s.Pos += len("as")
			if err := s.SkipTrivia(); err != nil {
				return nil, parseErr(err)
			}
			alias = s.ReadIdent()
			if err := s.SkipTrivia(); err != nil {
				return nil, parseErr(err)
			}
		}
		named[name] = alias
		if !s.Eof() && s.Src[s.Pos] == ',' {
			s.Pos++
		}
	}
}
