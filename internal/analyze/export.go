package analyze

import "github.com/jamesdiacono/replete/internal/lexer"

// parseExport parses an `export ...` statement starting at stmtStart,
// where the `export` keyword has not yet been consumed. Only three
// shapes need the whole statement recorded and elided (named export
// list, re-export, export-all); `export default` and `export
// <declaration>` record only the prefix so the underlying expression
// or declaration is left for further scanning/rewriting (spec §4.1,
// §4.3).
func parseExport(s *lexer.Scanner, stmtStart int, a *Analysis) error {
	s.Pos += len("export")
	if err := s.SkipTrivia(); err != nil {
		return parseErr(err)
	}

	switch {
	case s.AtWord("default"):
		s.Pos += len("default")
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		a.Exports = append(a.Exports, Export{
			Range: Range{stmtStart, s.Pos},
			Kind:  ExportDefault,
		})
		return nil

	case !s.Eof() && s.Src[s.Pos] == '{':
		if err := s.SkipBalanced(); err != nil {
			return parseErr(err)
		}
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		if s.AtWord("from") {
			s.Pos += len("from")
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
			if _, _, _, ok := s.ReadStringLiteral(); !ok {
				return &ParseError{Pos: s.Pos, Msg: "expected string literal after 'from' in re-export"}
			}
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
		}
		if !s.Eof() && s.Src[s.Pos] == ';' {
			s.Pos++
		}
		a.Exports = append(a.Exports, Export{
			Range: Range{stmtStart, s.Pos},
			Kind:  ExportNamed,
		})
		return nil

	case !s.Eof() && s.Src[s.Pos] == '*':
		s.Pos++
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		if s.AtWord("as") {
			s.Pos += len("as")
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
			_ = s.ReadIdent()
			if err := s.SkipTrivia(); err != nil {
				return parseErr(err)
			}
		}
		if !s.AtWord("from") {
			return &ParseError{Pos: s.Pos, Msg: "expected 'from' in export-all"}
		}
		s.Pos += len("from")
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		if _, _, _, ok := s.ReadStringLiteral(); !ok {
			return &ParseError{Pos: s.Pos, Msg: "expected string literal after 'from' in export-all"}
		}
		if err := s.SkipTrivia(); err != nil {
			return parseErr(err)
		}
		if !s.Eof() && s.Src[s.Pos] == ';' {
			s.Pos++
		}
		a.Exports = append(a.Exports, Export{
			Range: Range{stmtStart, s.Pos},
			Kind:  ExportAll,
		})
		return nil

	default:
		// `export function/class/const/let/var/async function ...` —
		// only the "export " prefix is recorded; the declaration
		// itself is left in place for the replize transform's
		// separate top-level-declaration rewrite.
		a.Exports = append(a.Exports, Export{
			Range: Range{stmtStart, s.Pos},
			Kind:  ExportNamed,
		})
		return nil
	}
}
