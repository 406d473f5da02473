package copyproto

import (
	"strings"

	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// Direction distinguishes COPY ... FROM STDIN from COPY ... TO STDOUT.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Options holds the WITH (...) clause settings recognized on a COPY
// statement. CSV is the only format this system accepts; FORMAT CSV is
// parsed and validated but otherwise carries no state.
type Options struct {
	Header    bool
	Delimiter rune
}

// Statement is a parsed COPY statement: either a plain table (optionally
// with an explicit column list) or, for COPY ... TO STDOUT only, a
// parenthesized query.
type Statement struct {
	Direction Direction
	Table     string
	Columns   []string
	Query     string
	Options   Options
}

// ParseStatement parses sql as a COPY statement per
// "COPY table[(cols)] FROM STDIN WITH (FORMAT CSV [, HEADER] [, DELIMITER c])"
// and "COPY (query)|table[(cols)] TO STDOUT WITH (...)". ok is false when
// sql does not begin with the COPY verb, in which case the caller should
// fall through to its normal statement path; a non-nil error paired with
// ok=true means sql DOES begin with COPY but the rest of the grammar could
// not be parsed.
func ParseStatement(sql string) (stmt *Statement, ok bool, err error) {
	rest, matched := stripFoldPrefix(strings.TrimSpace(sql), "COPY")
	if !matched {
		return nil, false, nil
	}
	rest = strings.TrimSpace(rest)

	s := &Statement{Options: Options{Delimiter: ','}}

	if strings.HasPrefix(rest, "(") {
		query, remainder, perr := splitBalancedParens(rest)
		if perr != nil {
			return nil, true, copySyntaxError(perr.Error())
		}
		s.Query = strings.TrimSpace(query)
		rest = remainder
	} else {
		table, remainder, perr := parseIdentifier(rest)
		if perr != nil {
			return nil, true, copySyntaxError(perr.Error())
		}
		s.Table = table
		rest = strings.TrimSpace(remainder)
		if strings.HasPrefix(rest, "(") {
			colsText, remainder, perr := splitBalancedParens(rest)
			if perr != nil {
				return nil, true, copySyntaxError(perr.Error())
			}
			s.Columns = splitColumnList(colsText)
			rest = remainder
		}
	}
	rest = strings.TrimSpace(rest)

	switch {
	case hasFoldPrefix(rest, "FROM"):
		s.Direction = DirectionIn
		rest = strings.TrimSpace(rest[len("FROM"):])
		if !hasFoldPrefix(rest, "STDIN") {
			return nil, true, copySyntaxError("COPY FROM requires STDIN")
		}
		if s.Query != "" {
			return nil, true, copySyntaxError("COPY (query) FROM STDIN is not supported")
		}
		rest = strings.TrimSpace(rest[len("STDIN"):])
	case hasFoldPrefix(rest, "TO"):
		s.Direction = DirectionOut
		rest = strings.TrimSpace(rest[len("TO"):])
		if !hasFoldPrefix(rest, "STDOUT") {
			return nil, true, copySyntaxError("COPY TO requires STDOUT")
		}
		rest = strings.TrimSpace(rest[len("STDOUT"):])
	default:
		return nil, true, copySyntaxError("expected FROM STDIN or TO STDOUT")
	}

	if hasFoldPrefix(rest, "WITH") {
		rest = strings.TrimSpace(rest[len("WITH"):])
	}
	if strings.HasPrefix(rest, "(") {
		optsText, remainder, perr := splitBalancedParens(rest)
		if perr != nil {
			return nil, true, copySyntaxError(perr.Error())
		}
		if perr := parseOptions(optsText, &s.Options); perr != nil {
			return nil, true, perr
		}
		rest = remainder
	}

	rest = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), ";"))
	if rest != "" {
		return nil, true, copySyntaxError("unexpected trailing text: " + rest)
	}
	return s, true, nil
}

func copySyntaxError(detail string) error {
	return pgiriserrors.New(pgiriserrors.KindTranslation, "malformed COPY statement").WithDetail(detail).Err()
}

// hasFoldPrefix reports whether s starts with word (case-insensitively) at
// a token boundary — followed by whitespace, '(', or end of string.
func hasFoldPrefix(s, word string) bool {
	if len(s) < len(word) || !strings.EqualFold(s[:len(word)], word) {
		return false
	}
	if len(s) == len(word) {
		return true
	}
	switch s[len(word)] {
	case ' ', '\t', '\r', '\n', '(':
		return true
	default:
		return false
	}
}

func stripFoldPrefix(s, word string) (string, bool) {
	if !hasFoldPrefix(s, word) {
		return s, false
	}
	return s[len(word):], true
}

// parseIdentifier consumes a (possibly schema-qualified, possibly
// double-quoted) identifier from the front of s and returns it together
// with the unconsumed remainder.
func parseIdentifier(s string) (ident, remainder string, err error) {
	i := 0
loop:
	for i < len(s) {
		switch {
		case s[i] == '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				j++
			}
			if j >= len(s) {
				return "", s, errSyntax("unterminated quoted identifier")
			}
			i = j + 1
		case isIdentByte(s[i]) || s[i] == '.':
			i++
		default:
			break loop
		}
	}
	if i == 0 {
		return "", s, errSyntax("expected a table name")
	}
	return s[:i], s[i:], nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type syntaxErr string

func (e syntaxErr) Error() string { return string(e) }

func errSyntax(msg string) error { return syntaxErr(msg) }

// splitBalancedParens expects s to start with '(' and returns the text
// strictly between the matching closing paren and whatever follows it.
// Nesting and single-quoted strings (which may themselves contain
// parens) are both tracked so a subselect's own parenthesized clauses
// don't terminate the scan early.
func splitBalancedParens(s string) (inner, remainder string, err error) {
	if len(s) == 0 || s[0] != '(' {
		return "", s, errSyntax("expected '('")
	}
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case c == '\'':
			inQuote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", s, errSyntax("unbalanced parentheses")
}

func splitColumnList(s string) []string {
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"`)
		if p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}

// parseOptions parses a comma-separated WITH-clause option list: FORMAT
// CSV, HEADER [boolean], DELIMITER 'c'.
func parseOptions(s string, opts *Options) error {
	for _, part := range splitTopLevelCommas(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Fields(part)
		name := strings.ToUpper(fields[0])
		switch name {
		case "FORMAT":
			if len(fields) < 2 || !strings.EqualFold(fields[1], "csv") {
				return copySyntaxError("only FORMAT CSV is supported")
			}
		case "HEADER":
			opts.Header = true
			if len(fields) >= 2 {
				switch strings.ToUpper(fields[1]) {
				case "FALSE", "0":
					opts.Header = false
				case "TRUE", "1":
					opts.Header = true
				default:
					return copySyntaxError("invalid HEADER value: " + fields[1])
				}
			}
		case "DELIMITER":
			if len(fields) < 2 {
				return copySyntaxError("DELIMITER requires a value")
			}
			d := strings.Trim(fields[1], `'`)
			runes := []rune(d)
			if len(runes) != 1 {
				return copySyntaxError("DELIMITER must be a single character")
			}
			opts.Delimiter = runes[0]
		default:
			return copySyntaxError("unsupported COPY option: " + fields[0])
		}
	}
	return nil
}

// splitTopLevelCommas splits s on commas that are not inside a quoted
// string, so a DELIMITER value of "','" isn't mistaken for a separator.
func splitTopLevelCommas(s string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
