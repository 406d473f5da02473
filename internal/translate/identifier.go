// Package translate implements the SQL Translator orchestrator and its
// stateless rewriter stages: identifier normalization, date literal
// lifting, transaction verb rewriting, schema mapping, and the pgvector
// compatibility layer.
//
// Each rewriter follows the same idiom: a compiled regexp plus a small
// replace function applied in a fixed order, carefully skipping string
// literals and comments.
package translate

import "regexp"

// identifierPattern matches either a double-quoted identifier (group 1) or
// an unquoted SQL identifier token (group 2). This is the same alternation
// used by the original system's identifier normalizer
// (src/iris_pgwire/sql_translator/identifier_normalizer.py), adopted
// unchanged because it directly resolves the ambiguity of how
// schema-qualified names (schema.table.column) should be handled: each
// dot-separated part matches the pattern independently and is normalized
// on its own.
var identifierPattern = regexp.MustCompile(`"([^"]*)"|'(?:[^'\\]|\\.)*'|--[^\n]*|/\*[\s\S]*?\*/|(\b[A-Za-z_][A-Za-z0-9_]*\b)`)

// sqlKeywords are uppercased like any other unquoted token but are not
// counted as user identifiers in the returned count, matching the
// original normalizer's keyword set.
var sqlKeywords = buildKeywordSet([]string{
	"SELECT", "FROM", "WHERE", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP",
	"ALTER", "TABLE", "INDEX", "VIEW", "INTO", "VALUES", "SET", "JOIN", "LEFT",
	"RIGHT", "FULL", "INNER", "OUTER", "CROSS", "ON", "AND", "OR", "NOT",
	"NULL", "AS", "ORDER", "BY", "GROUP", "HAVING", "LIMIT", "OFFSET",
	"UNION", "ALL", "INTERSECT", "EXCEPT", "PRIMARY", "KEY", "FOREIGN",
	"REFERENCES", "CONSTRAINT", "UNIQUE", "CHECK", "DEFAULT", "SERIAL",
	"VARCHAR", "INT", "INTEGER", "BIGINT", "SMALLINT", "DECIMAL", "NUMERIC",
	"FLOAT", "DOUBLE", "PRECISION", "DATE", "TIME", "TIMESTAMP", "BOOLEAN",
	"BOOL", "TEXT", "CHAR", "CASCADE", "RESTRICT", "NO", "ACTION", "BEGIN",
	"COMMIT", "ROLLBACK", "TRANSACTION", "CASE", "WHEN", "THEN", "ELSE",
	"END", "IF", "EXISTS", "IN", "BETWEEN", "LIKE", "ILIKE", "IS",
	"DISTINCT", "ANY", "SOME", "TRUE", "FALSE", "UNKNOWN", "CAST",
	"EXTRACT", "SUBSTRING", "POSITION", "TRIM", "UPPER", "LOWER",
	"COALESCE", "NULLIF", "GREATEST", "LEAST", "WITH", "RECURSIVE",
	"RETURNING", "USING", "COPY", "STDIN", "STDOUT", "WITH", "FORMAT",
	"CSV", "HEADER", "DELIMITER", "SAVEPOINT", "TO", "ISOLATION", "LEVEL",
	"READ", "WRITE", "ONLY", "DEFERRABLE", "TOP", "NEXT", "VALUE", "FOR",
})

func buildKeywordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func upperASCII(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// IdentifierNormalizer uppercases unquoted identifiers (the backend is
// case-sensitive and stores identifiers upper-case by default) while
// preserving double-quoted identifiers byte-for-byte.
type IdentifierNormalizer struct{}

// Normalize rewrites sql and returns the rewritten statement plus a count
// of user (non-keyword, unquoted) identifiers touched.
func (IdentifierNormalizer) Normalize(sql string) (string, int) {
	count := 0
	out := identifierPattern.ReplaceAllStringFunc(sql, func(match string) string {
		switch {
		case len(match) >= 2 && match[0] == '"':
			// Quoted identifier: preserve exact case.
			return match
		case len(match) >= 1 && (match[0] == '\'' || match[0] == '-' || match[0] == '/'):
			// String literal or comment: untouched.
			return match
		default:
			upper := upperASCII(match)
			if _, isKeyword := sqlKeywords[upper]; isKeyword {
				return upper
			}
			count++
			return upper
		}
	})
	return out, count
}
