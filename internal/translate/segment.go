package translate

import "regexp"

// stringAndCommentPattern matches a single-quoted string literal, a line
// comment, or a block comment — the three lexical constructs most
// rewriters in this package must leave completely untouched.
var stringAndCommentPattern = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|--[^\n]*|/\*[\s\S]*?\*/`)

// commentOnlyPattern matches just line and block comments. The date
// literal lifter needs this narrower skip set because its own input IS a
// string literal; it must still avoid rewriting a date-shaped sequence
// that only appears inside a comment.
var commentOnlyPattern = regexp.MustCompile(`--[^\n]*|/\*[\s\S]*?\*/`)

// rewriteSegments applies fn to every substring of sql that does not match
// skip, leaving matched segments untouched. Shared scaffolding behind the
// transaction rewriter, schema mapper, dialect rewriter, date lifter, and
// vector optimizer so each
// only has to express its own rewrite rule instead of re-deriving lexical
// skipping.
func rewriteSegments(sql string, skip *regexp.Regexp, fn func(code string) string) string {
	locs := skip.FindAllStringIndex(sql, -1)
	if locs == nil {
		return fn(sql)
	}
	var out []byte
	prev := 0
	for _, loc := range locs {
		out = append(out, fn(sql[prev:loc[0]])...)
		out = append(out, sql[loc[0]:loc[1]]...)
		prev = loc[1]
	}
	out = append(out, fn(sql[prev:])...)
	return string(out)
}

func rewriteCodeSegments(sql string, fn func(code string) string) string {
	return rewriteSegments(sql, stringAndCommentPattern, fn)
}

func rewriteOutsideComments(sql string, fn func(code string) string) string {
	return rewriteSegments(sql, commentOnlyPattern, fn)
}
