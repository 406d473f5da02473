package translate

import "regexp"

// beginPattern matches BEGIN optionally followed by TRANSACTION or WORK,
// case-insensitively, as a statement-leading verb.
var beginPattern = regexp.MustCompile(`(?i)^(\s*)BEGIN\b(\s+(TRANSACTION|WORK)\b)?`)

// TransactionVerbRewriter rewrites BEGIN[ TRANSACTION] to
// START TRANSACTION; COMMIT and ROLLBACK (with any modifiers, e.g.
// ISOLATION LEVEL ...) pass through unchanged.
type TransactionVerbRewriter struct{}

// Rewrite rewrites sql and reports whether a rewrite occurred.
func (TransactionVerbRewriter) Rewrite(sql string) (string, bool) {
	rewrote := false
	out := rewriteCodeSegments(sql, func(code string) string {
		if loc := beginPattern.FindStringSubmatchIndex(code); loc != nil {
			rewrote = true
			rest := code[loc[1]:]
			// loc[3] ends the leading-whitespace group, which is kept.
			return code[:loc[3]] + "START TRANSACTION" + rest
		}
		return code
	})
	return out, rewrote
}
