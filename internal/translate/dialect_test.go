package translate

import "testing"

func TestDialectRewriterLimitToTop(t *testing.T) {
	out, count := DialectRewriter{}.Rewrite(`SELECT id FROM t WHERE x = 1 LIMIT 10`)
	want := `SELECT TOP 10 id FROM t WHERE x = 1`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestDialectRewriterLimitToTopDistinct(t *testing.T) {
	out, count := DialectRewriter{}.Rewrite(`SELECT DISTINCT id FROM t LIMIT 5`)
	want := `SELECT DISTINCT TOP 5 id FROM t`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

// TestDialectRewriterLimitAcrossStringLiteral locks in the whole-string
// rewrite: a string literal sits between SELECT and the trailing LIMIT, so
// a per-lexical-segment rewrite would never see both ends of the move at
// once.
func TestDialectRewriterLimitAcrossStringLiteral(t *testing.T) {
	sql := `SELECT id FROM vecs ORDER BY embedding <=> '[0.1,0.2,0.3]' LIMIT 5`
	out, count := DialectRewriter{}.Rewrite(sql)
	want := `SELECT TOP 5 id FROM vecs ORDER BY embedding <=> '[0.1,0.2,0.3]'`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

// TestDialectRewriterLimitInsideCommentLeftAlone exercises the skip-range
// check in rewriteTrailingLimit directly: a trailing line comment can itself
// look like "LIMIT n" at the end of the statement, and must be left alone.
func TestDialectRewriterLimitInsideCommentLeftAlone(t *testing.T) {
	sql := "SELECT id FROM t -- LIMIT 3"
	out, count := DialectRewriter{}.Rewrite(sql)
	if out != sql || count != 0 {
		t.Fatalf("expected LIMIT text inside a comment left untouched, got %q count=%d", out, count)
	}
}

func TestDialectRewriterCast(t *testing.T) {
	out, count := DialectRewriter{}.Rewrite(`SELECT amount::numeric(10,2) FROM t`)
	want := `SELECT CAST(amount AS numeric(10,2)) FROM t`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestDialectRewriterCastParamPlaceholder(t *testing.T) {
	out, count := DialectRewriter{}.Rewrite(`SELECT $1::int`)
	want := `SELECT CAST($1 AS int)`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestDialectRewriterNextval(t *testing.T) {
	out, count := DialectRewriter{}.Rewrite(`SELECT nextval('orders_id_seq')`)
	want := `SELECT NEXT VALUE FOR orders_id_seq`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestDialectRewriterNoMatches(t *testing.T) {
	sql := `SELECT id FROM t WHERE x = 1`
	out, count := DialectRewriter{}.Rewrite(sql)
	if out != sql || count != 0 {
		t.Fatalf("expected no rewrites, got %q count=%d", out, count)
	}
}
