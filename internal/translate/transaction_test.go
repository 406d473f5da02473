package translate

import "testing"

func TestTransactionVerbRewriterBegin(t *testing.T) {
	cases := map[string]string{
		"BEGIN":               "START TRANSACTION",
		"BEGIN TRANSACTION":   "START TRANSACTION",
		"begin work":          "START TRANSACTION",
		"  BEGIN":             "  START TRANSACTION",
	}
	for in, want := range cases {
		out, rewrote := TransactionVerbRewriter{}.Rewrite(in)
		if out != want || !rewrote {
			t.Errorf("Rewrite(%q) = %q (rewrote=%v), want %q", in, out, rewrote, want)
		}
	}
}

func TestTransactionVerbRewriterLeavesCommitRollback(t *testing.T) {
	for _, in := range []string{"COMMIT", "ROLLBACK", "COMMIT AND CHAIN"} {
		out, rewrote := TransactionVerbRewriter{}.Rewrite(in)
		if out != in || rewrote {
			t.Errorf("Rewrite(%q) = %q (rewrote=%v), want unchanged", in, out, rewrote)
		}
	}
}

func TestTransactionVerbRewriterIgnoresStringLiterals(t *testing.T) {
	in := `SELECT 'BEGIN' AS label`
	out, rewrote := TransactionVerbRewriter{}.Rewrite(in)
	if out != in || rewrote {
		t.Fatalf("Rewrite(%q) = %q (rewrote=%v), want unchanged", in, out, rewrote)
	}
}
