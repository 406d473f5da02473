package translate

import "testing"

func TestTranslatorScenarioVectorQuery(t *testing.T) {
	tr := NewTranslator(DefaultConfig())
	sql := `SELECT id FROM vecs ORDER BY embedding <=> '[0.1,0.2,0.3]' LIMIT 5`
	out, _, metrics, err := tr.Translate(sql, nil, PathDirect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `SELECT TOP 5 ID FROM SQLUSER.VECS ORDER BY VECTOR_COSINE(EMBEDDING, TO_VECTOR('[0.1,0.2,0.3]', FLOAT))`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
	if metrics.VectorRewriteCount != 1 {
		t.Fatalf("expected one vector rewrite, got metrics=%+v", metrics)
	}
	if metrics.DialectRewriteCount != 1 {
		t.Fatalf("expected one LIMIT->TOP rewrite, got metrics=%+v", metrics)
	}
}

func TestTranslatorBeginTransaction(t *testing.T) {
	tr := NewTranslator(DefaultConfig())
	out, _, _, err := tr.Translate("BEGIN", nil, PathDirect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "START TRANSACTION" {
		t.Fatalf("got %q", out)
	}
}

func TestTranslatorParseBindSplitDefersValidation(t *testing.T) {
	tr := NewTranslator(DefaultConfig())

	parsed, _, err := tr.TranslateStatement(`SELECT id FROM vecs ORDER BY embedding <=> TO_VECTOR(?) LIMIT 5`)
	if err != nil {
		t.Fatalf("Parse-time translation should defer validation, got error: %v", err)
	}
	if !tr.vector.HasPendingPlaceholder(parsed) {
		t.Fatalf("expected a pending TO_VECTOR placeholder in %q", parsed)
	}

	finalSQL, params, err := tr.RewriteBoundParams(parsed, []BoundParam{{Raw: "[0.1,0.2,0.3]"}})
	if err != nil {
		t.Fatalf("unexpected error from RewriteBoundParams: %v", err)
	}
	if len(params) != 0 {
		t.Fatalf("expected the vector param to be consumed, got %+v", params)
	}
	want := `SELECT TOP 5 ID FROM SQLUSER.VECS ORDER BY VECTOR_COSINE(EMBEDDING, TO_VECTOR('[0.1,0.2,0.3]', FLOAT))`
	if finalSQL != want {
		t.Fatalf("got %q, want %q", finalSQL, want)
	}
}

func TestNextTxStatus(t *testing.T) {
	if got := NextTxStatus(TxIdle, true, false, false); got != TxActive {
		t.Fatalf("BEGIN from Idle should move to Active, got %c", got)
	}
	if got := NextTxStatus(TxActive, false, false, true); got != TxFailed {
		t.Fatalf("error while Active should move to Failed, got %c", got)
	}
	if got := NextTxStatus(TxFailed, false, true, false); got != TxIdle {
		t.Fatalf("ROLLBACK from Failed should move to Idle, got %c", got)
	}
	if got := NextTxStatus(TxIdle, false, false, true); got != TxIdle {
		t.Fatalf("error while Idle (simple query) should stay Idle, got %c", got)
	}
}
