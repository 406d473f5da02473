package translate

import "testing"

func TestVectorOptimizerRewriteTextCosine(t *testing.T) {
	o := NewVectorOptimizer(VectorOptimizerConfig{NegateInnerProduct: true})
	sql := `SELECT id FROM vecs ORDER BY embedding <=> '[0.1,0.2,0.3]' LIMIT 5`
	out, count := o.RewriteText(sql)
	want := `SELECT id FROM vecs ORDER BY VECTOR_COSINE(embedding, TO_VECTOR('[0.1,0.2,0.3]', FLOAT)) LIMIT 5`
	if out != want || count != 1 {
		t.Fatalf("got %q (count=%d), want %q", out, count, want)
	}
}

func TestVectorOptimizerRewriteTextInnerProductNegated(t *testing.T) {
	o := NewVectorOptimizer(VectorOptimizerConfig{NegateInnerProduct: true})
	out, _ := o.RewriteText(`SELECT x <#> '[1,2]'`)
	want := `SELECT -VECTOR_DOT_PRODUCT(x, TO_VECTOR('[1,2]', FLOAT))`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestVectorOptimizerPassThroughUnchanged(t *testing.T) {
	o := NewVectorOptimizer(DefaultVectorOptimizerConfig())
	sql := `SELECT id FROM users WHERE active = true`
	out, count := o.RewriteText(sql)
	if out != sql || count != 0 {
		t.Fatalf("expected pass-through, got %q count=%d", out, count)
	}
}

func TestVectorOptimizerRewriteBound(t *testing.T) {
	o := NewVectorOptimizer(DefaultVectorOptimizerConfig())
	sql := `SELECT id FROM vecs ORDER BY embedding <=> TO_VECTOR(?) LIMIT ?`
	params := []BoundParam{
		{Raw: "[0.5,0.25]"},
		{Raw: "5"},
	}
	outSQL, outParams, err := o.RewriteBound(sql, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantSQL := `SELECT id FROM vecs ORDER BY embedding <=> TO_VECTOR('[0.5,0.25]', FLOAT) LIMIT ?`
	if outSQL != wantSQL {
		t.Fatalf("got %q, want %q", outSQL, wantSQL)
	}
	if len(outParams) != 1 || outParams[0].Raw != "5" {
		t.Fatalf("expected only the non-vector param to remain, got %+v", outParams)
	}
}

func TestVectorOptimizerValidateRejectsMissingBrackets(t *testing.T) {
	o := NewVectorOptimizer(DefaultVectorOptimizerConfig())
	err := o.Validate(`SELECT TO_VECTOR('1,2,3', FLOAT)`)
	if err == nil {
		t.Fatal("expected validation error for unbracketed literal")
	}
}

func TestVectorOptimizerValidateAcceptsWellFormed(t *testing.T) {
	o := NewVectorOptimizer(DefaultVectorOptimizerConfig())
	err := o.Validate(`SELECT TO_VECTOR('[1,2,3]', FLOAT)`)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDecodeVectorLiteralJSON(t *testing.T) {
	vec, err := DecodeVectorLiteral("[1,2,3]")
	if err != nil || len(vec) != 3 {
		t.Fatalf("got %v, %v", vec, err)
	}
}

func TestDecodeVectorLiteralBase64(t *testing.T) {
	// base64 for two packed float32s: 1.0, 2.0 (little-endian IEEE754)
	// 1.0 = 0x3F800000, 2.0 = 0x40000000
	encoded := "base64:AACAPwAAAEA="
	vec, err := DecodeVectorLiteral(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 1.0 || vec[1] != 2.0 {
		t.Fatalf("got %v", vec)
	}
}
