package translate

import "testing"

func TestIdentifierNormalizerUppercasesUnquoted(t *testing.T) {
	out, count := IdentifierNormalizer{}.Normalize(`SELECT id, name FROM users WHERE id = 1`)
	want := `SELECT ID, NAME FROM USERS WHERE ID = 1`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
	if count != 4 { // id, name, users, id
		t.Fatalf("got count %d, want 4", count)
	}
}

func TestIdentifierNormalizerPreservesQuoted(t *testing.T) {
	out, _ := IdentifierNormalizer{}.Normalize(`SELECT "FirstName" FROM "Customers"`)
	want := `SELECT "FirstName" FROM "Customers"`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestIdentifierNormalizerSkipsStringLiterals(t *testing.T) {
	out, _ := IdentifierNormalizer{}.Normalize(`SELECT * FROM t WHERE name = 'alice'`)
	want := `SELECT * FROM T WHERE NAME = 'alice'`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestIdentifierNormalizerIdempotent(t *testing.T) {
	once, _ := IdentifierNormalizer{}.Normalize(`SELECT id FROM users`)
	twice, _ := IdentifierNormalizer{}.Normalize(once)
	if once != twice {
		t.Fatalf("normalizer is not idempotent: %q != %q", once, twice)
	}
}
