package translate

import "testing"

func TestSchemaMapperTranslateInputQualified(t *testing.T) {
	m := NewSchemaMapper("public", "SQLUser")
	out := m.TranslateInput(`SELECT * FROM public.users`)
	want := `SELECT * FROM SQLUser.users`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestSchemaMapperTranslateInputLiteral(t *testing.T) {
	m := NewSchemaMapper("public", "SQLUser")
	out := m.TranslateInput(`WHERE nspname = 'public'`)
	want := `WHERE nspname = 'SQLUser'`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestSchemaMapperTranslateOutputRoundTrip(t *testing.T) {
	m := NewSchemaMapper("public", "SQLUser")
	rows := [][]string{{"SQLUser", "users"}, {"SQLUser", "orders"}}
	cols := []string{"nspname", "relname"}
	m.TranslateOutput(rows, cols)
	if rows[0][0] != "public" || rows[1][0] != "public" {
		t.Fatalf("expected backend schema translated back to client schema, got %v", rows)
	}
	if rows[0][1] != "users" {
		t.Fatalf("non-schema column must be untouched, got %q", rows[0][1])
	}
}

func TestSchemaMapperReconfigure(t *testing.T) {
	m := NewSchemaMapper("public", "SQLUser")
	m.Reconfigure("app", "APPSCHEMA")
	out := m.TranslateInput(`SELECT * FROM app.widgets`)
	if out != `SELECT * FROM APPSCHEMA.widgets` {
		t.Fatalf("reconfigure did not take effect, got %q", out)
	}
}
