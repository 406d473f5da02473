package copyproto

import "testing"

func TestParseStatementNotCopy(t *testing.T) {
	_, ok, err := ParseStatement(`SELECT 1`)
	if ok || err != nil {
		t.Fatalf("expected ok=false for a non-COPY statement, got ok=%v err=%v", ok, err)
	}
}

func TestParseStatementCopyFromStdin(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY Patients (id, name) FROM STDIN WITH (FORMAT CSV, HEADER)`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Direction != DirectionIn {
		t.Fatalf("expected DirectionIn, got %v", stmt.Direction)
	}
	if stmt.Table != "Patients" {
		t.Fatalf("got table %q", stmt.Table)
	}
	want := []string{"id", "name"}
	if len(stmt.Columns) != len(want) || stmt.Columns[0] != want[0] || stmt.Columns[1] != want[1] {
		t.Fatalf("got columns %v, want %v", stmt.Columns, want)
	}
	if !stmt.Options.Header {
		t.Fatalf("expected HEADER set")
	}
	if stmt.Options.Delimiter != ',' {
		t.Fatalf("expected default comma delimiter, got %q", stmt.Options.Delimiter)
	}
}

func TestParseStatementCopyFromStdinNoColumnsNoOptions(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY orders FROM STDIN`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Table != "orders" || len(stmt.Columns) != 0 {
		t.Fatalf("got table=%q columns=%v", stmt.Table, stmt.Columns)
	}
}

func TestParseStatementCopyToStdoutTable(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY orders TO STDOUT WITH (DELIMITER '|')`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Direction != DirectionOut || stmt.Table != "orders" {
		t.Fatalf("got direction=%v table=%q", stmt.Direction, stmt.Table)
	}
	if stmt.Options.Delimiter != '|' {
		t.Fatalf("got delimiter %q", stmt.Options.Delimiter)
	}
}

func TestParseStatementCopyQueryToStdout(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY (SELECT id, name FROM patients WHERE active = true) TO STDOUT`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Direction != DirectionOut {
		t.Fatalf("expected DirectionOut")
	}
	want := `SELECT id, name FROM patients WHERE active = true`
	if stmt.Query != want {
		t.Fatalf("got query %q, want %q", stmt.Query, want)
	}
}

func TestParseStatementQueryFromStdinRejected(t *testing.T) {
	_, ok, err := ParseStatement(`COPY (SELECT 1) FROM STDIN`)
	if !ok || err == nil {
		t.Fatalf("expected a grammar error for COPY (query) FROM STDIN, got ok=%v err=%v", ok, err)
	}
}

func TestParseStatementMissingStdin(t *testing.T) {
	_, ok, err := ParseStatement(`COPY orders FROM`)
	if !ok || err == nil {
		t.Fatalf("expected an error for a missing STDIN, got ok=%v err=%v", ok, err)
	}
}

func TestParseStatementUnsupportedFormat(t *testing.T) {
	_, ok, err := ParseStatement(`COPY orders FROM STDIN WITH (FORMAT binary)`)
	if !ok || err == nil {
		t.Fatalf("expected an error for a non-CSV format, got ok=%v err=%v", ok, err)
	}
}

func TestParseStatementHeaderFalse(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY orders FROM STDIN WITH (HEADER false)`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Options.Header {
		t.Fatalf("expected HEADER false to be honored")
	}
}

func TestParseStatementQuotedTableName(t *testing.T) {
	stmt, ok, err := ParseStatement(`COPY "Patient Records" FROM STDIN`)
	if err != nil || !ok {
		t.Fatalf("unexpected err=%v ok=%v", err, ok)
	}
	if stmt.Table != `"Patient Records"` {
		t.Fatalf("got table %q", stmt.Table)
	}
}
