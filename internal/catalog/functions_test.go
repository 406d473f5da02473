package catalog

import (
	"testing"

	"github.com/ha1tch/pgiris/internal/types"
)

func TestFormatTypeVarchar(t *testing.T) {
	if got := FormatType(types.OIDVarchar, 24); got != "character varying(20)" {
		t.Fatalf("got %q", got)
	}
	if got := FormatType(types.OIDVarchar, -1); got != "character varying" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTypeNumeric(t *testing.T) {
	typmod := int32(10<<16|2) + 4
	if got := FormatType(types.OIDNumeric, typmod); got != "numeric(10,2)" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTypeBare(t *testing.T) {
	if got := FormatType(types.OIDInt4, -1); got != "integer" {
		t.Fatalf("got %q", got)
	}
	if got := FormatType(types.OIDBool, -1); got != "boolean" {
		t.Fatalf("got %q", got)
	}
}

func TestPgGetConstraintDefPrimaryKey(t *testing.T) {
	con := ConstraintRow{Type: "p", ColumnNames: []string{"id"}}
	def, ok := PgGetConstraintDef(con, false)
	if !ok || def != "PRIMARY KEY (id)" {
		t.Fatalf("got %q, %v", def, ok)
	}
}

func TestPgGetConstraintDefForeignKey(t *testing.T) {
	con := ConstraintRow{
		Type:           "f",
		ColumnNames:    []string{"customer_id"},
		RefTableName:   "customers",
		RefColumnNames: []string{"id"},
		UpdateAction:   "CASCADE",
		DeleteAction:   "RESTRICT",
	}
	def, ok := PgGetConstraintDef(con, false)
	want := "FOREIGN KEY (customer_id) REFERENCES customers (id) ON UPDATE CASCADE ON DELETE RESTRICT"
	if !ok || def != want {
		t.Fatalf("got %q, want %q", def, want)
	}
}

func TestPgGetConstraintDefCheckEmpty(t *testing.T) {
	con := ConstraintRow{Type: "c"}
	if _, ok := PgGetConstraintDef(con, false); ok {
		t.Fatal("expected NULL for empty check expression")
	}
}

func TestPgGetIndexDefSingleColumn(t *testing.T) {
	def, ok := PgGetIndexDef("idx_orders_customer", "orders", []string{"customer_id", "created_at"}, 1, false, false)
	if !ok || def != "customer_id" {
		t.Fatalf("got %q, %v", def, ok)
	}
}

func TestPgGetIndexDefFull(t *testing.T) {
	def, ok := PgGetIndexDef("idx_orders_customer", "orders", []string{"customer_id"}, 0, true, false)
	want := "CREATE UNIQUE INDEX idx_orders_customer ON orders (customer_id)"
	if !ok || def != want {
		t.Fatalf("got %q, want %q", def, want)
	}
}

func TestPgGetIndexDefEmpty(t *testing.T) {
	if _, ok := PgGetIndexDef("idx", "t", nil, 0, false, false); ok {
		t.Fatal("expected NULL for index with no columns")
	}
}

func TestPgGetSerialSequence(t *testing.T) {
	seq, ok := PgGetSerialSequence("orders", "id", true)
	if !ok || seq != "orders_id_seq" {
		t.Fatalf("got %q, %v", seq, ok)
	}
	if _, ok := PgGetSerialSequence("orders", "id", false); ok {
		t.Fatal("expected NULL for non-identity column")
	}
}

func TestPgGetViewDefAlwaysNull(t *testing.T) {
	if _, ok := PgGetViewDef(12345, false); ok {
		t.Fatal("pg_get_viewdef must always return NULL")
	}
}
