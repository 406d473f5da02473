package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/ha1tch/pgiris/internal/types"
)

type fakeSource struct {
	tables      []TableMeta
	constraints map[string][]ConstraintMeta
	indexes     map[string][]IndexMeta
	calls       int
}

func (f *fakeSource) Tables(ctx context.Context, schema string) ([]TableMeta, error) {
	f.calls++
	return f.tables, nil
}

func (f *fakeSource) Constraints(ctx context.Context, schema, table string) ([]ConstraintMeta, error) {
	return f.constraints[table], nil
}

func (f *fakeSource) Indexes(ctx context.Context, schema, table string) ([]IndexMeta, error) {
	return f.indexes[table], nil
}

func newFixtureSource() *fakeSource {
	return &fakeSource{
		tables: []TableMeta{
			{
				Schema: "public",
				Name:   "orders",
				Columns: []ColumnMeta{
					{Name: "id", TypeOID: types.OIDInt4, TypeMod: -1, Nullable: false, IsIdentity: true},
					{Name: "customer_id", TypeOID: types.OIDInt4, TypeMod: -1, Nullable: false},
					{Name: "total", TypeOID: types.OIDNumeric, TypeMod: -1, Nullable: false, Default: "0"},
				},
			},
			{
				Schema: "public",
				Name:   "customers",
				Columns: []ColumnMeta{
					{Name: "id", TypeOID: types.OIDInt4, TypeMod: -1, Nullable: false, IsIdentity: true},
					{Name: "name", TypeOID: types.OIDText, TypeMod: -1, Nullable: true},
				},
			},
		},
		constraints: map[string][]ConstraintMeta{
			"orders": {
				{Name: "orders_pkey", Type: "PRIMARY KEY", Columns: []string{"id"}},
				{Name: "orders_customer_fkey", Type: "FOREIGN KEY", Columns: []string{"customer_id"},
					RefTable: "customers", RefColumns: []string{"id"}, DeleteAction: "CASCADE"},
			},
			"customers": {
				{Name: "customers_pkey", Type: "PRIMARY KEY", Columns: []string{"id"}},
			},
		},
		indexes: map[string][]IndexMeta{
			"orders": {
				{Name: "idx_orders_customer", Columns: []string{"customer_id"}, IsUnique: false},
			},
		},
	}
}

func TestEmulatorClassesIncludesIndexRows(t *testing.T) {
	e := NewEmulator(NewGenerator(), newFixtureSource(), time.Minute)
	rows, err := e.Classes(context.Background(), "public")
	if err != nil {
		t.Fatal(err)
	}
	var tableCount, indexCount int
	for _, r := range rows {
		switch r.Kind {
		case "r":
			tableCount++
		case "i":
			indexCount++
		}
	}
	if tableCount != 2 {
		t.Fatalf("expected 2 table rows, got %d", tableCount)
	}
	if indexCount != 1 {
		t.Fatalf("expected 1 index row, got %d", indexCount)
	}
}

func TestEmulatorConstraintsResolvesForeignKey(t *testing.T) {
	e := NewEmulator(NewGenerator(), newFixtureSource(), time.Minute)
	rows, err := e.Constraints(context.Background(), "public")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range rows {
		if r.Name == "orders_customer_fkey" {
			found = true
			if r.Type != "f" {
				t.Fatalf("expected type f, got %q", r.Type)
			}
			if r.RefTableName != "customers" {
				t.Fatalf("expected RefTableName customers, got %q", r.RefTableName)
			}
			if len(r.RefColumnNames) != 1 || r.RefColumnNames[0] != "id" {
				t.Fatalf("unexpected RefColumnNames %v", r.RefColumnNames)
			}
			def, ok := PgGetConstraintDef(r, false)
			if !ok {
				t.Fatal("expected constraint def")
			}
			want := "FOREIGN KEY (customer_id) REFERENCES customers (id) ON DELETE CASCADE"
			if def != want {
				t.Fatalf("got %q, want %q", def, want)
			}
		}
	}
	if !found {
		t.Fatal("orders_customer_fkey not found")
	}
}

func TestEmulatorCacheRespectsTTL(t *testing.T) {
	src := newFixtureSource()
	e := NewEmulator(NewGenerator(), src, time.Hour)
	ctx := context.Background()
	if _, err := e.Classes(ctx, "public"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Classes(ctx, "public"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected cache to prevent a second backend call, got %d calls", src.calls)
	}
}

func TestEmulatorInvalidateForcesRebuild(t *testing.T) {
	src := newFixtureSource()
	e := NewEmulator(NewGenerator(), src, time.Hour)
	ctx := context.Background()
	if _, err := e.Classes(ctx, "public"); err != nil {
		t.Fatal(err)
	}
	e.Invalidate("public")
	if _, err := e.Classes(ctx, "public"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("expected invalidate to force a rebuild, got %d calls", src.calls)
	}
}

func TestEmulatorIndexesLinkKeyAttNumToColumnPosition(t *testing.T) {
	e := NewEmulator(NewGenerator(), newFixtureSource(), time.Minute)
	rows, err := e.Indexes(context.Background(), "public")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 index row, got %d", len(rows))
	}
	// customer_id is the 2nd column of orders.
	if len(rows[0].KeyAttNum) != 1 || rows[0].KeyAttNum[0] != 2 {
		t.Fatalf("unexpected KeyAttNum %v", rows[0].KeyAttNum)
	}
}
