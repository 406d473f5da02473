package catalog

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestRouter() *Router {
	gen := NewGenerator()
	e := NewEmulator(gen, newFixtureSource(), time.Minute)
	return NewRouter(gen, e, "public")
}

func TestIsCatalogQueryDetectsKnownRelations(t *testing.T) {
	r := newTestRouter()
	if !r.IsCatalogQuery("SELECT * FROM pg_catalog.pg_class WHERE relname = 'orders'") {
		t.Fatal("expected pg_class query to be detected")
	}
	if !r.IsCatalogQuery("select table_name from information_schema.tables") {
		t.Fatal("expected information_schema query to be detected")
	}
	if r.IsCatalogQuery("SELECT * FROM orders") {
		t.Fatal("ordinary table query must not be classified as catalog")
	}
}

func TestClassifyDistinguishesAttrdefFromAttribute(t *testing.T) {
	r := newTestRouter()
	if got := r.Classify("select * from pg_attrdef"); got != TargetAttrDef {
		t.Fatalf("got %v", got)
	}
	if got := r.Classify("select * from pg_attribute"); got != TargetAttribute {
		t.Fatalf("got %v", got)
	}
}

func TestRewriteAnyArray(t *testing.T) {
	sql := "SELECT * FROM pg_class WHERE relname = ANY($1)"
	got := RewriteAnyArray(sql, []string{"orders", "customers"})
	if !strings.Contains(got, "IN ('orders', 'customers')") {
		t.Fatalf("got %q", got)
	}
}

func TestRewriteAnyArrayEmpty(t *testing.T) {
	sql := "SELECT * FROM pg_class WHERE relname = ANY($1)"
	got := RewriteAnyArray(sql, nil)
	if !strings.Contains(got, "IN (NULL)") {
		t.Fatalf("got %q", got)
	}
}

func TestResolveRegclass(t *testing.T) {
	r := newTestRouter()
	sql := "SELECT 'orders'::regclass"
	got := r.ResolveRegclass(sql)
	want := r.gen.TableOID("public", "orders")
	if strings.Contains(got, "regclass") {
		t.Fatalf("expected regclass cast to be resolved away, got %q", got)
	}
	if !strings.Contains(got, strconv.FormatUint(uint64(want), 10)) {
		t.Fatalf("got %q, expected OID %d", got, want)
	}
}

func TestRouteDispatchesToEmulator(t *testing.T) {
	r := newTestRouter()
	rows, ok, err := r.Route(context.Background(), "select * from pg_constraint")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected pg_constraint to route to the emulator")
	}
	cons, isSlice := rows.([]ConstraintRow)
	if !isSlice || len(cons) == 0 {
		t.Fatalf("expected non-empty []ConstraintRow, got %T", rows)
	}
}

func TestRouteFallsThroughForUnhandledRelation(t *testing.T) {
	r := newTestRouter()
	_, ok, err := r.Route(context.Background(), "select * from pg_type")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("pg_type has no emulator row factory and must fall through")
	}
}
