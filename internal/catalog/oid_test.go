package catalog

import "testing"

func TestOIDDeterministicAcrossCase(t *testing.T) {
	a := OID("public", ObjectTable, "Users")
	b := OID("public", ObjectTable, "users")
	if a != b {
		t.Fatalf("OID must be case-insensitive on name: %d != %d", a, b)
	}
}

func TestOIDDistinctAcrossType(t *testing.T) {
	table := OID("public", ObjectTable, "widgets")
	index := OID("public", ObjectIndex, "widgets")
	if table == index {
		t.Fatalf("a table and index sharing a name must not collide: both %d", table)
	}
}

func TestOIDAboveFloor(t *testing.T) {
	oid := OID("public", ObjectTable, "t")
	if oid < UserOIDFloor {
		t.Fatalf("user object OID %d must be >= %d", oid, UserOIDFloor)
	}
}

func TestOIDStripsBracketsAndSchema(t *testing.T) {
	a := OID("public", ObjectTable, "dbo.Users")
	b := OID("public", ObjectTable, "[Users]")
	c := OID("public", ObjectTable, "Users")
	if a != b || b != c {
		t.Fatalf("schema-qualified and bracketed forms must normalize to the same OID: %d %d %d", a, b, c)
	}
}

func TestGeneratorCachesAndAgreesWithPureFunction(t *testing.T) {
	g := NewGenerator()
	oid1 := g.TableOID("public", "orders")
	oid2 := g.TableOID("public", "orders")
	if oid1 != oid2 {
		t.Fatalf("cached lookups must agree: %d != %d", oid1, oid2)
	}
	if oid1 != OID("public", ObjectTable, "orders") {
		t.Fatalf("cached generator must agree with the pure function")
	}
}

func TestNamespaceOIDWellKnown(t *testing.T) {
	g := NewGenerator()
	if g.NamespaceOID("pg_catalog") != OIDPgCatalog {
		t.Fatal("pg_catalog OID mismatch")
	}
	if g.NamespaceOID("public") != OIDPublic {
		t.Fatal("public OID mismatch")
	}
	if g.NamespaceOID("information_schema") != OIDInformationSchema {
		t.Fatal("information_schema OID mismatch")
	}
}
