// Package catalog implements the PostgreSQL system-catalog emulation
// (pg_namespace/pg_class/pg_attribute/pg_attrdef/pg_index/pg_constraint
// plus catalog scalar functions) and the router that detects
// catalog-targeting SQL and dispatches it either to the emulator or to
// the backend.
//
// The deterministic OID generator hashes the lower-cased object name
// with a rolling hash*31+c accumulator masked to 31 bits, so the same
// name always yields the same OID on any instance, extended to also
// fold in namespace and object type.
package catalog

import (
	"strings"
	"sync"
)

// Fixed well-known namespace OIDs.
const (
	OIDPgCatalog        uint32 = 11
	OIDPublic           uint32 = 2200
	OIDInformationSchema uint32 = 11323

	// UserOIDFloor is the minimum OID value for any user-defined object.
	UserOIDFloor uint32 = 16384
)

// ObjectType tags what kind of object an OID names, since the same name
// can independently collide between e.g. a table and an index.
type ObjectType string

const (
	ObjectTable      ObjectType = "table"
	ObjectColumn     ObjectType = "column"
	ObjectIndex      ObjectType = "index"
	ObjectConstraint ObjectType = "constraint"
	ObjectDefault    ObjectType = "default"
	ObjectNamespace  ObjectType = "namespace"
)

// stableHash32 implements the rolling hash from
// pkg/storage/syscatalog.go's objectIDForName, applied here to the
// composite key "namespace:type:name" instead of a bare table name, so
// that a table and an index that happen to share a name never collide.
func stableHash32(key string) uint32 {
	var hash int64
	for _, c := range key {
		hash = hash*31 + int64(c)
	}
	return uint32(hash & 0x7FFFFFFF)
}

// OID computes oid = max(UserOIDFloor, stable_hash32(lower(namespace)+":"+type+":"+lower(name)))
//. Identical inputs yield identical OIDs on any instance.
func OID(namespace string, objType ObjectType, name string) uint32 {
	key := strings.ToLower(namespace) + ":" + string(objType) + ":" + strings.ToLower(stripBracketsAndSchema(name))
	h := stableHash32(key)
	if h < UserOIDFloor {
		return UserOIDFloor
	}
	return h
}

// stripBracketsAndSchema removes a leading schema qualifier and any
// surrounding brackets or double quotes, matching objectIDForName's
// handling of dotted/bracketed identifiers.
func stripBracketsAndSchema(name string) string {
	parts := strings.Split(name, ".")
	last := parts[len(parts)-1]
	last = strings.Trim(last, "[]\"")
	return last
}

// Generator is the process-wide, cached OID generator. OID is itself pure and
// needs no cache to be correct; the cache exists purely to avoid
// recomputing the hash for hot catalog paths (e.g. repeated
// 'name'::regclass resolution in a single introspection query).
type Generator struct {
	mu    sync.RWMutex
	cache map[string]uint32
}

func NewGenerator() *Generator {
	return &Generator{cache: make(map[string]uint32)}
}

func (g *Generator) OID(namespace string, objType ObjectType, name string) uint32 {
	key := namespace + "\x00" + string(objType) + "\x00" + name
	g.mu.RLock()
	if oid, ok := g.cache[key]; ok {
		g.mu.RUnlock()
		return oid
	}
	g.mu.RUnlock()

	oid := OID(namespace, objType, name)
	g.mu.Lock()
	g.cache[key] = oid
	g.mu.Unlock()
	return oid
}

// Convenience wrappers.
func (g *Generator) TableOID(namespace, table string) uint32 {
	return g.OID(namespace, ObjectTable, table)
}

func (g *Generator) ColumnOID(namespace, tableDotColumn string) uint32 {
	return g.OID(namespace, ObjectColumn, tableDotColumn)
}

func (g *Generator) ConstraintOID(namespace, name string) uint32 {
	return g.OID(namespace, ObjectConstraint, name)
}

func (g *Generator) IndexOID(namespace, name string) uint32 {
	return g.OID(namespace, ObjectIndex, name)
}

func (g *Generator) DefaultOID(namespace, name string) uint32 {
	return g.OID(namespace, ObjectDefault, name)
}

// NamespaceOID resolves a namespace name to its OID, using the three
// fixed well-known values where applicable.
func (g *Generator) NamespaceOID(namespace string) uint32 {
	switch namespace {
	case "pg_catalog":
		return OIDPgCatalog
	case "public":
		return OIDPublic
	case "information_schema":
		return OIDInformationSchema
	default:
		return g.OID(namespace, ObjectNamespace, namespace)
	}
}
