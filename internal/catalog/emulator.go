package catalog

import (
	"context"
	"sync"
	"time"
)

// MetadataSource is consulted by the emulator to materialize catalog rows
// on demand; it is satisfied by the Backend Executor's introspection path
// against the backend's own INFORMATION_SCHEMA.
type MetadataSource interface {
	Tables(ctx context.Context, schema string) ([]TableMeta, error)
	Constraints(ctx context.Context, schema, table string) ([]ConstraintMeta, error)
	Indexes(ctx context.Context, schema, table string) ([]IndexMeta, error)
}

// cacheEntry holds a namespace's materialized catalog rows plus the time
// they were built, for TTL-based invalidation.
type cacheEntry struct {
	tables      []TableMeta
	constraints map[string][]ConstraintMeta
	indexes     map[string][]IndexMeta
	builtAt     time.Time
}

// Emulator implements deterministic, in-memory emulations of the
// PostgreSQL system catalogs most used by ORMs. It is backed
// by a per-namespace cache with a configurable TTL; a schema-change
// notification or TTL expiry causes the next access to rebuild from the
// MetadataSource.
type Emulator struct {
	gen    *Generator
	source MetadataSource
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

func NewEmulator(gen *Generator, source MetadataSource, ttl time.Duration) *Emulator {
	return &Emulator{
		gen:    gen,
		source: source,
		ttl:    ttl,
		cache:  make(map[string]*cacheEntry),
	}
}

// Invalidate drops the cached rows for a namespace, forcing the next
// access to rebuild from the backend. Called when the backend reports a
// schema change.
func (e *Emulator) Invalidate(namespace string) {
	e.mu.Lock()
	delete(e.cache, namespace)
	e.mu.Unlock()
}

func (e *Emulator) entry(ctx context.Context, namespace string) (*cacheEntry, error) {
	e.mu.Lock()
	entry, ok := e.cache[namespace]
	if ok && time.Since(entry.builtAt) < e.ttl {
		e.mu.Unlock()
		return entry, nil
	}
	e.mu.Unlock()

	tables, err := e.source.Tables(ctx, namespace)
	if err != nil {
		return nil, err
	}
	entry = &cacheEntry{
		tables:      tables,
		constraints: make(map[string][]ConstraintMeta),
		indexes:     make(map[string][]IndexMeta),
		builtAt:     time.Now(),
	}
	for _, t := range tables {
		cons, err := e.source.Constraints(ctx, namespace, t.Name)
		if err != nil {
			return nil, err
		}
		entry.constraints[t.Name] = cons
		idx, err := e.source.Indexes(ctx, namespace, t.Name)
		if err != nil {
			return nil, err
		}
		entry.indexes[t.Name] = idx
	}

	e.mu.Lock()
	e.cache[namespace] = entry
	e.mu.Unlock()
	return entry, nil
}

// Namespaces returns pg_namespace rows for the configured namespace plus
// the two fixed system namespaces.
func (e *Emulator) Namespaces(namespace string) []NamespaceRow {
	return []NamespaceRow{
		{OID: OIDPgCatalog, Name: "pg_catalog"},
		{OID: OIDInformationSchema, Name: "information_schema"},
		{OID: e.gen.NamespaceOID(namespace), Name: namespace},
	}
}

// Classes returns pg_class rows for every table/view in namespace, plus one
// synthetic index row per index (pg_class carries a row for indexes too).
func (e *Emulator) Classes(ctx context.Context, namespace string) ([]ClassRow, error) {
	entry, err := e.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	nsOID := e.gen.NamespaceOID(namespace)
	var rows []ClassRow
	for _, t := range entry.tables {
		tableOID := e.gen.TableOID(namespace, t.Name)
		rows = append(rows, ClassRow{
			OID:       tableOID,
			Name:      t.Name,
			Namespace: nsOID,
			Kind:      "r",
			NAttrs:    int16(len(t.Columns)),
		})
		for _, idx := range entry.indexes[t.Name] {
			rows = append(rows, ClassRow{
				OID:       e.gen.IndexOID(namespace, idx.Name),
				Name:      idx.Name,
				Namespace: nsOID,
				Kind:      "i",
				NAttrs:    int16(len(idx.Columns)),
			})
		}
	}
	return rows, nil
}

// Attributes returns pg_attribute rows for every column of every table in
// namespace.
func (e *Emulator) Attributes(ctx context.Context, namespace string) ([]AttributeRow, error) {
	entry, err := e.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var rows []AttributeRow
	for _, t := range entry.tables {
		tableOID := e.gen.TableOID(namespace, t.Name)
		for i, c := range t.Columns {
			rows = append(rows, AttributeRow{
				Relation: tableOID,
				Name:     c.Name,
				TypeOID:  c.TypeOID,
				TypeMod:  c.TypeMod,
				Num:      int16(i + 1),
				NotNull:  !c.Nullable,
				HasDef:   c.Default != "",
			})
		}
	}
	return rows, nil
}

// AttrDefaults returns pg_attrdef rows for every column carrying a default
// expression.
func (e *Emulator) AttrDefaults(ctx context.Context, namespace string) ([]AttrDefRow, error) {
	entry, err := e.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var rows []AttrDefRow
	for _, t := range entry.tables {
		tableOID := e.gen.TableOID(namespace, t.Name)
		for i, c := range t.Columns {
			if c.Default == "" {
				continue
			}
			rows = append(rows, AttrDefRow{
				OID:      e.gen.DefaultOID(namespace, t.Name+"."+c.Name),
				Relation: tableOID,
				Num:      int16(i + 1),
				Expr:     c.Default,
			})
		}
	}
	return rows, nil
}

// Indexes returns pg_index rows. pg_class.oid = pg_index.indexrelid for
// the same index row; pg_index.indrelid equals the owning table's
// pg_class.oid.
func (e *Emulator) Indexes(ctx context.Context, namespace string) ([]IndexRow, error) {
	entry, err := e.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var rows []IndexRow
	for _, t := range entry.tables {
		tableOID := e.gen.TableOID(namespace, t.Name)
		colPos := make(map[string]int16, len(t.Columns))
		for i, c := range t.Columns {
			colPos[c.Name] = int16(i + 1)
		}
		for _, idx := range entry.indexes[t.Name] {
			keyAttrs := make([]int16, 0, len(idx.Columns))
			for _, col := range idx.Columns {
				keyAttrs = append(keyAttrs, colPos[col])
			}
			rows = append(rows, IndexRow{
				OID:       e.gen.IndexOID(namespace, idx.Name),
				Relation:  tableOID,
				NumKeys:   int16(len(idx.Columns)),
				IsUnique:  idx.IsUnique,
				IsPrimary: idx.IsPrimary,
				KeyAttNum: keyAttrs,
			})
		}
	}
	return rows, nil
}

// Constraints returns pg_constraint rows. conrelid equals the owning
// table's pg_class.oid; confrelid equals the referenced table's
// pg_class.oid for foreign keys and 0 otherwise.
func (e *Emulator) Constraints(ctx context.Context, namespace string) ([]ConstraintRow, error) {
	entry, err := e.entry(ctx, namespace)
	if err != nil {
		return nil, err
	}
	nsOID := e.gen.NamespaceOID(namespace)
	var rows []ConstraintRow
	for _, t := range entry.tables {
		tableOID := e.gen.TableOID(namespace, t.Name)
		colPos := make(map[string]int16, len(t.Columns))
		for i, c := range t.Columns {
			colPos[c.Name] = int16(i + 1)
		}
		for _, con := range entry.constraints[t.Name] {
			cols := make([]int16, 0, len(con.Columns))
			for _, c := range con.Columns {
				cols = append(cols, colPos[c])
			}
			row := ConstraintRow{
				OID:          e.gen.ConstraintOID(namespace, con.Name),
				Name:         con.Name,
				Namespace:    nsOID,
				Relation:     tableOID,
				Columns:      cols,
				UpdateAction: con.UpdateAction,
				DeleteAction: con.DeleteAction,
				CheckExpr:    con.CheckExpr,
				ColumnNames:  con.Columns,
			}
			switch con.Type {
			case "PRIMARY KEY":
				row.Type = "p"
			case "FOREIGN KEY":
				row.Type = "f"
				row.RefRelation = e.gen.TableOID(namespace, con.RefTable)
				row.RefTableName = con.RefTable
				row.RefColumnNames = con.RefColumns
			case "UNIQUE":
				row.Type = "u"
			case "CHECK":
				row.Type = "c"
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
