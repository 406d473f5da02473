package catalog

// The row types below are immutable value records carrying the
// PostgreSQL-documented columns ORMs actually read. Columns
// outside that subset take the documented defaults rather than being
// modeled as full structs, mirroring a query-handler style that returns
// only the columns real callers consult.

type NamespaceRow struct {
	OID  uint32
	Name string
}

type ClassRow struct {
	OID       uint32
	Name      string
	Namespace uint32
	Kind      string // 'r' table, 'v' view, 'i' index, 'S' sequence
	NAttrs    int16
	HasRules  bool
}

type AttributeRow struct {
	Relation uint32
	Name     string
	TypeOID  uint32
	TypeMod  int32
	Num      int16
	NotNull  bool
	HasDef   bool
	Dropped  bool
}

type AttrDefRow struct {
	OID      uint32
	Relation uint32
	Num      int16
	Expr     string
}

type IndexRow struct {
	OID       uint32 // == indexrelid
	Relation  uint32 // indrelid
	NumKeys   int16
	IsUnique  bool
	IsPrimary bool
	KeyAttNum []int16
}

type ConstraintRow struct {
	OID          uint32
	Name         string
	Namespace    uint32
	Type         string // 'p' primary key, 'f' foreign key, 'u' unique, 'c' check
	Relation     uint32 // conrelid
	RefRelation  uint32 // confrelid, 0 when not a foreign key
	Columns      []int16
	RefColumns   []int16
	UpdateAction string
	DeleteAction string
	CheckExpr    string

	// Denormalized names for rendering pg_get_constraintdef output
	// without a second catalog lookup.
	ColumnNames    []string
	RefTableName   string
	RefColumnNames []string
}

// TableMeta is the backend-sourced description the row factories consult
// to materialize the rows above; it is populated from the backend's
// INFORMATION_SCHEMA rather than modeled here as its own
// catalog type.
type TableMeta struct {
	Schema  string
	Name    string
	Columns []ColumnMeta
}

type ColumnMeta struct {
	Name       string
	BackendType string
	TypeOID    uint32
	TypeMod    int32
	Nullable   bool
	Default    string // empty when no default
	IsIdentity bool
}

type ConstraintMeta struct {
	Name         string
	Type         string // "PRIMARY KEY", "FOREIGN KEY", "UNIQUE", "CHECK"
	Columns      []string
	RefTable     string
	RefColumns   []string
	UpdateAction string
	DeleteAction string
	CheckExpr    string
}

type IndexMeta struct {
	Name      string
	Columns   []string
	IsUnique  bool
	IsPrimary bool
}
