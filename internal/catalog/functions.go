package catalog

import (
	"fmt"
	"strings"

	"github.com/ha1tch/pgiris/internal/types"
)

// FormatType reconstructs a PostgreSQL type string from a type OID and
// typmod, parameterized forms (varchar(n), numeric(p,s), timestamp(p),
// bit(n)) included where typmod encodes them; others are returned bare
//.
func FormatType(oid uint32, typmod int32) string {
	switch oid {
	case types.OIDVarchar:
		if typmod > 4 {
			return fmt.Sprintf("character varying(%d)", typmod-4)
		}
		return "character varying"
	case types.OIDNumeric:
		if typmod > 4 {
			precision := (typmod - 4) >> 16
			scale := (typmod - 4) & 0xffff
			return fmt.Sprintf("numeric(%d,%d)", precision, scale)
		}
		return "numeric"
	case types.OIDTimestamp:
		if typmod >= 0 {
			return fmt.Sprintf("timestamp(%d) without time zone", typmod)
		}
		return "timestamp without time zone"
	case types.OIDTimestamptz:
		if typmod >= 0 {
			return fmt.Sprintf("timestamp(%d) with time zone", typmod)
		}
		return "timestamp with time zone"
	case types.OIDInt4:
		return "integer"
	case types.OIDInt8:
		return "bigint"
	case types.OIDInt2:
		return "smallint"
	case types.OIDBool:
		return "boolean"
	case types.OIDText:
		return "text"
	case types.OIDFloat4:
		return "real"
	case types.OIDFloat8:
		return "double precision"
	case types.OIDBytea:
		return "bytea"
	case types.OIDDate:
		return "date"
	case types.OIDUUID:
		return "uuid"
	case types.OIDJSON:
		return "json"
	case types.OIDJSONB:
		return "jsonb"
	case 1560: // bit
		if typmod > 0 {
			return fmt.Sprintf("bit(%d)", typmod)
		}
		return "bit"
	case types.OIDVector:
		if typmod > 0 {
			return fmt.Sprintf("vector(%d)", typmod)
		}
		return "vector"
	default:
		return "unknown"
	}
}

// PgGetConstraintDef renders the human-readable constraint definition
// PostgreSQL's pg_get_constraintdef() would produce. pretty is accepted
// for interface parity with PostgreSQL but does not change output here
// since these definitions are already single-line.
func PgGetConstraintDef(con ConstraintRow, pretty bool) (string, bool) {
	switch con.Type {
	case "p":
		return fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(con.ColumnNames, ", ")), true
	case "u":
		return fmt.Sprintf("UNIQUE (%s)", strings.Join(con.ColumnNames, ", ")), true
	case "c":
		if con.CheckExpr == "" {
			return "", false
		}
		return fmt.Sprintf("CHECK (%s)", con.CheckExpr), true
	case "f":
		def := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s", strings.Join(con.ColumnNames, ", "), con.RefTableName)
		if len(con.RefColumnNames) > 0 {
			def += fmt.Sprintf(" (%s)", strings.Join(con.RefColumnNames, ", "))
		}
		if con.UpdateAction != "" {
			def += " ON UPDATE " + con.UpdateAction
		}
		if con.DeleteAction != "" {
			def += " ON DELETE " + con.DeleteAction
		}
		return def, true
	default:
		return "", false
	}
}

// PgGetIndexDef renders the CREATE INDEX statement for an index, or just
// the column name when a 1-based column index is given (non-zero).
// Returns (def, false) — SQL NULL — when backend metadata is insufficient
// to reconstruct the definition.
func PgGetIndexDef(indexName string, tableName string, columns []string, column int, isUnique bool, pretty bool) (string, bool) {
	if len(columns) == 0 {
		return "", false
	}
	if column > 0 {
		if column > len(columns) {
			return "", false
		}
		return columns[column-1], true
	}
	uniqueKW := ""
	if isUnique {
		uniqueKW = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", uniqueKW, indexName, tableName, strings.Join(columns, ", ")), true
}

// PgGetSerialSequence returns the sequence name for an auto-increment
// (identity) column, or (_, false) otherwise.
func PgGetSerialSequence(table, column string, isIdentity bool) (string, bool) {
	if !isIdentity {
		return "", false
	}
	return fmt.Sprintf("%s_%s_seq", table, column), true
}

// PgGetViewDef always returns SQL NULL: reconstructing the original view
// definition text is not attempted, since ORMs do not require it.
func PgGetViewDef(oid uint32, pretty bool) (string, bool) {
	return "", false
}
