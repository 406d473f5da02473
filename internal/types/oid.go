// Package types implements the typed Value union and PostgreSQL OID/type
// registry that the rest of the translator uses to describe and encode
// backend column values.
//
// Row values are represented as a tagged union (Value) plus a per-column
// encoder keyed off the PostgreSQL type OID.
package types

// Well-known PostgreSQL type OIDs. Mirrors upstream PostgreSQL where a
// reasonable backend analog exists.
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDJSON        uint32 = 114
	OIDXML         uint32 = 142
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDUnknown     uint32 = 705
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTime        uint32 = 1083
	OIDTimestamp   uint32 = 1114
	OIDTimestamptz uint32 = 1184
	OIDNumeric     uint32 = 1700
	OIDUUID        uint32 = 2950
	OIDJSONB       uint32 = 3802
	OIDVector      uint32 = 50996 // no upstream PostgreSQL OID; pgvector extension range
)

// TypeSize returns the fixed on-wire size for a type OID, or -1 for
// variable-length types (matches PostgreSQL's pg_type.typlen convention
// used when building FieldDescription).
func TypeSize(oid uint32) int16 {
	switch oid {
	case OIDBool:
		return 1
	case OIDInt2:
		return 2
	case OIDInt4, OIDFloat4, OIDDate:
		return 4
	case OIDInt8, OIDFloat8, OIDTime, OIDTimestamp, OIDTimestamptz:
		return 8
	case OIDUUID:
		return 16
	default:
		return -1
	}
}

// SupportsBinary reports whether Value.EncodeBinary implements the
// PostgreSQL binary wire format for oid. Types without a binary encoder
// here always fall back to text, which every PostgreSQL client accepts
// regardless of what it requested.
func SupportsBinary(oid uint32) bool {
	switch oid {
	case OIDBool, OIDInt2, OIDInt4, OIDInt8, OIDFloat4, OIDFloat8,
		OIDText, OIDVarchar, OIDBytea:
		return true
	default:
		return false
	}
}

// OIDForBackendType maps a backend (InterSystems IRIS) column type name to
// a PostgreSQL type OID. Grounded in
// pkg/protocol/postgres/listener.go's pgTypeOID, extended with the
// vector type needed by the pgvector compatibility layer.
func OIDForBackendType(backendType string) uint32 {
	switch normalizeTypeName(backendType) {
	case "int", "integer", "int4":
		return OIDInt4
	case "bigint", "int8":
		return OIDInt8
	case "smallint", "int2", "tinyint":
		return OIDInt2
	case "varchar", "nvarchar", "char", "nchar", "longvarchar":
		return OIDVarchar
	case "text":
		return OIDText
	case "bool", "boolean", "bit":
		return OIDBool
	case "float", "float4", "real":
		return OIDFloat4
	case "double", "float8", "double precision":
		return OIDFloat8
	case "numeric", "decimal", "money":
		return OIDNumeric
	case "date":
		return OIDDate
	case "time":
		return OIDTime
	case "timestamp", "datetime", "datetime2":
		return OIDTimestamp
	case "timestamptz", "datetimeoffset":
		return OIDTimestamptz
	case "bytea", "binary", "varbinary", "image", "longvarbinary":
		return OIDBytea
	case "uuid", "uniqueidentifier", "guid":
		return OIDUUID
	case "json":
		return OIDJSON
	case "jsonb":
		return OIDJSONB
	case "xml":
		return OIDXML
	case "vector":
		return OIDVector
	default:
		return OIDText
	}
}

func normalizeTypeName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
