package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ha1tch/pgiris/internal/catalog"
	"github.com/ha1tch/pgiris/internal/types"
)

// catalogField is a column name paired with the type OID it is rendered
// with, used to build RowDescription for the fixed catalog relations
//.
type catalogField struct {
	name string
	oid  uint32
}

// catalogRowsToWire converts the interface{} payload catalog.Router.Route
// returns into the fixed field list and Value rows session.go sends as
// RowDescription/DataRow, mirroring the columns real clients introspect
// (oid, name, and the handful of flags ORMs test).
func catalogRowsToWire(payload interface{}) ([]catalogField, [][]types.Value, error) {
	switch rows := payload.(type) {
	case []catalog.NamespaceRow:
		fields := []catalogField{{"oid", types.OIDInt4}, {"nspname", types.OIDText}}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{types.Int(int64(r.OID)), types.Text(r.Name)}
		}
		return fields, out, nil

	case []catalog.ClassRow:
		fields := []catalogField{
			{"oid", types.OIDInt4}, {"relname", types.OIDText}, {"relnamespace", types.OIDInt4},
			{"relkind", types.OIDText}, {"relnatts", types.OIDInt2}, {"relhasrules", types.OIDBool},
		}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{
				types.Int(int64(r.OID)), types.Text(r.Name), types.Int(int64(r.Namespace)),
				types.Text(r.Kind), types.Int(int64(r.NAttrs)), boolValue(r.HasRules),
			}
		}
		return fields, out, nil

	case []catalog.AttributeRow:
		fields := []catalogField{
			{"attrelid", types.OIDInt4}, {"attname", types.OIDText}, {"atttypid", types.OIDInt4},
			{"atttypmod", types.OIDInt4}, {"attnum", types.OIDInt2}, {"attnotnull", types.OIDBool},
			{"atthasdef", types.OIDBool}, {"attisdropped", types.OIDBool},
		}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{
				types.Int(int64(r.Relation)), types.Text(r.Name), types.Int(int64(r.TypeOID)),
				types.Int(int64(r.TypeMod)), types.Int(int64(r.Num)), boolValue(r.NotNull),
				boolValue(r.HasDef), boolValue(r.Dropped),
			}
		}
		return fields, out, nil

	case []catalog.AttrDefRow:
		fields := []catalogField{
			{"oid", types.OIDInt4}, {"adrelid", types.OIDInt4}, {"adnum", types.OIDInt2}, {"adsrc", types.OIDText},
		}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{types.Int(int64(r.OID)), types.Int(int64(r.Relation)), types.Int(int64(r.Num)), types.Text(r.Expr)}
		}
		return fields, out, nil

	case []catalog.IndexRow:
		fields := []catalogField{
			{"indexrelid", types.OIDInt4}, {"indrelid", types.OIDInt4}, {"indnatts", types.OIDInt2},
			{"indisunique", types.OIDBool}, {"indisprimary", types.OIDBool}, {"indkey", types.OIDText},
		}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{
				types.Int(int64(r.OID)), types.Int(int64(r.Relation)), types.Int(int64(r.NumKeys)),
				boolValue(r.IsUnique), boolValue(r.IsPrimary), types.Text(joinInt16(r.KeyAttNum)),
			}
		}
		return fields, out, nil

	case []catalog.ConstraintRow:
		fields := []catalogField{
			{"oid", types.OIDInt4}, {"conname", types.OIDText}, {"connamespace", types.OIDInt4},
			{"contype", types.OIDText}, {"conrelid", types.OIDInt4}, {"confrelid", types.OIDInt4},
		}
		out := make([][]types.Value, len(rows))
		for i, r := range rows {
			out[i] = []types.Value{
				types.Int(int64(r.OID)), types.Text(r.Name), types.Int(int64(r.Namespace)),
				types.Text(r.Type), types.Int(int64(r.Relation)), types.Int(int64(r.RefRelation)),
			}
		}
		return fields, out, nil

	default:
		return nil, nil, fmt.Errorf("catalogwire: unsupported row type %T", payload)
	}
}

func boolValue(b bool) types.Value {
	if b {
		return types.Int(1)
	}
	return types.Int(0)
}

func joinInt16(vals []int16) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, " ")
}
