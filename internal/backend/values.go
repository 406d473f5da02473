package backend

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/pgiris/internal/types"
)

// valueToDriverArg converts a typed Value into something database/sql
// drivers accept as a bind parameter.
func valueToDriverArg(v types.Value) driver.Value {
	switch v.Kind {
	case types.KindNull:
		return nil
	case types.KindInt:
		return v.Int
	case types.KindFloat:
		return v.Float
	case types.KindText:
		return v.Text
	case types.KindBytes:
		return v.Bytes
	case types.KindTimestamp:
		return v.Timestamp
	case types.KindNumeric:
		return v.Numeric.String()
	case types.KindVector:
		s, _ := v.EncodeText(types.OIDVector)
		return string(s)
	default:
		return nil
	}
}

// scalarDecoder builds a per-row decode function that turns the raw
// driver-scanned values for cols into typed Values, using each column's
// backend type name to pick the right Value constructor.
func scalarDecoder(cols []Column) func([]interface{}) ([]types.Value, error) {
	oids := make([]uint32, len(cols))
	for i, c := range cols {
		oids[i] = types.OIDForBackendType(c.BackendType)
	}
	return func(raw []interface{}) ([]types.Value, error) {
		out := make([]types.Value, len(raw))
		for i, r := range raw {
			v, err := decodeDriverValue(r, oids[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", cols[i].Name, err)
			}
			out[i] = v
		}
		return out, nil
	}
}

func decodeDriverValue(raw interface{}, oid uint32) (types.Value, error) {
	if raw == nil {
		return types.Null(), nil
	}
	switch oid {
	case types.OIDInt2, types.OIDInt4, types.OIDInt8:
		switch n := raw.(type) {
		case int64:
			return types.Int(n), nil
		case []byte:
			var i int64
			if _, err := fmt.Sscanf(string(n), "%d", &i); err != nil {
				return types.Value{}, err
			}
			return types.Int(i), nil
		}
	case types.OIDFloat4, types.OIDFloat8:
		switch n := raw.(type) {
		case float64:
			return types.Float(n), nil
		case []byte:
			var f float64
			if _, err := fmt.Sscanf(string(n), "%g", &f); err != nil {
				return types.Value{}, err
			}
			return types.Float(f), nil
		}
	case types.OIDBool:
		switch b := raw.(type) {
		case bool:
			return types.Int(boolToInt(b)), nil
		case int64:
			return types.Int(b), nil
		}
	case types.OIDNumeric:
		if s, ok := asString(raw); ok {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return types.Value{}, err
			}
			return types.Numeric(d), nil
		}
	case types.OIDTimestamp, types.OIDTimestamptz, types.OIDDate, types.OIDTime:
		switch t := raw.(type) {
		case time.Time:
			return types.Timestamp(t), nil
		case []byte:
			if parsed, err := parseBackendTime(string(t)); err == nil {
				return types.Timestamp(parsed), nil
			}
		}
	case types.OIDBytea:
		if b, ok := raw.([]byte); ok {
			return types.Bytes(b), nil
		}
	}
	if s, ok := asString(raw); ok {
		return types.Text(s), nil
	}
	return types.Text(fmt.Sprintf("%v", raw)), nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func asString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

var backendTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02",
	"15:04:05.999999999",
}

func parseBackendTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range backendTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
