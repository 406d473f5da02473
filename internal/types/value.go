package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBytes
	KindTimestamp
	KindNumeric
	KindVector
)

// Value is a tagged union over the backend row value space. It replaces
// the dynamically-typed row values of the source system.
type Value struct {
	Kind      Kind
	Int       int64
	Float     float64
	Text      string
	Bytes     []byte
	Timestamp time.Time
	Numeric   decimal.Decimal
	Vector    []float32
}

func Null() Value                    { return Value{Kind: KindNull} }
func Int(v int64) Value              { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value          { return Value{Kind: KindFloat, Float: v} }
func Text(v string) Value            { return Value{Kind: KindText, Text: v} }
func Bytes(v []byte) Value           { return Value{Kind: KindBytes, Bytes: v} }
func Timestamp(v time.Time) Value    { return Value{Kind: KindTimestamp, Timestamp: v} }
func Numeric(v decimal.Decimal) Value { return Value{Kind: KindNumeric, Numeric: v} }
func Vector(v []float32) Value       { return Value{Kind: KindVector, Vector: v} }

// IsNull reports whether the value is SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// EncodeText renders the value in PostgreSQL's text wire format for the
// given type OID. Returns (nil, true) for SQL NULL, matching the
// DataRow convention of a nil byte slice meaning NULL.
func (v Value) EncodeText(oid uint32) ([]byte, bool) {
	if v.IsNull() {
		return nil, true
	}
	switch v.Kind {
	case KindInt:
		if oid == OIDBool {
			if v.Int != 0 {
				return []byte("t"), false
			}
			return []byte("f"), false
		}
		return []byte(strconv.FormatInt(v.Int, 10)), false
	case KindFloat:
		return []byte(strconv.FormatFloat(v.Float, 'g', -1, 64)), false
	case KindText:
		return []byte(v.Text), false
	case KindBytes:
		return []byte(encodeBytea(v.Bytes)), false
	case KindTimestamp:
		return []byte(encodeTimestamp(v.Timestamp, oid)), false
	case KindNumeric:
		return []byte(v.Numeric.String()), false
	case KindVector:
		return []byte(encodeVectorLiteral(v.Vector)), false
	default:
		return []byte(fmt.Sprintf("%v", v)), false
	}
}

// EncodeBinary renders the value in PostgreSQL's binary wire format for
// oid. The ok return is false for SQL NULL or for any OID SupportsBinary
// reports false for; callers fall back to EncodeText in that case.
func (v Value) EncodeBinary(oid uint32) (out []byte, ok bool) {
	if v.IsNull() || !SupportsBinary(oid) {
		return nil, false
	}
	switch v.Kind {
	case KindInt:
		switch oid {
		case OIDBool:
			if v.Int != 0 {
				return []byte{1}, true
			}
			return []byte{0}, true
		case OIDInt2:
			b := make([]byte, 2)
			binary.BigEndian.PutUint16(b, uint16(v.Int))
			return b, true
		case OIDInt4:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v.Int))
			return b, true
		case OIDInt8:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, uint64(v.Int))
			return b, true
		}
	case KindFloat:
		switch oid {
		case OIDFloat4:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, math.Float32bits(float32(v.Float)))
			return b, true
		case OIDFloat8:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, math.Float64bits(v.Float))
			return b, true
		}
	case KindText:
		if oid == OIDText || oid == OIDVarchar {
			return []byte(v.Text), true
		}
	case KindBytes:
		if oid == OIDBytea {
			return v.Bytes, true
		}
	}
	return nil, false
}

// encodeBytea renders bytes in PostgreSQL's hex bytea text format
// (\x followed by lowercase hex), the modern default output format.
func encodeBytea(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '\\', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[3+i*2] = hextable[c&0x0f]
	}
	return string(out)
}

func encodeTimestamp(t time.Time, oid uint32) string {
	switch oid {
	case OIDDate:
		return t.Format("2006-01-02")
	case OIDTime:
		return t.Format("15:04:05.999999")
	case OIDTimestamptz:
		return t.Format("2006-01-02 15:04:05.999999-07")
	default:
		return t.Format("2006-01-02 15:04:05.999999")
	}
}

func encodeVectorLiteral(vec []float32) string {
	out := make([]byte, 0, len(vec)*8+2)
	out = append(out, '[')
	for i, f := range vec {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendFloat(out, float64(f), 'g', -1, 32)
	}
	out = append(out, ']')
	return string(out)
}
