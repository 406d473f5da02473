package types

import "testing"

func TestEncodeTextNull(t *testing.T) {
	b, isNull := Null().EncodeText(OIDInt4)
	if !isNull || b != nil {
		t.Fatalf("expected null encoding, got %q isNull=%v", b, isNull)
	}
}

func TestEncodeTextBool(t *testing.T) {
	cases := []struct {
		v    int64
		want string
	}{{1, "t"}, {0, "f"}}
	for _, c := range cases {
		b, isNull := Int(c.v).EncodeText(OIDBool)
		if isNull || string(b) != c.want {
			t.Fatalf("Int(%d).EncodeText(bool) = %q, want %q", c.v, b, c.want)
		}
	}
}

func TestEncodeTextInt(t *testing.T) {
	b, _ := Int(42).EncodeText(OIDInt4)
	if string(b) != "42" {
		t.Fatalf("got %q", b)
	}
}

func TestEncodeBytea(t *testing.T) {
	b, _ := Bytes([]byte{0xDE, 0xAD}).EncodeText(OIDBytea)
	if string(b) != `\xdead` {
		t.Fatalf("got %q", b)
	}
}

func TestEncodeVectorLiteral(t *testing.T) {
	b, _ := Vector([]float32{0.1, 0.2, 0.3}).EncodeText(OIDVector)
	if string(b) != "[0.1,0.2,0.3]" {
		t.Fatalf("got %q", b)
	}
}

func TestOIDForBackendType(t *testing.T) {
	cases := map[string]uint32{
		"INT":            OIDInt4,
		"VARCHAR":        OIDVarchar,
		"DOUBLE":         OIDFloat8,
		"DATETIME":       OIDTimestamp,
		"VECTOR":         OIDVector,
		"unknown_exotic": OIDText,
	}
	for in, want := range cases {
		if got := OIDForBackendType(in); got != want {
			t.Errorf("OIDForBackendType(%q) = %d, want %d", in, got, want)
		}
	}
}
