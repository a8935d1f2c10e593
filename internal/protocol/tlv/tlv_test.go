package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		U32(1, 77),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypedAccessors(t *testing.T) {
	q := []float64{0.1, -0.785, 0, -2.356, 0, 1.571, 0.785}
	fields, err := DecodeFields(EncodeFields([]Field{
		U8(1, 3),
		U16(2, 5),
		U64(3, 1<<40),
		I32(4, -12),
		Bool(5, true),
		F64(6, 0.25),
		F64s(7, q),
	}))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if v, err := GetU8(fields, 1); err != nil || v != 3 {
		t.Fatalf("u8 got=%d err=%v", v, err)
	}
	if v, err := GetU16(fields, 2); err != nil || v != 5 {
		t.Fatalf("u16 got=%d err=%v", v, err)
	}
	if v, err := GetU64(fields, 3); err != nil || v != 1<<40 {
		t.Fatalf("u64 got=%d err=%v", v, err)
	}
	if v, err := GetI32(fields, 4); err != nil || v != -12 {
		t.Fatalf("i32 got=%d err=%v", v, err)
	}
	if v, err := GetBool(fields, 5); err != nil || !v {
		t.Fatalf("bool got=%v err=%v", v, err)
	}
	if v, err := GetF64(fields, 6); err != nil || v != 0.25 {
		t.Fatalf("f64 got=%v err=%v", v, err)
	}
	var got [7]float64
	if err := GetF64s(fields, 7, got[:]); err != nil {
		t.Fatalf("f64s: %v", err)
	}
	for i := range q {
		if got[i] != q[i] {
			t.Fatalf("f64s[%d] got=%v want=%v", i, got[i], q[i])
		}
	}
}

func TestTypedAccessorErrors(t *testing.T) {
	fields := []Field{U32(1, 1), F64s(2, []float64{1, 2})}
	if _, err := GetU32(fields, 9); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := GetU64(fields, 1); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	var dst [3]float64
	if err := GetF64s(fields, 2, dst[:]); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}
