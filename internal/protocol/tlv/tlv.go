package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrMissingField     = errors.New("tlv: missing field")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrInvalidLength    = errors.New("tlv: invalid value length")
)

// Type IDs from tlv contract.
const (
	TypeU8       uint8 = 1
	TypeU16      uint8 = 2
	TypeU32      uint8 = 3
	TypeU64      uint8 = 4
	TypeBool     uint8 = 5
	TypeString   uint8 = 6
	TypeBytes    uint8 = 7
	TypeI32      uint8 = 8
	TypeF64      uint8 = 9
	TypeF64Array uint8 = 10
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrTypeMismatch, f.ID, f.Type, expected)
	}
	return nil
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U16(id uint16, v uint16) Field {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return Field{ID: id, Type: TypeU16, Value: buf}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func I32(id uint16, v int32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return Field{ID: id, Type: TypeI32, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func F64(id uint16, v float64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return Field{ID: id, Type: TypeF64, Value: buf}
}

func F64s(id uint16, v []float64) Field {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return Field{ID: id, Type: TypeF64Array, Value: buf}
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: u32 length %d", ErrInvalidLength, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func U64FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: u64 length %d", ErrInvalidLength, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// F64sInto decodes a packed f64 array into dst, which must match its length.
func F64sInto(dst []float64, b []byte) error {
	if len(b) != 8*len(dst) {
		return fmt.Errorf("%w: f64 array of %d bytes into %d elements", ErrInvalidLength, len(b), len(dst))
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.BigEndian.Uint64(b[8*i:]))
	}
	return nil
}

func lookup(fields []Field, id uint16, typ uint8) (Field, error) {
	f, ok := GetField(fields, id)
	if !ok {
		return Field{}, fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	if err := MustType(f, typ); err != nil {
		return Field{}, err
	}
	return f, nil
}

func GetU8(fields []Field, id uint16) (uint8, error) {
	f, err := lookup(fields, id, TypeU8)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 1 {
		return 0, fmt.Errorf("%w: u8 length %d", ErrInvalidLength, len(f.Value))
	}
	return f.Value[0], nil
}

func GetU16(fields []Field, id uint16) (uint16, error) {
	f, err := lookup(fields, id, TypeU16)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 2 {
		return 0, fmt.Errorf("%w: u16 length %d", ErrInvalidLength, len(f.Value))
	}
	return binary.BigEndian.Uint16(f.Value), nil
}

func GetU32(fields []Field, id uint16) (uint32, error) {
	f, err := lookup(fields, id, TypeU32)
	if err != nil {
		return 0, err
	}
	return U32FromBytes(f.Value)
}

func GetU64(fields []Field, id uint16) (uint64, error) {
	f, err := lookup(fields, id, TypeU64)
	if err != nil {
		return 0, err
	}
	return U64FromBytes(f.Value)
}

func GetI32(fields []Field, id uint16) (int32, error) {
	f, err := lookup(fields, id, TypeI32)
	if err != nil {
		return 0, err
	}
	v, err := U32FromBytes(f.Value)
	return int32(v), err
}

func GetBool(fields []Field, id uint16) (bool, error) {
	f, err := lookup(fields, id, TypeBool)
	if err != nil {
		return false, err
	}
	if len(f.Value) != 1 || f.Value[0] > 1 {
		return false, fmt.Errorf("%w: bool field %d", ErrInvalidLength, id)
	}
	return f.Value[0] == 1, nil
}

func GetF64(fields []Field, id uint16) (float64, error) {
	f, err := lookup(fields, id, TypeF64)
	if err != nil {
		return 0, err
	}
	v, err := U64FromBytes(f.Value)
	return math.Float64frombits(v), err
}

// GetF64s decodes a fixed-size f64 array field into dst.
func GetF64s(fields []Field, id uint16, dst []float64) error {
	f, err := lookup(fields, id, TypeF64Array)
	if err != nil {
		return err
	}
	return F64sInto(dst, f.Value)
}
