package protocol

import (
	"encoding/binary"
	"math"
)

func NewFieldUint8(id uint16, v uint8) Field {
	return Field{ID: id, Type: FieldUint8, Value: []byte{v}}
}

func NewFieldUint32(id uint16, v uint32) Field {
	return Field{ID: id, Type: FieldUint32, Value: binary.BigEndian.AppendUint32(nil, v)}
}

func NewFieldUint64(id uint16, v uint64) Field {
	return Field{ID: id, Type: FieldUint64, Value: binary.BigEndian.AppendUint64(nil, v)}
}

// NewFieldFloat64 stores v as its IEEE 754 bits so urgency and weights
// survive a round trip exactly.
func NewFieldFloat64(id uint16, v float64) Field {
	return Field{ID: id, Type: FieldFloat64, Value: binary.BigEndian.AppendUint64(nil, math.Float64bits(v))}
}

func NewFieldBool(id uint16, v bool) Field {
	var b byte
	if v {
		b = 1
	}
	return Field{ID: id, Type: FieldBool, Value: []byte{b}}
}

func NewFieldString(id uint16, v string) Field {
	return Field{ID: id, Type: FieldString, Value: []byte(v)}
}

// NewFieldBytes copies v.
func NewFieldBytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: FieldBytes, Value: append([]byte{}, v...)}
}

// fixed returns the raw value of a fixed-width field of type want.
func (f Field) fixed(want FieldType, width int) ([]byte, error) {
	if f.Type != want {
		return nil, ErrFieldTypeMismatch
	}
	if len(f.Value) != width {
		return nil, ErrInvalidLength
	}
	return f.Value, nil
}

func (f Field) Uint8() (uint8, error) {
	b, err := f.fixed(FieldUint8, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f Field) Uint32() (uint32, error) {
	b, err := f.fixed(FieldUint32, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (f Field) Uint64() (uint64, error) {
	b, err := f.fixed(FieldUint64, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (f Field) Float64() (float64, error) {
	b, err := f.fixed(FieldFloat64, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// Bool accepts only 0 and 1.
func (f Field) Bool() (bool, error) {
	b, err := f.fixed(FieldBool, 1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (f Field) String() (string, error) {
	if f.Type != FieldString {
		return "", ErrFieldTypeMismatch
	}
	return string(f.Value), nil
}

// Bytes returns a copy of the value.
func (f Field) Bytes() ([]byte, error) {
	if f.Type != FieldBytes {
		return nil, ErrFieldTypeMismatch
	}
	return append([]byte{}, f.Value...), nil
}

// GetField returns the first field with id. Signature blocks and
// schema checks look fields up by id; the codec reads them through
// ParseSemantic instead.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
