package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidValue is returned when a value does not fit the field or
// sequence it is assigned to
var ErrInvalidValue = errors.New("invalid value")

// Value holds one scalar field value
type Value struct {
	Kind  Kind
	Lo    uint64 // bool, u8, u32, u64, enum index, low half of u128
	Hi    uint64 // high half of u128
	Bytes []byte // text, pubkey
}

// Bool creates a bool value
func Bool(b bool) Value {
	v := Value{Kind: KindBool}
	if b {
		v.Lo = 1
	}
	return v
}

// Uint8 creates a u8 value
func Uint8(n uint8) Value { return Value{Kind: KindUint8, Lo: uint64(n)} }

// Uint32 creates a u32 value
func Uint32(n uint32) Value { return Value{Kind: KindUint32, Lo: uint64(n)} }

// Uint64 creates a u64 value
func Uint64(n uint64) Value { return Value{Kind: KindUint64, Lo: n} }

// Uint128 creates a u128 value from its high and low halves
func Uint128(hi, lo uint64) Value { return Value{Kind: KindUint128, Hi: hi, Lo: lo} }

// Enum creates an enum value from a variant index
func Enum(index uint8) Value { return Value{Kind: KindEnum, Lo: uint64(index)} }

// Text creates a text value
func Text(s string) Value { return Value{Kind: KindText, Bytes: []byte(s)} }

// PublicKey creates a 32-byte key value
func PublicKey(k [32]byte) Value {
	b := make([]byte, 32)
	copy(b, k[:])
	return Value{Kind: KindPublicKey, Bytes: b}
}

// Uint128FromBig converts a non-negative integer below 2^128
func Uint128FromBig(n *big.Int) (Value, error) {
	if n.Sign() < 0 || n.BitLen() > 128 {
		return Value{}, fmt.Errorf("%w: %s does not fit in u128", ErrInvalidValue, n)
	}
	lo := new(big.Int).And(n, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hi := new(big.Int).Rsh(n, 64).Uint64()
	return Uint128(hi, lo), nil
}

// AsBool returns the value as a bool
func (v Value) AsBool() bool { return v.Lo != 0 }

// AsUint returns the value as an unsigned integer. u128 values return the low half.
func (v Value) AsUint() uint64 { return v.Lo }

// AsText returns a text value without its zero padding
func (v Value) AsText() string { return string(bytes.TrimRight(v.Bytes, "\x00")) }

// AsBig returns integer kinds as a big.Int
func (v Value) AsBig() *big.Int {
	n := new(big.Int).SetUint64(v.Hi)
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(v.Lo))
}

// AsPublicKey returns a pubkey value as a 32-byte array
func (v Value) AsPublicKey() [32]byte {
	var k [32]byte
	copy(k[:], v.Bytes)
	return k
}

// Equal reports whether two values have the same kind and content.
// Text values compare without zero padding.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindText:
		return v.AsText() == o.AsText()
	case KindPublicKey:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindUint128:
		return v.Hi == o.Hi && v.Lo == o.Lo
	}
	return v.Lo == o.Lo
}

// String formats the value for logs
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.AsBool())
	case KindUint128:
		return v.AsBig().String()
	case KindText:
		return v.AsText()
	case KindPublicKey:
		return fmt.Sprintf("%x", v.Bytes)
	}
	return fmt.Sprintf("%d", v.Lo)
}

// check verifies that the value can be stored in the field
func (v Value) check(f FieldDef) error {
	if v.Kind != f.Kind {
		return fmt.Errorf("%w: field %q is %s, got %s", ErrInvalidValue, f.Name, f.Kind, v.Kind)
	}

	switch f.Kind {
	case KindBool:
		if v.Lo > 1 {
			return fmt.Errorf("%w: field %q bool out of range", ErrInvalidValue, f.Name)
		}
	case KindUint8:
		if v.Lo > 0xff {
			return fmt.Errorf("%w: field %q overflows u8", ErrInvalidValue, f.Name)
		}
	case KindUint32:
		if v.Lo > 0xffffffff {
			return fmt.Errorf("%w: field %q overflows u32", ErrInvalidValue, f.Name)
		}
	case KindEnum:
		if v.Lo >= uint64(len(f.Variants)) {
			return fmt.Errorf("%w: field %q has no variant %d", ErrInvalidValue, f.Name, v.Lo)
		}
	case KindText:
		if len(v.Bytes) > f.Size {
			return fmt.Errorf("%w: field %q text is %d bytes, limit %d", ErrInvalidValue, f.Name, len(v.Bytes), f.Size)
		}
	case KindPublicKey:
		if len(v.Bytes) != 32 {
			return fmt.Errorf("%w: field %q key must be 32 bytes", ErrInvalidValue, f.Name)
		}
	}

	return nil
}

// zeroValue returns the initial value of a field
func zeroValue(f FieldDef) Value {
	v := Value{Kind: f.Kind}
	if f.Kind == KindPublicKey {
		v.Bytes = make([]byte, 32)
	}
	return v
}

// VariantIndex returns the index of the named enum variant
func (f FieldDef) VariantIndex(name string) (int, bool) {
	for i, v := range f.Variants {
		if v == name {
			return i, true
		}
	}
	return -1, false
}
