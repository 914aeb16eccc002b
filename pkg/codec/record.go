package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when bytes cannot be decoded with the schema
var ErrMalformedRecord = errors.New("malformed record")

// Record is a structured value laid out by a Schema
type Record struct {
	Schema    *Schema
	Fields    []Value    // one per Schema.Fields, same order
	Sequences []Sequence // one per Schema.Sequences, same order
}

// NewRecord creates a record with zero fields and empty sequences
func NewRecord(schema *Schema) *Record {
	r := &Record{
		Schema:    schema,
		Fields:    make([]Value, len(schema.Fields)),
		Sequences: make([]Sequence, len(schema.Sequences)),
	}
	for i, f := range schema.Fields {
		r.Fields[i] = zeroValue(f)
	}
	for i, q := range schema.Sequences {
		r.Sequences[i] = NewSequence(q.ElemWidth)
	}
	return r
}

// Field returns the value of the named field
func (r *Record) Field(name string) (Value, bool) {
	i := r.Schema.FieldIndex(name)
	if i < 0 {
		return Value{}, false
	}
	return r.Fields[i], true
}

// SetField assigns the named field after checking that the value fits
func (r *Record) SetField(name string, v Value) error {
	i := r.Schema.FieldIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: schema %s has no field %q", ErrInvalidValue, r.Schema.Name, name)
	}
	if err := v.check(r.Schema.Fields[i]); err != nil {
		return err
	}
	r.Fields[i] = v
	return nil
}

// Sequence returns the named sequence
func (r *Record) Sequence(name string) (Sequence, bool) {
	i := r.Schema.SequenceIndex(name)
	if i < 0 {
		return Sequence{}, false
	}
	return r.Sequences[i], true
}

// SetSequence replaces the elements of the named sequence
func (r *Record) SetSequence(name string, elems []uint64) error {
	i := r.Schema.SequenceIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: schema %s has no sequence %q", ErrInvalidValue, r.Schema.Name, name)
	}
	r.Sequences[i] = NewSequence(r.Schema.Sequences[i].ElemWidth, elems...)
	return nil
}

// Size returns the encoded size of the record
func (r *Record) Size() int {
	n := 0
	for _, f := range r.Schema.Fields {
		n += f.Width()
	}
	for _, s := range r.Sequences {
		n += s.EncodedSize()
	}
	return n
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	out := &Record{
		Schema:    r.Schema,
		Fields:    make([]Value, len(r.Fields)),
		Sequences: make([]Sequence, len(r.Sequences)),
	}
	for i, v := range r.Fields {
		if v.Bytes != nil {
			v.Bytes = append([]byte(nil), v.Bytes...)
		}
		out.Fields[i] = v
	}
	for i, s := range r.Sequences {
		out.Sequences[i] = NewSequence(s.width, s.elems...)
	}
	return out
}

// RecordCodec handles serialization and deserialization of records for one schema
type RecordCodec struct {
	schema *Schema
}

// NewRecordCodec creates a codec for the schema
func NewRecordCodec(schema *Schema) *RecordCodec {
	return &RecordCodec{schema: schema}
}

// Schema returns the schema the codec encodes
func (c *RecordCodec) Schema() *Schema {
	return c.schema
}

// Encode serializes a record
// Format: [Fields...][Count(4)][Elements]...
func (c *RecordCodec) Encode(r *Record) ([]byte, error) {
	if r.Schema == nil || r.Schema.Name != c.schema.Name {
		return nil, fmt.Errorf("%w: record does not use schema %s", ErrInvalidValue, c.schema.Name)
	}
	if len(r.Fields) != len(c.schema.Fields) || len(r.Sequences) != len(c.schema.Sequences) {
		return nil, fmt.Errorf("%w: record shape does not match schema %s", ErrInvalidValue, c.schema.Name)
	}

	buf := make([]byte, r.Size())
	off := 0

	for i, f := range c.schema.Fields {
		v := r.Fields[i]
		if err := v.check(f); err != nil {
			return nil, err
		}
		putField(buf[off:off+f.Width()], f, v)
		off += f.Width()
	}

	for i, q := range c.schema.Sequences {
		s := r.Sequences[i]
		if s.Len() > int(^uint32(0)) {
			return nil, fmt.Errorf("%w: sequence %q too long", ErrInvalidValue, q.Name)
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.Len()))
		off += countWidth

		limit := maxElement(q.ElemWidth)
		for _, e := range s.elems {
			if e > limit {
				return nil, fmt.Errorf("%w: sequence %q element %d exceeds %d bytes", ErrInvalidValue, q.Name, e, q.ElemWidth)
			}
			putUint(buf[off:off+q.ElemWidth], e)
			off += q.ElemWidth
		}
	}

	return buf, nil
}

// Decode deserializes bytes into a record. Every byte must belong to the record.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	if len(data) < c.schema.FixedWidth() {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte minimum", ErrMalformedRecord, len(data), c.schema.FixedWidth())
	}

	r := &Record{
		Schema:    c.schema,
		Fields:    make([]Value, len(c.schema.Fields)),
		Sequences: make([]Sequence, len(c.schema.Sequences)),
	}
	off := 0

	for i, f := range c.schema.Fields {
		v := getField(data[off:off+f.Width()], f)
		if err := v.check(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		r.Fields[i] = v
		off += f.Width()
	}

	for i, q := range c.schema.Sequences {
		if len(data)-off < countWidth {
			return nil, fmt.Errorf("%w: missing count for sequence %q", ErrMalformedRecord, q.Name)
		}
		count := binary.LittleEndian.Uint32(data[off:])
		off += countWidth

		need := uint64(count) * uint64(q.ElemWidth)
		if need > uint64(len(data)-off) {
			return nil, fmt.Errorf("%w: sequence %q declares %d elements, only %d bytes remain", ErrMalformedRecord, q.Name, count, len(data)-off)
		}

		// Sized exactly to the element count: no headroom is assumed
		elems := make([]uint64, count)
		for j := range elems {
			elems[j] = getUint(data[off : off+q.ElemWidth])
			off += q.ElemWidth
		}
		r.Sequences[i] = Sequence{width: q.ElemWidth, elems: elems}
	}

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, len(data)-off)
	}

	return r, nil
}

func putField(buf []byte, f FieldDef, v Value) {
	switch f.Kind {
	case KindUint128:
		binary.LittleEndian.PutUint64(buf[0:8], v.Lo)
		binary.LittleEndian.PutUint64(buf[8:16], v.Hi)
	case KindText, KindPublicKey:
		copy(buf, v.Bytes)
	default:
		putUint(buf, v.Lo)
	}
}

func getField(buf []byte, f FieldDef) Value {
	v := Value{Kind: f.Kind}
	switch f.Kind {
	case KindUint128:
		v.Lo = binary.LittleEndian.Uint64(buf[0:8])
		v.Hi = binary.LittleEndian.Uint64(buf[8:16])
	case KindText, KindPublicKey:
		v.Bytes = append([]byte(nil), buf...)
	default:
		v.Lo = getUint(buf)
	}
	return v
}

func putUint(buf []byte, n uint64) {
	switch len(buf) {
	case 1:
		buf[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(buf, n)
	}
}

func getUint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	return 0
}
