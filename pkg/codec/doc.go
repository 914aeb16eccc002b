// Package codec provides the record layout used by RecordVault allocations.
//
// A record is described by a Schema: an ordered list of fixed-width scalar
// fields followed by zero or more variable-length sequences of fixed-width
// elements. The codec converts between an in-memory Record and its byte
// encoding.
//
// # Record Format
//
// All integers are little-endian. Fields are written in declared order,
// then each sequence in declared order:
//
//	[Field 0]...[Field N][Count 0(4)][Elements 0]...[Count M(4)][Elements M]
//
// Field widths:
//   - bool, u8, enum: 1 byte (bool is 0 or 1, enum is the variant index)
//   - u32: 4 bytes
//   - u64: 8 bytes
//   - u128: 16 bytes (low 8 bytes first)
//   - pubkey: 32 bytes
//   - text: Size bytes, zero padded
//
// A sequence is a 4-byte element count followed by Count * ElemWidth bytes.
// The total size of a record is Schema.FixedWidth() plus the element bytes
// of every sequence.
//
// # Sequence Capacity
//
// A decoded Sequence reports Cap() equal to its Len(). Decoding never
// reserves headroom, so growing a record is always an explicit step taken by
// the caller against the backing allocation.
//
// # Usage
//
//	schema := &codec.Schema{
//	    Name:      "ticket",
//	    Fields:    []codec.FieldDef{{Name: "buyer", Kind: codec.KindPublicKey}},
//	    Sequences: []codec.SequenceDef{{Name: "numbers", ElemWidth: 4}},
//	}
//	c := codec.NewRecordCodec(schema)
//
//	rec := codec.NewRecord(schema)
//	_ = rec.SetSequence("numbers", []uint64{1, 2, 3})
//
//	encoded, err := c.Encode(rec)
//	if err != nil {
//	    return err
//	}
//
//	decoded, err := c.Decode(encoded)
//	if err != nil {
//	    return err // wraps ErrMalformedRecord
//	}
//
// # Thread Safety
//
// RecordCodec and Schema are read-only after construction and safe for
// concurrent use. Record values are not synchronized.
package codec
