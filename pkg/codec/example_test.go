package codec_test

import (
	"fmt"
	"log"

	"github.com/ssargent/recordvault/pkg/codec"
)

// ExampleRecordCodec demonstrates encoding a record and decoding it back
func ExampleRecordCodec() {
	schema := &codec.Schema{
		Name:      "ticket",
		Fields:    []codec.FieldDef{{Name: "buyer", Kind: codec.KindPublicKey}},
		Sequences: []codec.SequenceDef{{Name: "numbers", ElemWidth: 4}},
	}
	c := codec.NewRecordCodec(schema)

	record := codec.NewRecord(schema)
	if err := record.SetSequence("numbers", []uint64{1, 2, 3}); err != nil {
		log.Fatal(err)
	}

	encoded, err := c.Encode(record)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Encoded %d bytes\n", len(encoded))

	decoded, err := c.Decode(encoded)
	if err != nil {
		log.Fatal(err)
	}
	numbers, _ := decoded.Sequence("numbers")
	fmt.Printf("Numbers: %v (len %d, cap %d)\n", numbers.Elements(), numbers.Len(), numbers.Cap())

	// Output:
	// Encoded 48 bytes
	// Numbers: [1 2 3] (len 3, cap 3)
}

// ExampleSchema_SpaceFor shows sizing an allocation for a number of elements
func ExampleSchema_SpaceFor() {
	schema := &codec.Schema{
		Name:      "ticket",
		Fields:    []codec.FieldDef{{Name: "buyer", Kind: codec.KindPublicKey}},
		Sequences: []codec.SequenceDef{{Name: "numbers", ElemWidth: 4}},
	}

	fmt.Println(schema.SpaceFor(map[string]int{"numbers": 1000}))

	// Output:
	// 4036
}
