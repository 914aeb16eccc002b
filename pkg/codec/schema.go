package codec

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a fixed-width field
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindUint8
	KindUint32
	KindUint64
	KindUint128
	KindEnum
	KindText
	KindPublicKey
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindUint8:     "u8",
	KindUint32:    "u32",
	KindUint64:    "u64",
	KindUint128:   "u128",
	KindEnum:      "enum",
	KindText:      "text",
	KindPublicKey: "pubkey",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind converts a kind name as written in configuration into a Kind
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field kind %q", name)
}

// FieldDef describes one fixed-width field
type FieldDef struct {
	Name     string
	Kind     Kind
	Size     int      // byte width, KindText only
	Variants []string // variant names, KindEnum only
}

// Width returns the encoded width of the field in bytes
func (f FieldDef) Width() int {
	switch f.Kind {
	case KindBool, KindUint8, KindEnum:
		return 1
	case KindUint32:
		return 4
	case KindUint64:
		return 8
	case KindUint128:
		return 16
	case KindPublicKey:
		return 32
	case KindText:
		return f.Size
	}
	return 0
}

// SequenceDef describes a variable-length sequence of fixed-width elements
type SequenceDef struct {
	Name      string
	ElemWidth int // 1, 2, 4 or 8
}

// countWidth is the width of the element count written before each sequence
const countWidth = 4

// Schema is the declared layout of a record
type Schema struct {
	Name      string
	Fields    []FieldDef
	Sequences []SequenceDef
}

// Validate checks that the schema can be encoded
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema name is required")
	}

	seen := make(map[string]struct{})
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field name is required", s.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}

		switch f.Kind {
		case KindText:
			if f.Size <= 0 {
				return fmt.Errorf("schema %s: text field %q needs a positive size", s.Name, f.Name)
			}
		case KindEnum:
			if len(f.Variants) == 0 || len(f.Variants) > 256 {
				return fmt.Errorf("schema %s: enum field %q needs 1..256 variants", s.Name, f.Name)
			}
		case KindBool, KindUint8, KindUint32, KindUint64, KindUint128, KindPublicKey:
		default:
			return fmt.Errorf("schema %s: field %q has unknown kind %s", s.Name, f.Name, f.Kind)
		}
	}

	for _, q := range s.Sequences {
		if q.Name == "" {
			return fmt.Errorf("schema %s: sequence name is required", s.Name)
		}
		if _, dup := seen[q.Name]; dup {
			return fmt.Errorf("schema %s: duplicate field %q", s.Name, q.Name)
		}
		seen[q.Name] = struct{}{}

		switch q.ElemWidth {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("schema %s: sequence %q has unsupported element width %d", s.Name, q.Name, q.ElemWidth)
		}
	}

	return nil
}

// FixedWidth returns the minimum encoded size: every field plus one element
// count per sequence
func (s *Schema) FixedWidth() int {
	n := 0
	for _, f := range s.Fields {
		n += f.Width()
	}
	return n + countWidth*len(s.Sequences)
}

// SpaceFor returns the encoded size of a record holding counts[name]
// elements in each named sequence. Missing names count as empty.
func (s *Schema) SpaceFor(counts map[string]int) int {
	n := s.FixedWidth()
	for _, q := range s.Sequences {
		n += counts[q.Name] * q.ElemWidth
	}
	return n
}

// FieldIndex returns the position of the named field or -1
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// SequenceIndex returns the position of the named sequence or -1
func (s *Schema) SequenceIndex(name string) int {
	for i, q := range s.Sequences {
		if q.Name == name {
			return i
		}
	}
	return -1
}
