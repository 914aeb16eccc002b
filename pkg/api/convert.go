package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ssargent/recordvault/pkg/codec"
	"github.com/ssargent/recordvault/pkg/keys"
	"github.com/ssargent/recordvault/pkg/store"
)

// RecordView is the JSON form of a record and its allocation
type RecordView struct {
	Key       string              `json:"key"`
	Schema    string              `json:"schema"`
	Fields    map[string]any      `json:"fields"`
	Sequences map[string][]uint64 `json:"sequences"`
	Capacity  int                 `json:"capacity"`
	Length    int                 `json:"length"`
}

// NewRecordView renders a decoded record
func NewRecordView(key keys.Address, rec *codec.Record, st store.RecordStat) RecordView {
	view := RecordView{
		Key:       key.String(),
		Schema:    rec.Schema.Name,
		Fields:    make(map[string]any, len(rec.Fields)),
		Sequences: make(map[string][]uint64, len(rec.Sequences)),
		Capacity:  st.Capacity,
		Length:    st.Length,
	}
	for i, f := range rec.Schema.Fields {
		view.Fields[f.Name] = FormatField(f, rec.Fields[i])
	}
	for i, q := range rec.Schema.Sequences {
		view.Sequences[q.Name] = rec.Sequences[i].Elements()
	}
	return view
}

// NewSchemaView renders a schema
func NewSchemaView(s *codec.Schema) SchemaView {
	view := SchemaView{
		Name:       s.Name,
		Fields:     make([]FieldView, 0, len(s.Fields)),
		Sequences:  make([]SequenceView, 0, len(s.Sequences)),
		FixedWidth: s.FixedWidth(),
	}
	for _, f := range s.Fields {
		view.Fields = append(view.Fields, FieldView{
			Name:     f.Name,
			Kind:     f.Kind.String(),
			Width:    f.Width(),
			Variants: f.Variants,
		})
	}
	for _, q := range s.Sequences {
		view.Sequences = append(view.Sequences, SequenceView{Name: q.Name, ElemWidth: q.ElemWidth})
	}
	return view
}

// FormatField converts a value to its JSON form: u128 as a decimal string,
// enums by variant name and public keys in base58
func FormatField(f codec.FieldDef, v codec.Value) any {
	switch f.Kind {
	case codec.KindBool:
		return v.AsBool()
	case codec.KindUint128:
		return v.AsBig().String()
	case codec.KindEnum:
		if i := int(v.AsUint()); i < len(f.Variants) {
			return f.Variants[i]
		}
		return v.AsUint()
	case codec.KindText:
		return v.AsText()
	case codec.KindPublicKey:
		return keys.Address(v.AsPublicKey()).String()
	}
	return v.AsUint()
}

// ParseField converts the textual form of a value for field f
func ParseField(f codec.FieldDef, s string) (codec.Value, error) {
	invalid := func(err error) (codec.Value, error) {
		return codec.Value{}, fmt.Errorf("%w: field %q: %v", codec.ErrInvalidValue, f.Name, err)
	}

	switch f.Kind {
	case codec.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return invalid(err)
		}
		return codec.Bool(b), nil
	case codec.KindUint8:
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return invalid(err)
		}
		return codec.Uint8(uint8(n)), nil
	case codec.KindUint32:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return invalid(err)
		}
		return codec.Uint32(uint32(n)), nil
	case codec.KindUint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return invalid(err)
		}
		return codec.Uint64(n), nil
	case codec.KindUint128:
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return invalid(fmt.Errorf("%q is not a decimal integer", s))
		}
		return codec.Uint128FromBig(n)
	case codec.KindEnum:
		if i, ok := f.VariantIndex(s); ok {
			return codec.Enum(uint8(i)), nil
		}
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return invalid(fmt.Errorf("unknown variant %q", s))
		}
		return codec.Enum(uint8(n)), nil
	case codec.KindText:
		return codec.Text(s), nil
	case codec.KindPublicKey:
		addr, err := keys.ParseAddress(s)
		if err != nil {
			return invalid(err)
		}
		return codec.PublicKey(addr), nil
	}
	return invalid(fmt.Errorf("unsupported kind %s", f.Kind))
}

// textOf turns a decoded JSON scalar into the text ParseField accepts
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

// BuildRecord assembles a record from field text and sequence elements
func BuildRecord(schema *codec.Schema, fields map[string]string, sequences map[string][]uint64) (*codec.Record, error) {
	rec := codec.NewRecord(schema)
	for name, text := range fields {
		i := schema.FieldIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, schema.Name, name)
		}
		v, err := ParseField(schema.Fields[i], text)
		if err != nil {
			return nil, err
		}
		if err := rec.SetField(name, v); err != nil {
			return nil, err
		}
	}
	for name, elems := range sequences {
		if err := rec.SetSequence(name, elems); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ParseUpdates converts field text into store updates
func ParseUpdates(schema *codec.Schema, fields map[string]string) ([]store.FieldUpdate, error) {
	updates := make([]store.FieldUpdate, 0, len(fields))
	for name, text := range fields {
		i := schema.FieldIndex(name)
		if i < 0 {
			if schema.SequenceIndex(name) >= 0 {
				return nil, fmt.Errorf("%w: sequence %q can only be appended to", codec.ErrInvalidValue, name)
			}
			return nil, fmt.Errorf("%w: schema %s has no field %q", codec.ErrInvalidValue, schema.Name, name)
		}
		v, err := ParseField(schema.Fields[i], text)
		if err != nil {
			return nil, err
		}
		updates = append(updates, store.FieldUpdate{Name: name, Value: v})
	}
	return updates, nil
}

// CapacityFor returns the allocation size for rec: the explicit capacity when
// positive, otherwise room for reserve[name] elements per sequence and never
// less than the encoded record
func CapacityFor(rec *codec.Record, capacity int, reserve map[string]int) int {
	if capacity > 0 {
		return capacity
	}
	size := rec.Size()
	if len(reserve) == 0 {
		return size
	}
	if reserved := rec.Schema.SpaceFor(reserve); reserved > size {
		return reserved
	}
	return size
}

func textFields(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = textOf(v)
	}
	return out
}
