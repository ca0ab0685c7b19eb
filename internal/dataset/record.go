package dataset

import (
	"fmt"
	"slices"
)

// Record is the caller-facing shape of a row. Values are string or []string and
// must match the declared kind of their field.
type Record map[string]any

// ID returns the record's id field, or "" when absent.
func (r Record) ID() string {
	id, _ := r[IDColumn].(string)
	return id
}

// Value is one typed cell.
type Value struct {
	Kind Kind
	Str  string
	List []string
}

// Any returns the cell as string or []string.
func (v Value) Any() any {
	if v.Kind == KindList {
		return slices.Clone(v.List)
	}
	return v.Str
}

func zero(k Kind) Value {
	if k == KindList {
		return Value{Kind: KindList, List: []string{}}
	}
	return Value{Kind: KindString}
}

// row is the stored form: one Value per schema field.
type row map[string]Value

func (r row) id() string {
	return r[IDColumn].Str
}

func (r row) record() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v.Any()
	}
	return out
}

func (r row) clone() row {
	out := make(row, len(r))
	for k, v := range r {
		if v.Kind == KindList {
			v.List = slices.Clone(v.List)
		}
		out[k] = v
	}
	return out
}

// convert validates a single value against its field.
func convert(f Field, raw any) (Value, error) {
	switch v := raw.(type) {
	case string:
		if f.Kind != KindString {
			return Value{}, fmt.Errorf("field %q wants %s, got string: %w", f.Name, f.Kind, ErrInvalidInput)
		}
		return Value{Kind: KindString, Str: v}, nil
	case []string:
		if f.Kind != KindList {
			return Value{}, fmt.Errorf("field %q wants %s, got list: %w", f.Name, f.Kind, ErrInvalidInput)
		}
		return Value{Kind: KindList, List: slices.Clone(v)}, nil
	case nil:
		return zero(f.Kind), nil
	default:
		return Value{}, fmt.Errorf("field %q: unsupported value type %T: %w", f.Name, raw, ErrInvalidInput)
	}
}

// toRow validates rec against s. Unknown fields are rejected; absent fields
// take the zero value of their kind.
func toRow(s *Schema, rec Record) (row, error) {
	if rec == nil {
		return nil, fmt.Errorf("row must be a mapping: %w", ErrInvalidInput)
	}
	out := make(row, len(s.fields))
	for name, raw := range rec {
		f, ok := s.Field(name)
		if !ok {
			return nil, fmt.Errorf("column %q not in schema: %w", name, ErrInvalidColumn)
		}
		v, err := convert(f, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	for _, f := range s.fields {
		if _, ok := out[f.Name]; !ok {
			out[f.Name] = zero(f.Kind)
		}
	}
	return out, nil
}
