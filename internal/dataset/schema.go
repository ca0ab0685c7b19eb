package dataset

import (
	"fmt"
	"slices"
)

// IDColumn is the dedup key of every dataset that declares it.
const IDColumn = "id"

// Kind is the declared type of a field.
type Kind int

// Supported field kinds.
const (
	KindString Kind = iota
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is one named, typed column.
type Field struct {
	Name string
	Kind Kind
}

// String declares a string field.
func String(name string) Field { return Field{Name: name, Kind: KindString} }

// List declares a list-of-strings field.
func List(name string) Field { return Field{Name: name, Kind: KindList} }

// Schema is the ordered field list shared by a dataset's committed rows and its buffer.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema, rejecting empty or duplicate field names.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(f Field) error {
	if f.Name == "" {
		return fmt.Errorf("empty field name: %w", ErrInvalidColumn)
	}
	if _, ok := s.index[f.Name]; ok {
		return fmt.Errorf("duplicate field %q: %w", f.Name, ErrInvalidColumn)
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

func (s *Schema) remove(name string) {
	i, ok := s.index[name]
	if !ok {
		return
	}
	s.fields = slices.Delete(s.fields, i, i+1)
	delete(s.index, name)
	for j := i; j < len(s.fields); j++ {
		s.index[s.fields[j].Name] = j
	}
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Fields returns a copy of the ordered fields.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// merge builds the schema of a loaded file: header order first, then declared
// fields the header lacks. Header-only columns become string fields.
func merge(header []string, declared *Schema) (*Schema, error) {
	out := &Schema{index: make(map[string]int, len(header))}
	for _, name := range header {
		f, ok := declared.Field(name)
		if !ok {
			f = String(name)
		}
		if err := out.add(f); err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
	}
	for _, f := range declared.fields {
		if !out.Has(f.Name) {
			if err := out.add(f); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
