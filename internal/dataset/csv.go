package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// readTable parses a header-first CSV table. The returned schema is the file
// header merged with declared; rows are validated against it.
func readTable(r io.Reader, declared *Schema) (*Schema, []row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// An empty file is an empty table.
		s, _ := merge(nil, declared)
		return s, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	s, err := merge(header, declared)
	if err != nil {
		return nil, nil, err
	}

	var rows []row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		out := make(row, len(s.fields))
		for i, name := range header {
			f, _ := s.Field(name)
			v, err := decodeCell(f, rec[i])
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", line, err)
			}
			out[name] = v
		}
		for _, f := range s.fields[len(header):] {
			out[f.Name] = zero(f.Kind)
		}
		rows = append(rows, out)
	}
	return s, rows, nil
}

// writeTable writes the header and rows in schema order.
func writeTable(w io.Writer, s *Schema, rows []row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Names()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(s.fields))
	for _, r := range rows {
		for i, f := range s.fields {
			cell, err := encodeCell(r[f.Name])
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			rec[i] = cell
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func encodeCell(v Value) (string, error) {
	if v.Kind != KindList {
		return v.Str, nil
	}
	list := v.List
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeCell(f Field, cell string) (Value, error) {
	if f.Kind != KindList {
		return Value{Kind: KindString, Str: cell}, nil
	}
	if cell == "" {
		return zero(KindList), nil
	}
	var list []string
	if err := json.Unmarshal([]byte(cell), &list); err != nil {
		return Value{}, fmt.Errorf("column %q: unparseable list cell %q: %w", f.Name, cell, ErrInvalidInput)
	}
	if list == nil {
		list = []string{}
	}
	return Value{Kind: KindList, List: list}, nil
}
