// Package dataset implements staged, deduplicated, crash-safe tabular storage:
// one Dataset per entity type and a Controller that owns them for a crawl session.
//
// A Dataset keeps committed rows (data) and staged rows (buffer) that share one
// Schema. Flush merges the buffer into data, keeping the last occurrence of each
// id. Save flushes and writes the table either to a session-scoped progress file
// or to the canonical file, always through a write-fsync-rename sequence.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Options configures where and how a dataset persists.
type Options struct {
	// Dir holds the canonical <name>.csv and the progress files.
	Dir string
	// Session makes progress file names unique per process.
	Session string
	// Update makes DoesIDExist report false and lets inserts overwrite committed ids.
	Update bool
	// Disabled yields a dataset that rejects every operation and never touches disk.
	Disabled bool
}

// Dataset is one entity type's durable table plus its staging buffer.
type Dataset struct {
	name     string
	schema   *Schema
	data     []row
	buffer   []row
	ids      map[string]int
	update   bool
	disabled bool
	path     string
	progress string
	logger   *zap.Logger
}

// Open loads <dir>/<name>.csv, or starts an empty table with the declared schema
// when the file does not exist.
func Open(name string, declared *Schema, opts Options, logger *zap.Logger) (*Dataset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("dataset name %q: %w", name, ErrInvalidInput)
	}
	if declared == nil {
		return nil, fmt.Errorf("dataset %s: schema is required: %w", name, ErrInvalidInput)
	}
	d := &Dataset{
		name:     name,
		update:   opts.Update,
		disabled: opts.Disabled,
		logger:   logger.With(zap.String("dataset", name)),
	}
	if d.disabled {
		return d, nil
	}
	if opts.Session == "" {
		return nil, fmt.Errorf("dataset %s: session is required: %w", name, ErrInvalidInput)
	}
	d.path = filepath.Join(opts.Dir, name+".csv")
	d.progress = filepath.Join(opts.Dir, fmt.Sprintf("%s_progress_%s.csv", name, opts.Session))

	if err := d.load(declared); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) load(declared *Schema) error {
	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.Info("dataset file does not exist, starting empty", zap.String("path", d.path))
		d.schema, _ = merge(nil, declared)
		d.reindex()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", d.path, err)
	}
	defer f.Close()

	schema, rows, err := readTable(f, declared)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", d.path, err)
	}
	d.schema = schema
	d.data = d.dedup(rows)
	if dropped := len(rows) - len(d.data); dropped > 0 {
		d.logger.Warn("dropped duplicate ids while loading", zap.Int("dropped", dropped))
	}
	d.reindex()
	d.logger.Debug("dataset loaded",
		zap.String("path", d.path),
		zap.Int("rows", len(d.data)),
		zap.Strings("columns", d.schema.Names()),
	)
	return nil
}

// Name returns the dataset name, which is also the canonical file stem.
func (d *Dataset) Name() string { return d.name }

// Disabled reports whether the dataset rejects all operations.
func (d *Dataset) Disabled() bool { return d.disabled }

// Path is the canonical file.
func (d *Dataset) Path() string { return d.path }

// ProgressPath is the session-scoped file written by non-direct saves.
func (d *Dataset) ProgressPath() string { return d.progress }

// Columns returns the shared column order of data and buffer.
func (d *Dataset) Columns() []string {
	if d.disabled {
		return nil
	}
	return d.schema.Names()
}

// Len is the number of committed rows. Like the other accessors it never
// fails; a disabled dataset holds no rows and reports 0.
func (d *Dataset) Len() int { return len(d.data) }

// Buffered is the number of staged rows, 0 when disabled.
func (d *Dataset) Buffered() int { return len(d.buffer) }

// AddRow stages rec. With prepend it lands before the rows already buffered.
func (d *Dataset) AddRow(rec Record, prepend bool) error {
	if err := d.enabled(); err != nil {
		return err
	}
	r, err := d.admit(rec)
	if err != nil {
		return err
	}
	if prepend {
		d.buffer = slices.Insert(d.buffer, 0, r)
	} else {
		d.buffer = append(d.buffer, r)
	}
	return nil
}

// AddRows stages recs in order. Prepended rows keep their relative order and all
// land before the previously buffered rows. On error, rows admitted before the
// failing one stay buffered.
func (d *Dataset) AddRows(recs []Record, prepend bool) error {
	if err := d.enabled(); err != nil {
		return err
	}
	for i, rec := range recs {
		r, err := d.admit(rec)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if prepend {
			d.buffer = slices.Insert(d.buffer, i, r)
		} else {
			d.buffer = append(d.buffer, r)
		}
	}
	return nil
}

func (d *Dataset) admit(rec Record) (row, error) {
	r, err := toRow(d.schema, rec)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.name, err)
	}
	if d.update || !d.schema.Has(IDColumn) {
		return r, nil
	}
	if _, ok := d.ids[r.id()]; ok {
		return nil, &EntityExistsError{Dataset: d.name, ID: r.id()}
	}
	return r, nil
}

// DoesIDExist reports whether id is committed. In update mode it always reports
// false so callers re-fetch and overwrite instead of skipping.
func (d *Dataset) DoesIDExist(id string) (bool, error) {
	if err := d.enabled(); err != nil {
		return false, err
	}
	if !d.schema.Has(IDColumn) {
		return false, fmt.Errorf("dataset %s: %q: %w", d.name, IDColumn, ErrMissingColumn)
	}
	if d.update {
		return false, nil
	}
	_, ok := d.ids[id]
	return ok, nil
}

// UpdateRow overwrites the given columns of a committed row.
func (d *Dataset) UpdateRow(id string, partial Record) error {
	if err := d.enabled(); err != nil {
		return err
	}
	if !d.schema.Has(IDColumn) {
		return fmt.Errorf("dataset %s: %q: %w", d.name, IDColumn, ErrMissingColumn)
	}
	if partial == nil {
		return fmt.Errorf("dataset %s: partial row must be a mapping: %w", d.name, ErrInvalidInput)
	}
	changes := make(row, len(partial))
	for name, raw := range partial {
		f, ok := d.schema.Field(name)
		if !ok {
			return fmt.Errorf("dataset %s: column %q: %w", d.name, name, ErrInvalidColumn)
		}
		v, err := convert(f, raw)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", d.name, err)
		}
		if name == IDColumn && v.Str != id {
			return fmt.Errorf("dataset %s: cannot change id %s to %s: %w", d.name, id, v.Str, ErrInvalidInput)
		}
		changes[name] = v
	}
	i, ok := d.ids[id]
	if !ok {
		return fmt.Errorf("dataset %s: id %s: %w", d.name, id, ErrUnknownID)
	}
	for name, v := range changes {
		d.data[i][name] = v
	}
	return nil
}

// Flush merges the buffer into the committed rows. Buffered rows are newer, so
// for a repeated id the last occurrence wins. A no-op when nothing is staged.
func (d *Dataset) Flush() error {
	if err := d.enabled(); err != nil {
		return err
	}
	if len(d.buffer) == 0 {
		return nil
	}
	combined := append(d.data, d.buffer...)
	d.data = d.dedup(combined)
	d.buffer = nil
	d.reindex()
	return nil
}

// Save flushes, then writes the committed rows. direct=false writes the progress
// file; direct=true writes the canonical file and removes the progress file.
func (d *Dataset) Save(direct bool) error {
	if err := d.Flush(); err != nil {
		return err
	}
	write := func(w io.Writer) error { return writeTable(w, d.schema, d.data) }
	if !direct {
		if err := writeFileAtomic(d.progress, write); err != nil {
			return fmt.Errorf("dataset %s: save progress: %w", d.name, err)
		}
		d.logger.Debug("saved progress file", zap.String("path", d.progress), zap.Int("rows", len(d.data)))
		return nil
	}
	if err := writeFileAtomic(d.path, write); err != nil {
		return fmt.Errorf("dataset %s: save: %w", d.name, err)
	}
	if err := removeIfExists(d.progress); err != nil {
		return fmt.Errorf("dataset %s: %w", d.name, err)
	}
	d.logger.Debug("saved dataset file", zap.String("path", d.path), zap.Int("rows", len(d.data)))
	return nil
}

// Column returns one committed column in row order.
func (d *Dataset) Column(name string) ([]Value, error) {
	if err := d.enabled(); err != nil {
		return nil, err
	}
	if !d.schema.Has(name) {
		return nil, fmt.Errorf("dataset %s: %q: %w", d.name, name, ErrMissingColumn)
	}
	out := make([]Value, len(d.data))
	for i, r := range d.data {
		out[i] = r.clone()[name]
	}
	return out, nil
}

// Cell returns one committed value by id and column.
func (d *Dataset) Cell(id, column string) (Value, error) {
	if err := d.enabled(); err != nil {
		return Value{}, err
	}
	for _, c := range []string{IDColumn, column} {
		if !d.schema.Has(c) {
			return Value{}, fmt.Errorf("dataset %s: %q: %w", d.name, c, ErrMissingColumn)
		}
	}
	i, ok := d.ids[id]
	if !ok {
		return Value{}, fmt.Errorf("dataset %s: id %s: %w", d.name, id, ErrUnknownID)
	}
	return d.data[i].clone()[column], nil
}

// Select projects the committed rows onto keys.
func (d *Dataset) Select(keys ...string) ([]Record, error) {
	if err := d.enabled(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("dataset %s: no columns selected: %w", d.name, ErrInvalidInput)
	}
	for _, k := range keys {
		if !d.schema.Has(k) {
			return nil, fmt.Errorf("dataset %s: %q: %w", d.name, k, ErrMissingColumn)
		}
	}
	out := make([]Record, len(d.data))
	for i, r := range d.data {
		rec := make(Record, len(keys))
		for _, k := range keys {
			rec[k] = r[k].Any()
		}
		out[i] = rec
	}
	return out, nil
}

// Records returns a copy of every committed row.
func (d *Dataset) Records() ([]Record, error) {
	if err := d.enabled(); err != nil {
		return nil, err
	}
	out := make([]Record, len(d.data))
	for i, r := range d.data {
		out[i] = r.record()
	}
	return out, nil
}

// DropColumns removes columns from the schema and therefore from both data and
// buffer. Nothing changes unless every column exists.
func (d *Dataset) DropColumns(cols ...string) error {
	if err := d.enabled(); err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("dataset %s: no columns to drop: %w", d.name, ErrInvalidInput)
	}
	for _, c := range cols {
		if !d.schema.Has(c) {
			return fmt.Errorf("dataset %s: %q: %w", d.name, c, ErrMissingColumn)
		}
	}
	for _, c := range cols {
		d.schema.remove(c)
		for _, r := range d.data {
			delete(r, c)
		}
		for _, r := range d.buffer {
			delete(r, c)
		}
	}
	d.reindex()
	return nil
}

func (d *Dataset) enabled() error {
	if d.disabled {
		return fmt.Errorf("dataset %s: %w", d.name, ErrDisabledDataset)
	}
	return nil
}

// dedup keeps, for each id, only its last occurrence, at that occurrence's position.
func (d *Dataset) dedup(rows []row) []row {
	if !d.schema.Has(IDColumn) {
		return rows
	}
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[r.id()] = i
	}
	out := make([]row, 0, len(last))
	for i, r := range rows {
		if last[r.id()] == i {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dataset) reindex() {
	d.ids = make(map[string]int, len(d.data))
	if !d.schema.Has(IDColumn) {
		return
	}
	for i, r := range d.data {
		d.ids[r.id()] = i
	}
}
