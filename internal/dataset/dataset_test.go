package dataset

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(String("id"), String("title"), List("fights"))
	require.NoError(t, err)
	return s
}

func openTest(t *testing.T, dir string, opts Options) *Dataset {
	t.Helper()
	opts.Dir = dir
	if opts.Session == "" {
		opts.Session = "s1"
	}
	d, err := Open("events", eventSchema(t), opts, nil)
	require.NoError(t, err)
	return d
}

func ev(id, title string, fights ...string) Record {
	if fights == nil {
		fights = []string{}
	}
	return Record{"id": id, "title": title, "fights": fights}
}

func records(t *testing.T, d *Dataset) []Record {
	t.Helper()
	recs, err := d.Records()
	require.NoError(t, err)
	return recs
}

func bufferIDs(d *Dataset) []string {
	out := make([]string, len(d.buffer))
	for i, r := range d.buffer {
		out[i] = r.id()
	}
	return out
}

func dataIDs(d *Dataset) []string {
	out := make([]string, len(d.data))
	for i, r := range d.data {
		out[i] = r.id()
	}
	return out
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	assert.Equal(t, []string{"id", "title", "fights"}, d.Columns())
	assert.Zero(t, d.Len())
	assert.Zero(t, d.Buffered())
}

func TestOpenRejectsBadArguments(t *testing.T) {
	t.Parallel()

	_, err := Open("", eventSchema(t), Options{Session: "s"}, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Open("a/b", eventSchema(t), Options{Session: "s"}, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Open("events", eventSchema(t), Options{Dir: t.TempDir()}, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddRowPrependOrdering(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(ev("A", "a"), false))
	require.NoError(t, d.AddRow(ev("B", "b"), false))
	require.NoError(t, d.AddRow(ev("C", "c"), true))

	assert.Equal(t, []string{"C", "A", "B"}, bufferIDs(d))
}

func TestAddRowsPrependKeepsRelativeOrder(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(ev("A", "a"), false))
	require.NoError(t, d.AddRows([]Record{ev("B", "b"), ev("C", "c")}, true))

	assert.Equal(t, []string{"B", "C", "A"}, bufferIDs(d))
}

func TestAddRowValidatesAgainstSchema(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})

	err := d.AddRow(Record{"id": "x", "venue": "Apex"}, false)
	require.ErrorIs(t, err, ErrInvalidColumn)

	err = d.AddRow(Record{"id": "x", "fights": "f1"}, false)
	require.ErrorIs(t, err, ErrInvalidInput)

	err = d.AddRow(Record{"id": 7}, false)
	require.ErrorIs(t, err, ErrInvalidInput)

	err = d.AddRow(nil, false)
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Zero(t, d.Buffered())
}

func TestAddRowFillsMissingFields(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(Record{"id": "x"}, false))
	require.NoError(t, d.Flush())

	v, err := d.Cell("x", "fights")
	require.NoError(t, err)
	assert.Equal(t, KindList, v.Kind)
	assert.Empty(t, v.List)
}

func TestFlushKeepsLastOccurrence(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{Update: true})
	require.NoError(t, d.AddRows([]Record{ev("a", "old a"), ev("b", "b")}, false))
	require.NoError(t, d.Flush())

	require.NoError(t, d.AddRows([]Record{ev("c", "c"), ev("a", "new a", "f9")}, false))
	require.NoError(t, d.Flush())

	assert.Equal(t, []string{"b", "c", "a"}, dataIDs(d))
	title, err := d.Cell("a", "title")
	require.NoError(t, err)
	assert.Equal(t, "new a", title.Str)
	fights, err := d.Cell("a", "fights")
	require.NoError(t, err)
	assert.Equal(t, []string{"f9"}, fights.List)
}

func TestFlushIsIdempotent(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRows([]Record{ev("a", "a"), ev("a", "a2")}, false))
	require.NoError(t, d.Flush())
	first := records(t, d)

	require.NoError(t, d.Flush())
	assert.Equal(t, first, records(t, d))
	assert.Equal(t, 1, d.Len())
	assert.Zero(t, d.Buffered())
}

func TestEntityExistsKeepsEarlierRows(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(ev("a", "a"), false))
	require.NoError(t, d.Flush())

	err := d.AddRows([]Record{ev("b", "b"), ev("a", "again"), ev("c", "c")}, false)
	require.ErrorIs(t, err, ErrEntityExists)

	var exists *EntityExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "a", exists.ID)
	assert.Equal(t, "events", exists.Dataset)
	assert.Equal(t, []string{"b"}, bufferIDs(d))
}

func TestUpdateModeOverridesExistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed := openTest(t, dir, Options{})
	require.NoError(t, seed.AddRow(ev("a", "a"), false))
	require.NoError(t, seed.Save(true))

	d := openTest(t, dir, Options{Update: true})
	exists, err := d.DoesIDExist("a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, d.AddRow(ev("a", "refreshed"), false))
	require.NoError(t, d.Flush())
	title, err := d.Cell("a", "title")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", title.Str)

	strict := openTest(t, dir, Options{})
	exists, err = strict.DoesIDExist("a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDisabledDatasetRejectsEverything(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := openTest(t, dir, Options{Disabled: true})

	require.ErrorIs(t, d.AddRow(Record{"id": "x"}, false), ErrDisabledDataset)
	assert.Zero(t, d.Buffered())

	_, err := d.DoesIDExist("x")
	require.ErrorIs(t, err, ErrDisabledDataset)
	require.ErrorIs(t, d.Flush(), ErrDisabledDataset)
	require.ErrorIs(t, d.Save(true), ErrDisabledDataset)
	require.ErrorIs(t, d.DropColumns("title"), ErrDisabledDataset)
	_, err = d.Select("id")
	require.ErrorIs(t, err, ErrDisabledDataset)
	_, err = d.Records()
	require.ErrorIs(t, err, ErrDisabledDataset)
	_, err = d.Column("id")
	require.ErrorIs(t, err, ErrDisabledDataset)
	assert.Zero(t, d.Len())
	assert.Nil(t, d.Columns())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateRow(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(ev("a", "a"), false))

	// Buffered rows are not visible to UpdateRow.
	require.ErrorIs(t, d.UpdateRow("a", Record{"title": "x"}), ErrUnknownID)
	require.NoError(t, d.Flush())

	require.ErrorIs(t, d.UpdateRow("a", Record{"venue": "x"}), ErrInvalidColumn)
	require.ErrorIs(t, d.UpdateRow("a", Record{"id": "b"}), ErrInvalidInput)
	require.NoError(t, d.UpdateRow("a", Record{"title": "UFC 300", "fights": []string{"f1", "f2"}}))

	recs, err := d.Select("title", "fights")
	require.NoError(t, err)
	assert.Equal(t, []Record{{"title": "UFC 300", "fights": []string{"f1", "f2"}}}, recs)
}

func TestSchemaWithoutID(t *testing.T) {
	t.Parallel()

	s, err := NewSchema(String("name"))
	require.NoError(t, err)
	d, err := Open("notes", s, Options{Dir: t.TempDir(), Session: "s"}, nil)
	require.NoError(t, err)

	_, err = d.DoesIDExist("x")
	require.ErrorIs(t, err, ErrMissingColumn)
	require.ErrorIs(t, d.UpdateRow("x", Record{"name": "y"}), ErrMissingColumn)

	require.NoError(t, d.AddRows([]Record{{"name": "n"}, {"name": "n"}}, false))
	require.NoError(t, d.Flush())
	assert.Equal(t, 2, d.Len())
}

func TestColumnAndCell(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRows([]Record{ev("a", "A"), ev("b", "B")}, false))
	require.NoError(t, d.Flush())

	col, err := d.Column("title")
	require.NoError(t, err)
	require.Len(t, col, 2)
	assert.Equal(t, "A", col[0].Str)
	assert.Equal(t, "B", col[1].Str)

	_, err = d.Column("venue")
	require.ErrorIs(t, err, ErrMissingColumn)
	_, err = d.Cell("zzz", "title")
	require.ErrorIs(t, err, ErrUnknownID)
	_, err = d.Cell("a", "venue")
	require.ErrorIs(t, err, ErrMissingColumn)
}

func TestDropColumns(t *testing.T) {
	t.Parallel()

	d := openTest(t, t.TempDir(), Options{})
	require.NoError(t, d.AddRow(ev("a", "A", "f1"), false))
	require.NoError(t, d.Flush())
	require.NoError(t, d.AddRow(ev("b", "B"), false))

	require.ErrorIs(t, d.DropColumns("fights", "venue"), ErrMissingColumn)
	assert.Equal(t, []string{"id", "title", "fights"}, d.Columns())

	require.NoError(t, d.DropColumns("fights"))
	assert.Equal(t, []string{"id", "title"}, d.Columns())
	require.NoError(t, d.Flush())
	assert.Equal(t, []Record{{"id": "a", "title": "A"}, {"id": "b", "title": "B"}}, records(t, d))

	require.ErrorIs(t, d.AddRow(ev("c", "C"), false), ErrInvalidColumn)
}

func TestSaveTwoPhase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := openTest(t, dir, Options{Session: "run42"})
	require.NoError(t, d.AddRow(ev("a", "A"), false))

	require.NoError(t, d.Save(false))
	assert.Equal(t, filepath.Join(dir, "events_progress_run42.csv"), d.ProgressPath())
	assert.FileExists(t, d.ProgressPath())
	assert.NoFileExists(t, d.Path())
	assert.Zero(t, d.Buffered())

	require.NoError(t, d.Save(true))
	assert.FileExists(t, d.Path())
	assert.NoFileExists(t, d.ProgressPath())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging files must not linger")
	assert.Equal(t, "events.csv", entries[0].Name())
}

func TestProgressFilesDoNotCollide(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := openTest(t, dir, Options{Session: "one"})
	b := openTest(t, dir, Options{Session: "two"})
	assert.NotEqual(t, a.ProgressPath(), b.ProgressPath())
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := openTest(t, dir, Options{})
	require.NoError(t, d.AddRows([]Record{
		ev("a", `UFC 300: "Pereira, Hill"`, "f1", "f,2"),
		ev("b", "multi\nline"),
	}, false))
	require.NoError(t, d.Save(true))

	reloaded := openTest(t, dir, Options{})
	assert.Equal(t, d.Columns(), reloaded.Columns())
	assert.Equal(t, records(t, d), records(t, reloaded))
}

func TestOpenTracksColumnSuperset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "title,id,extra\nUFC 1,a,x\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte(content), 0o600))

	d := openTest(t, dir, Options{})
	assert.Equal(t, []string{"title", "id", "extra", "fights"}, d.Columns())

	recs := records(t, d)
	require.Len(t, recs, 1)
	assert.Equal(t, Record{"title": "UFC 1", "id": "a", "extra": "x", "fights": []string{}}, recs[0])
}

func TestOpenFailsOnMalformedListCell(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "id,title,fights\na,A,\"['f1', 'f2']\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte(content), 0o600))

	_, err := Open("events", eventSchema(t), Options{Dir: dir, Session: "s"}, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "fights")
}

func TestOpenFailsOnDuplicateHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte("id,id\n"), 0o600))

	_, err := Open("events", eventSchema(t), Options{Dir: dir, Session: "s"}, nil)
	require.ErrorIs(t, err, ErrInvalidColumn)
}

func TestOpenEmptyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), nil, 0o600))

	d := openTest(t, dir, Options{})
	assert.Equal(t, []string{"id", "title", "fights"}, d.Columns())
	assert.Zero(t, d.Len())
}

func TestOpenDedupsLoadedRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "id,title,fights\na,first,[]\nb,b,[]\na,second,[]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "events.csv"), []byte(content), 0o600))

	d := openTest(t, dir, Options{})
	assert.Equal(t, []string{"b", "a"}, dataIDs(d))
	title, err := d.Cell("a", "title")
	require.NoError(t, err)
	assert.Equal(t, "second", title.Str)
}

func TestWriteFileAtomicCleansUpOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))

	boom := errors.New("boom")
	err := writeFileAtomic(target, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
