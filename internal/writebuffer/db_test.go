package writebuffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/writebuf/internal/lineproto"
	"github.com/malbeclabs/writebuf/internal/plan"
	"github.com/malbeclabs/writebuf/internal/wberrors"
	"github.com/malbeclabs/writebuf/internal/wbtesting"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Name: "test", Dir: wbtesting.TempWALDir(t), Logger: wbtesting.NewLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

// linesFromText parses line-protocol text via internal/lineproto and
// adapts it into writebuffer.Line, the shape WriteLines accepts.
func linesFromText(t *testing.T, text string) []Line {
	t.Helper()
	parsed, err := lineproto.ParseLines([]byte(text))
	require.NoError(t, err)

	out := make([]Line, len(parsed))
	for i, l := range parsed {
		line := Line{Measurement: l.Measurement, Timestamp: l.Timestamp}
		for _, tg := range l.Tags {
			line.Tags = append(line.Tags, Field{Name: tg.Key, Kind: FieldTag, Str: tg.Str})
		}
		for _, f := range l.Fields {
			switch f.Kind {
			case lineproto.KindI64:
				line.Fields = append(line.Fields, Field{Name: f.Key, Kind: FieldI64, I64: f.I64})
			case lineproto.KindF64:
				line.Fields = append(line.Fields, Field{Name: f.Key, Kind: FieldF64, F64: f.F64})
			case lineproto.KindBool:
				line.Fields = append(line.Fields, Field{Name: f.Key, Kind: FieldBool, Bool: f.Bool})
			case lineproto.KindString:
				line.Fields = append(line.Fields, Field{Name: f.Key, Kind: FieldString, Str: f.Str})
			}
		}
		out[i] = line
	}
	return out
}

func write(t *testing.T, db *DB, text string) {
	t.Helper()
	require.NoError(t, db.WriteLines(t.Context(), linesFromText(t, text)))
}

// Two tables, no predicate.
func TestDB_TableNames_TwoTablesNoPredicate(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=23.2 10\ndisk,region=east bytes=99i 11")

	names, err := db.TableNames(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"cpu", "disk"}, names)
}

// Timestamp filtering of table names.
func TestDB_TableNames_TimestampFiltering(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 100")
	write(t, db, "cpu,region=west user=2.0 150")
	write(t, db, "disk,region=east bytes=1i 200")

	cases := []struct {
		start, end int64
		want       []string
	}{
		{0, 201, []string{"cpu", "disk"}},
		{0, 200, []string{"cpu"}},
		{50, 101, []string{"cpu"}},
		{250, 350, []string{}},
	}
	for _, c := range cases {
		got, err := db.TableNames(&plan.TimestampRange{Start: c.start, End: c.end})
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

// Null back-fill on new columns.
func TestDB_TableToArrow_NullBackfillOnNewColumns(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=23.2 10")
	write(t, db, "cpu user=10.0 11")
	write(t, db, "cpu,core=one user=10.0 11")

	recs, err := db.TableToArrow(t.Context(), "cpu", []string{"region", "core"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	require.EqualValues(t, 3, rec.NumRows())
	require.Equal(t, "region", rec.ColumnName(0))
	require.Equal(t, "core", rec.ColumnName(1))

	region := rec.Column(0)
	core := rec.Column(1)
	require.True(t, region.IsValid(0))
	require.False(t, region.IsValid(1))
	require.False(t, region.IsValid(2))
	require.False(t, core.IsValid(0))
	require.False(t, core.IsValid(1))
	require.True(t, core.IsValid(2))
}

// Round-trip through the WAL across a restart.
func TestDB_RestartReplaysWALAndProducesEquivalentTables(t *testing.T) {
	t.Parallel()
	dir := wbtesting.TempWALDir(t)

	db1, err := Open(Config{Name: "test", Dir: dir, Logger: wbtesting.NewLogger()})
	require.NoError(t, err)

	write(t, db1, "cpu,region=west user=1.0 10")
	write(t, db1, "mem,host=a free=2i 11")
	write(t, db1, "disk,region=east bytes=3i 3700")
	write(t, db1, "cpu,region=east user=4.0 3701")

	before, err := db1.TableToArrow(t.Context(), "cpu", nil)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(Config{Name: "test", Dir: dir, Logger: wbtesting.NewLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db2.Close()) })

	names, err := db2.TableNames(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"cpu", "disk", "mem"}, names)

	after, err := db2.TableToArrow(t.Context(), "cpu", nil)
	require.NoError(t, err)
	require.Len(t, after, len(before))

	var total int64
	for i, r := range after {
		total += r.NumRows()
		require.Equal(t, before[i].NumRows(), r.NumRows())
		require.Equal(t, before[i].NumCols(), r.NumCols())
		for c := 0; c < int(r.NumCols()); c++ {
			require.Equal(t, before[i].ColumnName(c), r.ColumnName(c))
		}
	}
	require.EqualValues(t, 2, total)
}

func TestDB_TableToArrow_FailsOnUnknownTable(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 10")

	_, err := db.TableToArrow(t.Context(), "disk", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, wberrors.ErrMissingEntity)
}

// Tag values with predicates.
func TestDB_ColumnValues_TagValuesWithPredicate(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "o2,state=CA temp=1.0 100")
	write(t, db, "o2,state=MA temp=2.0 150")
	write(t, db, "h2o,state=MA level=1.0 200")
	write(t, db, "o2,state=NY temp=3.0 400")
	write(t, db, "h2o,state=CA level=2.0 450")

	narrow, err := db.ColumnValues("state", "o2", &plan.TimestampRange{Start: 1, End: 300}, &plan.Predicate{Column: "state", Value: "NY"})
	require.NoError(t, err)
	require.Empty(t, narrow)

	wide, err := db.ColumnValues("state", "o2", &plan.TimestampRange{Start: 1, End: 550}, &plan.Predicate{Column: "state", Value: "NY"})
	require.NoError(t, err)
	require.Equal(t, []string{"NY"}, wide)
}

func TestDB_ColumnValues_RejectsNonTagColumn(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 10")

	_, err := db.ColumnValues("user", "", nil, nil)
	require.Error(t, err)
}

// Partition key boundary.
func TestDB_WritesCreateDistinctHourPartitions(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	require.NoError(t, db.WriteLines(t.Context(), []Line{
		{Measurement: "cpu", Timestamp: 1600107710000000000, Fields: []Field{{Name: "user", Kind: FieldF64, F64: 1.0}}},
		{Measurement: "cpu", Timestamp: 1600136510000000000, Fields: []Field{{Name: "user", Kind: FieldF64, F64: 2.0}}},
	}))

	require.Len(t, db.partitions, 2)
	require.Equal(t, "2020-09-14T18", db.partitions[0].Key)
	require.Equal(t, "2020-09-15T02", db.partitions[1].Key)
}

func TestDB_TagColumnNames_WithAndWithoutPredicate(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west,core=one user=1.0 10")
	write(t, db, "cpu,region=east user=2.0 2000")

	names, err := db.TagColumnNames("", nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"core", "region"}, names)

	filtered, err := db.TagColumnNames("", &plan.TimestampRange{Start: 0, End: 100}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"core", "region"}, filtered)

	withPred, err := db.TagColumnNames("", nil, &plan.Predicate{Column: "region", Value: "west"})
	require.NoError(t, err)
	require.Equal(t, []string{"core", "region"}, withPred)
}

func TestDB_Query_RejectsNonSelectStatement(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	_, err := db.Query(t.Context(), "DELETE FROM cpu")
	require.Error(t, err)
}

func TestDB_Query_SelectStarMaterializesTable(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 10")
	write(t, db, "cpu,region=east user=2.0 20")

	recs, err := db.Query(t.Context(), "SELECT * FROM cpu")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.EqualValues(t, 2, recs[0].NumRows())
}

func TestDB_Query_SelectColumnListProjects(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 10")

	recs, err := db.Query(t.Context(), "SELECT region FROM cpu")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int64(1), recs[0].NumCols())
	require.Equal(t, "region", recs[0].ColumnName(0))
}

func TestDB_WriteLines_FailsOnReadOnlySnapshot(t *testing.T) {
	t.Parallel()
	dir := wbtesting.TempWALDir(t)

	db1, err := Open(Config{Name: "test", Dir: dir, Logger: wbtesting.NewLogger()})
	require.NoError(t, err)
	write(t, db1, "cpu,region=west user=1.0 10")
	require.NoError(t, db1.Close())

	ro, err := OpenReadOnly(Config{Name: "test", Dir: dir, Logger: wbtesting.NewLogger()})
	require.NoError(t, err)

	err = ro.WriteLines(t.Context(), linesFromText(t, "cpu,region=east user=2.0 20"))
	require.Error(t, err)

	names, err := ro.TableNames(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"cpu"}, names)
}

func TestDB_Stats_ReportsPartitionsRowsAndTables(t *testing.T) {
	t.Parallel()
	db := openDB(t)

	write(t, db, "cpu,region=west user=1.0 10")
	write(t, db, "disk,region=east bytes=1i 11")

	stats := db.Stats()
	require.Equal(t, 1, stats.Partitions)
	require.Equal(t, 2, stats.RowCount)
	require.Equal(t, []string{"cpu", "disk"}, stats.Tables)
}
