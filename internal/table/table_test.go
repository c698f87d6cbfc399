package table

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/writebuf/internal/coltype"
	"github.com/malbeclabs/writebuf/internal/dictionary"
	"github.com/malbeclabs/writebuf/internal/plan"
)

func TestTable_AppendRowBackfillsNullsForNewAndMissingColumns(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	regionID := dict.Intern("region")
	userID := dict.Intern("user")
	coreID := dict.Intern("core")

	tbl := New(dict.Intern("cpu"))

	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID:   I64Value(10),
		regionID: TagValue(dict.Intern("west")),
		userID:   F64Value(23.2),
	}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(11),
		userID: F64Value(10.0),
	}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(11),
		coreID: TagValue(dict.Intern("one")),
		userID: F64Value(10.0),
	}))

	require.Equal(t, 3, tbl.RowCount())

	regionCol, ok := tbl.Column(regionID)
	require.True(t, ok)
	require.Equal(t, 3, regionCol.Len())
	require.True(t, regionCol.IsValid(0))
	require.False(t, regionCol.IsValid(1))
	require.False(t, regionCol.IsValid(2))

	coreCol, ok := tbl.Column(coreID)
	require.True(t, ok)
	require.Equal(t, 3, coreCol.Len())
	require.False(t, coreCol.IsValid(0))
	require.False(t, coreCol.IsValid(1))
	require.True(t, coreCol.IsValid(2))
}

func TestTable_AppendRowRejectsSchemaMismatchWithoutMutating(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	userID := dict.Intern("user")

	tbl := New(dict.Intern("cpu"))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(10),
		userID: F64Value(1.0),
	}))

	err := tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(11),
		userID: StringValue("oops"),
	})
	require.Error(t, err)
	require.Equal(t, 1, tbl.RowCount())

	userCol, _ := tbl.Column(userID)
	require.Equal(t, 1, userCol.Len())
}

func TestTable_MatchesIDPredicate(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	cpuID := dict.Intern("cpu")
	diskID := dict.Intern("disk")
	tbl := New(cpuID)

	require.True(t, tbl.MatchesIDPredicate(nil))
	require.True(t, tbl.MatchesIDPredicate(&cpuID))
	require.False(t, tbl.MatchesIDPredicate(&diskID))
}

func TestTable_MatchesTimestampPredicate(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	tbl := New(dict.Intern("cpu"))

	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(100)}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(150)}))

	require.True(t, tbl.MatchesTimestampPredicate(timeID, nil))
	require.True(t, tbl.MatchesTimestampPredicate(timeID, &plan.TimestampRange{Start: 0, End: 201}))
	require.True(t, tbl.MatchesTimestampPredicate(timeID, &plan.TimestampRange{Start: 50, End: 101}))
	require.False(t, tbl.MatchesTimestampPredicate(timeID, &plan.TimestampRange{Start: 250, End: 350}))
}

func TestTable_ToArrowProjectsRequestedColumnsInOrder(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	regionID := dict.Intern("region")
	coreID := dict.Intern("core")
	tbl := New(dict.Intern("cpu"))

	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID:   I64Value(10),
		regionID: TagValue(dict.Intern("west")),
	}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(11),
	}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID: I64Value(11),
		coreID: TagValue(dict.Intern("one")),
	}))

	rec, err := tbl.ToArrow(dict, []uint32{regionID, coreID})
	require.NoError(t, err)
	defer rec.Release()

	require.EqualValues(t, 3, rec.NumRows())
	require.Equal(t, int64(2), rec.NumCols())
	require.Equal(t, "region", rec.ColumnName(0))
	require.Equal(t, "core", rec.ColumnName(1))
}

func TestTable_ToArrowFailsOnMissingColumn(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	tbl := New(dict.Intern("cpu"))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(1)}))

	_, err := tbl.ToArrow(dict, []uint32{999})
	require.Error(t, err)
}

func TestTable_TagColumnNamesPlanExcludesEmptyWindowColumns(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	regionID := dict.Intern("region")
	tbl := New(dict.Intern("cpu"))

	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{
		timeID:   I64Value(10),
		regionID: TagValue(dict.Intern("west")),
	}))

	p := tbl.TagColumnNamesPlan(dict, timeID, &plan.TimestampRange{Start: 0, End: 5}, nil)
	require.Empty(t, p.Execute())

	p2 := tbl.TagColumnNamesPlan(dict, timeID, &plan.TimestampRange{Start: 0, End: 20}, nil)
	require.Equal(t, []string{"region"}, p2.Execute())
}

func TestTable_TagValuesPlanDeduplicatesAndFiltersByRange(t *testing.T) {
	t.Parallel()

	dict := dictionary.New()
	timeID := dict.Intern("time")
	stateID := dict.Intern("state")
	tbl := New(dict.Intern("o2"))

	ca := dict.Intern("CA")
	ny := dict.Intern("NY")

	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(1), stateID: TagValue(ca)}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(400), stateID: TagValue(ny)}))
	require.NoError(t, tbl.AppendRow(dict, map[uint32]Value{timeID: I64Value(2), stateID: TagValue(ca)}))

	require.Equal(t, coltype.Tag, func() coltype.Kind { c, _ := tbl.Column(stateID); return c.Kind() }())

	narrow := tbl.TagValuesPlan(dict, stateID, timeID, &plan.TimestampRange{Start: 1, End: 300}, nil)
	require.Equal(t, []string{"CA"}, narrow.Execute())

	wide := tbl.TagValuesPlan(dict, stateID, timeID, &plan.TimestampRange{Start: 1, End: 550}, nil)
	require.ElementsMatch(t, []string{"CA", "NY"}, wide.Execute())
}
