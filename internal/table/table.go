// Package table implements the per-table column store: a set of
// same-length columns identified by dictionary symbol, with
// predicate matching and Arrow projection. Table never imports
// internal/partition (partition imports table, to hold its table map), so
// every method that needs name resolution takes the narrower
// *dictionary.Dictionary the caller already holds.
package table

import (
	"fmt"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/malbeclabs/writebuf/internal/coltype"
	"github.com/malbeclabs/writebuf/internal/column"
	"github.com/malbeclabs/writebuf/internal/dictionary"
	"github.com/malbeclabs/writebuf/internal/plan"
	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// Value is a single typed, possibly-null field value to apply to one
// column of one row. The zero value is not meaningful; use the
// constructors below.
type Value struct {
	Kind coltype.Kind
	Tag  uint32
	I64  int64
	F64  float64
	Bool bool
	Str  string
}

func TagValue(id uint32) Value   { return Value{Kind: coltype.Tag, Tag: id} }
func I64Value(v int64) Value     { return Value{Kind: coltype.I64, I64: v} }
func F64Value(v float64) Value   { return Value{Kind: coltype.F64, F64: v} }
func BoolValue(v bool) Value     { return Value{Kind: coltype.Bool, Bool: v} }
func StringValue(v string) Value { return Value{Kind: coltype.String, Str: v} }

// Table holds an ordered list of columns and the dictionary-symbol index
// into them. columnIDs preserves insertion order, which doubles as the
// traversal order required of column_id_to_index iteration.
type Table struct {
	nameSymbol      uint32
	columns         []*column.Column
	columnIDs       []uint32
	columnIDToIndex map[uint32]int
	rowCount        int
}

// New returns an empty table identified by nameSymbol (the table name's id
// in the owning partition's dictionary).
func New(nameSymbol uint32) *Table {
	return &Table{nameSymbol: nameSymbol, columnIDToIndex: make(map[uint32]int)}
}

// NameSymbol returns this table's own name id.
func (t *Table) NameSymbol() uint32 { return t.nameSymbol }

// RowCount returns the table's row count, equal to every column's length.
func (t *Table) RowCount() int { return t.rowCount }

// ColumnIDs returns the table's columns in traversal order.
func (t *Table) ColumnIDs() []uint32 {
	out := make([]uint32, len(t.columnIDs))
	copy(out, t.columnIDs)
	return out
}

// Column returns the column stored at id, if any.
func (t *Table) Column(id uint32) (*column.Column, bool) {
	idx, ok := t.columnIDToIndex[id]
	if !ok {
		return nil, false
	}
	return t.columns[idx], true
}

// MatchesIDPredicate reports whether this table's name satisfies an
// optional name-symbol predicate. A nil predicate matches unconditionally.
func (t *Table) MatchesIDPredicate(predicate *uint32) bool {
	return predicate == nil || *predicate == t.nameSymbol
}

// MatchesTimestampPredicate reports whether any row's time column value
// falls in the given range. timeColumnID is the dictionary id of "time"
// within the owning partition. A nil range matches unconditionally.
func (t *Table) MatchesTimestampPredicate(timeColumnID uint32, r *plan.TimestampRange) bool {
	if r == nil {
		return true
	}
	col, ok := t.Column(timeColumnID)
	if !ok {
		return false
	}
	match := false
	col.IterI64(func(_ int, v int64) {
		if !match && r.Contains(v) {
			match = true
		}
	})
	return match
}

// ColumnMatchesTimestampPredicate reports whether the named column has at
// least one non-null value whose row falls within the given range (or any
// non-null value at all, if the range is nil).
func (t *Table) ColumnMatchesTimestampPredicate(columnID, timeColumnID uint32, r *plan.TimestampRange) bool {
	col, ok := t.Column(columnID)
	if !ok {
		return false
	}
	if r == nil {
		for i := 0; i < col.Len(); i++ {
			if col.IsValid(i) {
				return true
			}
		}
		return false
	}
	timeCol, ok := t.Column(timeColumnID)
	if !ok {
		return false
	}
	for i := 0; i < col.Len(); i++ {
		if col.IsValid(i) && timeCol.IsValid(i) && r.Contains(timeCol.I64At(i)) {
			return true
		}
	}
	return false
}

func pushValue(c *column.Column, v Value) {
	switch v.Kind {
	case coltype.Tag:
		c.PushTag(v.Tag)
	case coltype.I64:
		c.PushI64(v.I64)
	case coltype.F64:
		c.PushF64(v.F64)
	case coltype.Bool:
		c.PushBool(v.Bool)
	case coltype.String:
		c.PushString(v.Str)
	}
}

func columnName(dict *dictionary.Dictionary, id uint32) string {
	if name, ok := dict.LookupID(id); ok {
		return name
	}
	return fmt.Sprintf("symbol#%d", id)
}

// AppendRow applies one row to the table: values keyed by column-name
// symbol. Columns absent from values get a null appended; columns present
// in values but new to the table are created, back-filled with rowCount
// nulls, and fixed to the variant of their first value. Validates every
// value's variant against its column before mutating anything, so a
// type-mismatch error leaves the table untouched. Values are applied in
// ascending symbol order, not map order, so that replaying the same rows
// always creates columns in the same positions.
func (t *Table) AppendRow(dict *dictionary.Dictionary, values map[uint32]Value) error {
	ids := make([]uint32, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if idx, ok := t.columnIDToIndex[id]; ok {
			if existing := t.columns[idx].Kind(); existing != values[id].Kind {
				return &wberrors.SchemaMismatchError{
					Column:   columnName(dict, id),
					Expected: existing,
					Found:    values[id].Kind,
				}
			}
		}
	}

	for _, id := range ids {
		v := values[id]
		idx, ok := t.columnIDToIndex[id]
		if !ok {
			col := column.New(v.Kind)
			for i := 0; i < t.rowCount; i++ {
				col.PushNull()
			}
			idx = len(t.columns)
			t.columns = append(t.columns, col)
			t.columnIDs = append(t.columnIDs, id)
			t.columnIDToIndex[id] = idx
		}
		pushValue(t.columns[idx], v)
	}

	for i, id := range t.columnIDs {
		if _, ok := values[id]; !ok {
			t.columns[i].PushNull()
		}
	}

	t.rowCount++
	return nil
}

var arrowPool = memory.NewGoAllocator()

func arrowTypeFor(k coltype.Kind) arrow.DataType {
	switch k {
	case coltype.Tag, coltype.String:
		return arrow.BinaryTypes.String
	case coltype.I64:
		return arrow.PrimitiveTypes.Int64
	case coltype.F64:
		return arrow.PrimitiveTypes.Float64
	case coltype.Bool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.Null
	}
}

func buildArray(dict *dictionary.Dictionary, col *column.Column) arrow.Array {
	switch col.Kind() {
	case coltype.Tag:
		b := array.NewStringBuilder(arrowPool)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			name, _ := dict.LookupID(col.TagID(i))
			b.Append(name)
		}
		return b.NewStringArray()
	case coltype.I64:
		b := array.NewInt64Builder(arrowPool)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.I64At(i))
		}
		return b.NewInt64Array()
	case coltype.F64:
		b := array.NewFloat64Builder(arrowPool)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.F64At(i))
		}
		return b.NewFloat64Array()
	case coltype.Bool:
		b := array.NewBooleanBuilder(arrowPool)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.BoolAt(i))
		}
		return b.NewBooleanArray()
	case coltype.String:
		b := array.NewStringBuilder(arrowPool)
		defer b.Release()
		for i := 0; i < col.Len(); i++ {
			if !col.IsValid(i) {
				b.AppendNull()
				continue
			}
			b.Append(col.StringAt(i))
		}
		return b.NewStringArray()
	default:
		return nil
	}
}

// ToArrow projects the requested columns (by dictionary id, in the given
// order) into a single arrow.Record. An empty requested list means "all
// columns, in column-id order".
func (t *Table) ToArrow(dict *dictionary.Dictionary, requested []uint32) (arrow.Record, error) {
	ids := requested
	if len(ids) == 0 {
		ids = t.columnIDs
	}

	fields := make([]arrow.Field, len(ids))
	arrs := make([]arrow.Array, len(ids))
	for i, id := range ids {
		col, ok := t.Column(id)
		if !ok {
			return nil, &wberrors.MissingColumnError{Name: columnName(dict, id)}
		}
		fields[i] = arrow.Field{Name: columnName(dict, id), Type: arrowTypeFor(col.Kind()), Nullable: true}
		arrs[i] = buildArray(dict, col)
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrs, int64(t.rowCount))
	for _, a := range arrs {
		a.Release()
	}
	return rec, nil
}

// rowEligible builds a predicate over row indices combining the optional
// timestamp range and the optional tag-equality predicate, resolved
// against this table's own columns and dict. A predicate referencing a
// column absent from this table (or not a Tag column) excludes every row.
func (t *Table) rowEligible(dict *dictionary.Dictionary, timeColumnID uint32, tr *plan.TimestampRange, pred *plan.Predicate) func(row int) bool {
	timeCol, hasTime := t.Column(timeColumnID)

	var predCol *column.Column
	var predValueID uint32
	predSatisfiable := true
	if pred != nil {
		col, ok := t.Column(mustLookup(dict, pred.Column))
		valueID, valueOK := dict.LookupValue(pred.Value)
		if !ok || col.Kind() != coltype.Tag || !valueOK {
			predSatisfiable = false
		} else {
			predCol, predValueID = col, valueID
		}
	}

	return func(row int) bool {
		if tr != nil {
			if !hasTime || !timeCol.IsValid(row) || !tr.Contains(timeCol.I64At(row)) {
				return false
			}
		}
		if pred != nil {
			if !predSatisfiable || !predCol.IsValid(row) || predCol.TagID(row) != predValueID {
				return false
			}
		}
		return true
	}
}

// mustLookup resolves name to a dictionary id, returning an id that can
// never be a real column (math.MaxUint32) when absent, so callers that
// feed it into Column() reliably get ok == false.
func mustLookup(dict *dictionary.Dictionary, name string) uint32 {
	if id, ok := dict.LookupValue(name); ok {
		return id
	}
	return ^uint32(0)
}

// TagColumnNamesPlan builds a logical plan that yields the distinct tag
// column names with at least one row satisfying tr and pred (either may
// be nil).
func (t *Table) TagColumnNamesPlan(dict *dictionary.Dictionary, timeColumnID uint32, tr *plan.TimestampRange, pred *plan.Predicate) plan.TagNamesPlan {
	return plan.TagNamesPlan{Execute: func() []string {
		eligible := t.rowEligible(dict, timeColumnID, tr, pred)
		var names []string
		for _, id := range t.columnIDs {
			col, _ := t.Column(id)
			if col.Kind() != coltype.Tag {
				continue
			}
			found := false
			for row := 0; row < col.Len() && !found; row++ {
				if col.IsValid(row) && eligible(row) {
					found = true
				}
			}
			if found {
				names = append(names, columnName(dict, id))
			}
		}
		return names
	}}
}

// TagValuesPlan builds a logical plan that yields the distinct values of
// the tag column identified by columnID, restricted to rows satisfying
// tr and pred (either may be nil).
func (t *Table) TagValuesPlan(dict *dictionary.Dictionary, columnID, timeColumnID uint32, tr *plan.TimestampRange, pred *plan.Predicate) plan.TagValuesPlan {
	return plan.TagValuesPlan{Execute: func() []string {
		col, ok := t.Column(columnID)
		if !ok || col.Kind() != coltype.Tag {
			return nil
		}
		eligible := t.rowEligible(dict, timeColumnID, tr, pred)

		seen := make(map[uint32]bool)
		var out []string
		col.IterTag(func(row int, id uint32) {
			if !eligible(row) {
				return
			}
			if seen[id] {
				return
			}
			seen[id] = true
			out = append(out, columnName(dict, id))
		})
		return out
	}}
}
