// Package partition implements the hour-bucketed bundle of tables
// sharing one dictionary. It owns the wire-level shape of a single
// write batch's per-partition entry (Entry/TableBatch/Row/FieldValue)
// so that internal/wal can decode directly into these types without
// partition needing to import wal (wal's reader constructs Partitions,
// so the dependency can only run one way).
package partition

import (
	"sort"
	"time"

	"github.com/malbeclabs/writebuf/internal/dictionary"
	"github.com/malbeclabs/writebuf/internal/plan"
	"github.com/malbeclabs/writebuf/internal/table"
	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// FieldKind identifies the variant carried by a FieldValue on the wire.
// It mirrors coltype.Kind plus the distinguished Time variant every row
// must carry exactly once.
type FieldKind int

const (
	FieldTag FieldKind = iota
	FieldI64
	FieldF64
	FieldBool
	FieldString
	FieldTime
)

// FieldValue is one named value within a Row, as laid out on the wire.
type FieldValue struct {
	Name string
	Kind FieldKind
	Str  string
	I64  int64
	F64  float64
	Bool bool
}

// Row is one measurement: a set of named field values, exactly one of
// which must be Kind == FieldTime.
type Row struct {
	Values []FieldValue
}

// TableBatch groups rows written to a single named table within one
// partition entry.
type TableBatch struct {
	Table string
	Rows  []Row
}

// Entry is one partition's share of a write batch: a partition key and
// the table batches to apply to it.
type Entry struct {
	PartitionKey string
	TableBatches []TableBatch
}

// KeyForTimestamp derives the hour-bucketed partition key for a
// nanosecond timestamp: one partition per UTC hour.
func KeyForTimestamp(tsNanos int64) string {
	return time.Unix(0, tsNanos).UTC().Format("2006-01-02T15")
}

// Partition bundles tables that share a dictionary and a partition key.
// Not safe for concurrent use; callers (writebuffer.DB) serialize access
// under their own writer lock.
type Partition struct {
	Key          string
	Dictionary   *dictionary.Dictionary
	timeColumnID uint32
	tables       map[uint32]*table.Table
}

// New returns an empty partition for key, with its dictionary's "time"
// symbol already interned.
func New(key string) *Partition {
	dict := dictionary.New()
	return &Partition{
		Key:          key,
		Dictionary:   dict,
		timeColumnID: dict.Intern("time"),
		tables:       make(map[uint32]*table.Table),
	}
}

// TimeColumnID returns the dictionary id of the reserved "time" column
// within this partition.
func (p *Partition) TimeColumnID() uint32 { return p.timeColumnID }

// ShouldWrite reports whether this partition owns key.
func (p *Partition) ShouldWrite(key string) bool { return p.Key == key }

// Table returns the table stored at the given name-symbol id, if any.
func (p *Partition) Table(nameID uint32) (*table.Table, bool) {
	t, ok := p.tables[nameID]
	return t, ok
}

// TablesInOrder returns this partition's tables sorted by name-symbol id
// ascending, which equals the order their names were first interned —
// a deterministic dictionary-id order for traversal.
func (p *Partition) TablesInOrder() []*table.Table {
	ids := make([]uint32, 0, len(p.tables))
	for id := range p.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*table.Table, len(ids))
	for i, id := range ids {
		out[i] = p.tables[id]
	}
	return out
}

// MakeTimestampPredicate resolves an optional timestamp range against
// this partition's time column, for callers that want to pair a range
// with the column id it applies to.
func (p *Partition) MakeTimestampPredicate(r *plan.TimestampRange) (timeColumnID uint32, predicate *plan.TimestampRange) {
	return p.timeColumnID, r
}

// WriteEntry applies one partition-scoped write-batch entry: for each
// table batch it interns the table name, creates the table if absent, and
// appends every row via Table.AppendRow. Rows are applied in order; a
// failure partway through leaves the tables already applied mutated
// (errors never roll back across rows) but never leaves a single row
// half-applied, since Table.AppendRow validates before mutating.
func (p *Partition) WriteEntry(entry Entry) error {
	for _, tb := range entry.TableBatches {
		tableID := p.Dictionary.Intern(tb.Table)
		tbl, ok := p.tables[tableID]
		if !ok {
			tbl = table.New(tableID)
			p.tables[tableID] = tbl
		}

		for _, row := range tb.Rows {
			values, err := p.rowValues(row)
			if err != nil {
				return err
			}
			if err := tbl.AppendRow(p.Dictionary, values); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Partition) rowValues(row Row) (map[uint32]table.Value, error) {
	values := make(map[uint32]table.Value, len(row.Values))
	timeSeen := false

	for _, fv := range row.Values {
		if fv.Kind == FieldTime {
			if timeSeen {
				return nil, wberrors.BadInput("row has more than one timestamp value")
			}
			timeSeen = true
			values[p.timeColumnID] = table.I64Value(fv.I64)
			continue
		}

		if fv.Name == "time" {
			return nil, &wberrors.SchemaMismatchError{Column: "time", Reason: "time reserved"}
		}

		nameID := p.Dictionary.Intern(fv.Name)
		switch fv.Kind {
		case FieldTag:
			values[nameID] = table.TagValue(p.Dictionary.Intern(fv.Str))
		case FieldI64:
			values[nameID] = table.I64Value(fv.I64)
		case FieldF64:
			values[nameID] = table.F64Value(fv.F64)
		case FieldBool:
			values[nameID] = table.BoolValue(fv.Bool)
		case FieldString:
			values[nameID] = table.StringValue(fv.Str)
		default:
			return nil, wberrors.Internalf("unrecognized field kind %d for column %q", fv.Kind, fv.Name)
		}
	}

	if !timeSeen {
		return nil, wberrors.BadInput("row is missing a required timestamp value")
	}
	return values, nil
}
