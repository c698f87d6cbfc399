package writebuffer

import (
	"github.com/malbeclabs/writebuf/internal/coltype"
	"github.com/malbeclabs/writebuf/internal/partition"
	"github.com/malbeclabs/writebuf/internal/plan"
	"github.com/malbeclabs/writebuf/internal/table"
)

// visitor is a capability set for a depth-first traversal of
// partition -> table -> column with five hooks, each of which may fail
// and abort the traversal. baseVisitor supplies no-op defaults so a
// concrete visitor only overrides the hooks it needs — a capability
// interface with default hooks via embedding. visitTables calls every
// hook through the interface.
type visitor interface {
	preVisitPartition(p *partition.Partition) error
	preVisitTable(p *partition.Partition, t *table.Table) error
	visitColumn(p *partition.Partition, t *table.Table, columnID uint32) error
	postVisitTable(p *partition.Partition, t *table.Table) error
	postVisitPartition(p *partition.Partition) error
}

type baseVisitor struct{}

func (baseVisitor) preVisitPartition(*partition.Partition) error                 { return nil }
func (baseVisitor) preVisitTable(*partition.Partition, *table.Table) error       { return nil }
func (baseVisitor) visitColumn(*partition.Partition, *table.Table, uint32) error { return nil }
func (baseVisitor) postVisitTable(*partition.Partition, *table.Table) error      { return nil }
func (baseVisitor) postVisitPartition(*partition.Partition) error                { return nil }

// visitTables runs the DFS traversal: partitions in insertion order;
// within each partition, tables in dictionary-id order
// (partition.TablesInOrder); within each table, columns in
// column_id_to_index iteration order (table.ColumnIDs). tableName, if
// non-nil, is resolved against each partition's own dictionary (table
// symbols are not shared across partitions) before filtering; a
// partition whose dictionary lacks tableName contributes no tables.
// timeRange, if non-nil, is resolved to that partition's time-column id
// and applied via Table.MatchesTimestampPredicate. Any hook failure
// aborts the traversal immediately and is returned to the caller.
func (db *DB) visitTables(tableName *string, timeRange *plan.TimestampRange, v visitor) error {
	for _, p := range db.partitions {
		if err := v.preVisitPartition(p); err != nil {
			return err
		}

		var tableID *uint32
		skipPartition := false
		if tableName != nil {
			id, ok := p.Dictionary.LookupValue(*tableName)
			if !ok {
				skipPartition = true
			} else {
				tableID = &id
			}
		}

		if !skipPartition {
			timeColumnID, tr := p.MakeTimestampPredicate(timeRange)
			for _, t := range p.TablesInOrder() {
				if !t.MatchesIDPredicate(tableID) {
					continue
				}
				if !t.MatchesTimestampPredicate(timeColumnID, tr) {
					continue
				}

				if err := v.preVisitTable(p, t); err != nil {
					return err
				}
				for _, colID := range t.ColumnIDs() {
					if err := v.visitColumn(p, t, colID); err != nil {
						return err
					}
				}
				if err := v.postVisitTable(p, t); err != nil {
					return err
				}
			}
		}

		if err := v.postVisitPartition(p); err != nil {
			return err
		}
	}
	return nil
}

// tableNameVisitor collects table names directly at pre_visit_table —
// table_names only needs a table to exist within the window, not any
// particular column, so it does not need the column-scanning machinery
// the other four concrete visitors share.
type tableNameVisitor struct {
	baseVisitor
	result *plan.StringSet
}

func (v *tableNameVisitor) preVisitTable(p *partition.Partition, t *table.Table) error {
	if name, ok := p.Dictionary.LookupID(t.NameSymbol()); ok {
		v.result.Add(name)
	}
	return nil
}

// nameVisitor collects distinct tag-column names across tables whose
// window is non-empty, using column_matches_timestamp_predicate to
// exclude tag columns with no non-null values in range. scratch is
// cleared per partition and materialized to strings at
// post_visit_partition.
type nameVisitor struct {
	baseVisitor
	result    *plan.StringSet
	timeRange *plan.TimestampRange
	timeCol   uint32
	scratch   map[uint32]struct{}
}

func newNameVisitor(timeRange *plan.TimestampRange) *nameVisitor {
	return &nameVisitor{result: plan.NewStringSet(), timeRange: timeRange}
}

func (v *nameVisitor) preVisitPartition(p *partition.Partition) error {
	v.scratch = make(map[uint32]struct{})
	v.timeCol = p.TimeColumnID()
	return nil
}

func (v *nameVisitor) visitColumn(p *partition.Partition, t *table.Table, columnID uint32) error {
	col, ok := t.Column(columnID)
	if !ok || col.Kind() != coltype.Tag {
		return nil
	}
	if t.ColumnMatchesTimestampPredicate(columnID, v.timeCol, v.timeRange) {
		v.scratch[columnID] = struct{}{}
	}
	return nil
}

func (v *nameVisitor) postVisitPartition(p *partition.Partition) error {
	for id := range v.scratch {
		if name, ok := p.Dictionary.LookupID(id); ok {
			v.result.Add(name)
		}
	}
	return nil
}

// namePredVisitor produces, at pre_visit_table, one logical plan per
// table via Table.TagColumnNamesPlan.
type namePredVisitor struct {
	baseVisitor
	pred    *plan.Predicate
	plans   []plan.TagNamesPlan
	timeRng *plan.TimestampRange
}

func (v *namePredVisitor) preVisitTable(p *partition.Partition, t *table.Table) error {
	v.plans = append(v.plans, t.TagColumnNamesPlan(p.Dictionary, p.TimeColumnID(), v.timeRng, v.pred))
	return nil
}

// valueVisitor resolves the target column name to a symbol per
// partition at pre_visit_partition; at visit_column, if the id matches,
// it iterates the column's (value, time) pairs filtered by the
// timestamp predicate and accumulates distinct value ids; materializes
// to strings at post_visit_partition.
type valueVisitor struct {
	baseVisitor
	columnName string
	timeRange  *plan.TimestampRange
	result     *plan.StringSet

	timeCol   uint32
	targetID  uint32
	hasTarget bool
	scratch   map[uint32]struct{}
}

func newValueVisitor(columnName string, timeRange *plan.TimestampRange) *valueVisitor {
	return &valueVisitor{columnName: columnName, result: plan.NewStringSet(), timeRange: timeRange}
}

func (v *valueVisitor) preVisitPartition(p *partition.Partition) error {
	v.timeCol = p.TimeColumnID()
	v.scratch = make(map[uint32]struct{})
	id, ok := p.Dictionary.LookupValue(v.columnName)
	v.targetID, v.hasTarget = id, ok
	return nil
}

func (v *valueVisitor) visitColumn(p *partition.Partition, t *table.Table, columnID uint32) error {
	if !v.hasTarget || columnID != v.targetID {
		return nil
	}
	col, ok := t.Column(columnID)
	if !ok || col.Kind() != coltype.Tag {
		return nil
	}
	timeCol, hasTime := t.Column(v.timeCol)

	col.IterTag(func(row int, valueID uint32) {
		if v.timeRange != nil {
			if !hasTime || !timeCol.IsValid(row) || !v.timeRange.Contains(timeCol.I64At(row)) {
				return
			}
		}
		v.scratch[valueID] = struct{}{}
	})
	return nil
}

func (v *valueVisitor) postVisitPartition(p *partition.Partition) error {
	for id := range v.scratch {
		if name, ok := p.Dictionary.LookupID(id); ok {
			v.result.Add(name)
		}
	}
	return nil
}

// valuePredVisitor produces, at pre_visit_table, one Table.TagValuesPlan
// per table that passed the timestamp predicate filter already applied
// by visitTables.
type valuePredVisitor struct {
	baseVisitor
	columnName string
	pred       *plan.Predicate
	timeRng    *plan.TimestampRange
	plans      []plan.TagValuesPlan
}

func (v *valuePredVisitor) preVisitTable(p *partition.Partition, t *table.Table) error {
	id, ok := p.Dictionary.LookupValue(v.columnName)
	if !ok {
		return nil
	}
	v.plans = append(v.plans, t.TagValuesPlan(p.Dictionary, id, p.TimeColumnID(), v.timeRng, v.pred))
	return nil
}
