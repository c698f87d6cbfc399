// Package writebuffer implements the Database: the write path, the
// partition/table/column visitor traversal, and the metadata/SQL query
// entry points. It is the top-level assembly of every other internal
// package: dictionary, column, table, partition, wal, and plan.
package writebuffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/writebuf/internal/coltype"
	"github.com/malbeclabs/writebuf/internal/metrics"
	"github.com/malbeclabs/writebuf/internal/partition"
	"github.com/malbeclabs/writebuf/internal/plan"
	"github.com/malbeclabs/writebuf/internal/table"
	"github.com/malbeclabs/writebuf/internal/wal"
	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// Line is one parsed measurement, the shape write_lines accepts. Parsing
// line-protocol text is a separate concern; internal/lineproto.Line is a
// distinct type whose values callers convert field by field into Lines,
// and callers may also construct Lines directly.
type Line struct {
	Measurement string
	Tags        []Field
	Fields      []Field
	Timestamp   int64
}

// FieldKind mirrors partition.FieldKind for the public write API, so
// callers outside internal/partition don't need to import it directly.
type FieldKind = partition.FieldKind

const (
	FieldTag    = partition.FieldTag
	FieldI64    = partition.FieldI64
	FieldF64    = partition.FieldF64
	FieldBool   = partition.FieldBool
	FieldString = partition.FieldString
)

// Field is one named tag or field value within a Line.
type Field struct {
	Name string
	Kind FieldKind
	Str  string
	I64  int64
	F64  float64
	Bool bool
}

// Config configures a Database instance.
type Config struct {
	Name     string
	Dir      string
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Archiver *wal.Archiver // optional: mirrors each synced WAL frame off-box
}

func (cfg *Config) setDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
}

// DB owns an ordered collection of partitions, the WAL writer, and a
// single readers/writer lock guarding the partition list. partitionByKey
// indexes the same *partition.Partition values stored in partitions, for
// O(1) should_write resolution without a linear scan.
type DB struct {
	name  string
	dir   string
	log   *slog.Logger
	clock clockwork.Clock
	runID uuid.UUID
	wal   *wal.Writer // nil after crash-recovery into a read-only snapshot
	exec  plan.Executor

	mu             sync.RWMutex
	partitions     []*partition.Partition
	partitionByKey map[string]*partition.Partition
}

// Open creates or restores a Database rooted at cfg.Dir: it replays any
// existing WAL segment to rebuild in-memory state, then opens the WAL
// writer for new appends. A fresh directory yields an empty Database
// with no prior partitions.
func Open(cfg Config) (*DB, error) {
	db, err := restore(cfg)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(cfg.Dir, db.log)
	if err != nil {
		return nil, err
	}
	if cfg.Archiver != nil {
		w.SetArchiver(cfg.Archiver)
	}
	db.wal = w
	return db, nil
}

// OpenReadOnly restores a Database's in-memory state from an existing WAL
// directory without opening it for new writes. WriteLines on the result
// always fails with ErrWalIO: the WAL handle is optional, and absent
// after crash-recovery into a read-only snapshot.
func OpenReadOnly(cfg Config) (*DB, error) {
	return restore(cfg)
}

func restore(cfg Config) (*DB, error) {
	cfg.setDefaults()
	if cfg.Name == "" {
		return nil, wberrors.BadInput("database name is required")
	}
	if cfg.Dir == "" {
		return nil, wberrors.BadInput("database directory is required")
	}

	runID := uuid.New()
	log := cfg.Logger.With("db", cfg.Name, "run_id", runID.String())

	start := cfg.Clock.Now()
	partitions, stats, err := wal.RestorePartitionsFromWAL(cfg.Dir)
	if err != nil {
		return nil, err
	}
	elapsed := cfg.Clock.Now().Sub(start)

	log.Info("writebuffer: restored from wal",
		"rows", stats.RowCount, "tables", len(stats.Tables), "partitions", len(partitions), "elapsed", elapsed)
	metrics.RestoreRowsTotal.Add(float64(stats.RowCount))
	metrics.PartitionsGauge.Set(float64(len(partitions)))

	byKey := make(map[string]*partition.Partition, len(partitions))
	for _, p := range partitions {
		byKey[p.Key] = p
	}

	return &DB{
		name:           cfg.Name,
		dir:            cfg.Dir,
		log:            log,
		clock:          cfg.Clock,
		runID:          runID,
		partitions:     partitions,
		partitionByKey: byKey,
	}, nil
}

// Name returns the database's name.
func (db *DB) Name() string { return db.name }

// RunID returns the uuid generated for this open/restore cycle, used to
// correlate log lines across a crash/recovery boundary.
func (db *DB) RunID() uuid.UUID { return db.runID }

// Close stops the WAL writer, if any. Safe to call on a read-only
// snapshot.
func (db *DB) Close() error {
	if db.wal == nil {
		return nil
	}
	return db.wal.Close()
}

// Stats is a read-only snapshot of the database's in-memory state,
// exposed as a method in addition to the restore-complete log line.
type Stats struct {
	Partitions int
	RowCount   int
	Tables     []string
}

// Stats reports partition count, total row count across all partitions,
// and the distinct table names currently held in memory.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := plan.NewStringSet()
	rows := 0
	for _, p := range db.partitions {
		for _, t := range p.TablesInOrder() {
			rows += t.RowCount()
			if name, ok := p.Dictionary.LookupID(t.NameSymbol()); ok {
				names.Add(name)
			}
		}
	}
	return Stats{Partitions: len(db.partitions), RowCount: rows, Tables: names.Sorted()}
}

// WriteLines groups lines by partition key, encodes the group as one WAL
// batch, applies each per-partition entry to the matching in-memory
// partition (creating it if none matches), and appends the encoded batch
// to the WAL. The writer lock is held across both the in-memory
// application and the WAL append: a crash between the two phases is the
// only inconsistency window, and applying before the WAL append (rather
// than staging the encoded batch, appending, then applying) is the
// simpler of the two valid orderings.
func (db *DB) WriteLines(ctx context.Context, lines []Line) (err error) {
	start := db.clock.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.WriteLinesTotal.WithLabelValues(status).Inc()
		metrics.WriteLinesDuration.Observe(db.clock.Now().Sub(start).Seconds())
	}()

	if db.wal == nil {
		return wberrors.WalIO("write_lines", fmt.Errorf("database %q is a read-only snapshot", db.name))
	}
	if len(lines) == 0 {
		return nil
	}

	batch := encodeLinesToBatch(lines)

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, entry := range batch.Entries {
		p, ok := db.partitionByKey[entry.PartitionKey]
		if !ok {
			p = partition.New(entry.PartitionKey)
			db.partitionByKey[entry.PartitionKey] = p
			db.partitions = append(db.partitions, p)
		}
		if err := p.WriteEntry(entry); err != nil {
			return err
		}
	}

	walStart := db.clock.Now()
	walErr := db.wal.WriteAndSync(ctx, batch)
	walStatus := "ok"
	if walErr != nil {
		walStatus = "error"
	}
	metrics.WalAppendTotal.WithLabelValues(walStatus).Inc()
	metrics.WalAppendDuration.Observe(db.clock.Now().Sub(walStart).Seconds())
	if walErr != nil {
		return walErr
	}

	metrics.PartitionsGauge.Set(float64(len(db.partitions)))
	db.log.Debug("writebuffer: write_lines applied", "lines", len(lines), "entries", len(batch.Entries))
	return nil
}

// encodeLinesToBatch groups lines by partition key (preserving first-seen
// key order, and first-seen table order within a key) into the single
// wal.Batch that write_lines both applies and appends.
func encodeLinesToBatch(lines []Line) wal.Batch {
	type tableAcc struct {
		table string
		rows  []partition.Row
	}

	var entryOrder []string
	entryTables := make(map[string][]string)
	entryRows := make(map[string]map[string]*tableAcc)

	for _, line := range lines {
		key := partition.KeyForTimestamp(line.Timestamp)
		if _, ok := entryRows[key]; !ok {
			entryOrder = append(entryOrder, key)
			entryRows[key] = make(map[string]*tableAcc)
		}
		byTable := entryRows[key]

		acc, ok := byTable[line.Measurement]
		if !ok {
			acc = &tableAcc{table: line.Measurement}
			byTable[line.Measurement] = acc
			entryTables[key] = append(entryTables[key], line.Measurement)
		}
		acc.rows = append(acc.rows, lineToRow(line))
	}

	batch := wal.Batch{Entries: make([]partition.Entry, 0, len(entryOrder))}
	for _, key := range entryOrder {
		byTable := entryRows[key]
		tbs := make([]partition.TableBatch, 0, len(entryTables[key]))
		for _, tname := range entryTables[key] {
			tbs = append(tbs, partition.TableBatch{Table: tname, Rows: byTable[tname].rows})
		}
		batch.Entries = append(batch.Entries, partition.Entry{PartitionKey: key, TableBatches: tbs})
	}
	return batch
}

func lineToRow(line Line) partition.Row {
	values := make([]partition.FieldValue, 0, len(line.Tags)+len(line.Fields)+1)
	values = append(values, partition.FieldValue{Name: "time", Kind: partition.FieldTime, I64: line.Timestamp})
	for _, f := range line.Tags {
		values = append(values, partition.FieldValue{Name: f.Name, Kind: partition.FieldTag, Str: f.Str})
	}
	for _, f := range line.Fields {
		values = append(values, partition.FieldValue{
			Name: f.Name, Kind: f.Kind, Str: f.Str, I64: f.I64, F64: f.F64, Bool: f.Bool,
		})
	}
	return partition.Row{Values: values}
}

// TableNames returns the sorted union, over all partitions, of table
// names with at least one row in r (or every table, if r is nil).
func (db *DB) TableNames(r *plan.TimestampRange) (_ []string, err error) {
	defer instrumentQuery("table_names", db.clock, &err)()

	db.mu.RLock()
	defer db.mu.RUnlock()

	v := &tableNameVisitor{result: plan.NewStringSet()}
	if err := db.visitTables(nil, r, v); err != nil {
		return nil, err
	}
	return v.result.Sorted(), nil
}

// instrumentQuery records metrics.QueryTotal/QueryDuration for kind,
// reading the named error return at defer-time the way WriteLines reads
// its own named return.
func instrumentQuery(kind string, clock clockwork.Clock, errp *error) func() {
	start := clock.Now()
	return func() {
		status := "ok"
		if *errp != nil {
			status = "error"
		}
		metrics.QueryTotal.WithLabelValues(kind, status).Inc()
		metrics.QueryDuration.WithLabelValues(kind).Observe(clock.Now().Sub(start).Seconds())
	}
}

// TagColumnNames answers tag_column_names: without a predicate it
// returns a materialized StringSet via NameVisitor; with one it returns
// a list of logical plans via NamePredVisitor, executed through
// plan.Executor.
func (db *DB) TagColumnNames(tableName string, r *plan.TimestampRange, pred *plan.Predicate) (_ []string, err error) {
	defer instrumentQuery("tag_column_names", db.clock, &err)()

	db.mu.RLock()
	defer db.mu.RUnlock()

	var tableFilter *string
	if tableName != "" {
		tableFilter = &tableName
	}

	if pred == nil {
		v := newNameVisitor(r)
		if err := db.visitTables(tableFilter, r, v); err != nil {
			return nil, err
		}
		return v.result.Sorted(), nil
	}

	v := &namePredVisitor{pred: pred, timeRng: r}
	if err := db.visitTables(tableFilter, r, v); err != nil {
		return nil, err
	}
	return db.exec.ToStringSet(v.plans).Sorted(), nil
}

// ColumnValues answers column_values: the distinct tag values of
// columnName satisfying r and pred, across every table named tableName
// (or every table, if tableName is empty). Fails with
// UnsupportedColumnTypeError if columnName exists anywhere as a non-Tag
// column.
func (db *DB) ColumnValues(columnName, tableName string, r *plan.TimestampRange, pred *plan.Predicate) (_ []string, err error) {
	defer instrumentQuery("column_values", db.clock, &err)()

	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := db.checkColumnIsTagEverywhere(columnName); err != nil {
		return nil, err
	}

	var tableFilter *string
	if tableName != "" {
		tableFilter = &tableName
	}

	if pred == nil {
		v := newValueVisitor(columnName, r)
		if err := db.visitTables(tableFilter, r, v); err != nil {
			return nil, err
		}
		return v.result.Sorted(), nil
	}

	v := &valuePredVisitor{columnName: columnName, pred: pred, timeRng: r}
	if err := db.visitTables(tableFilter, r, v); err != nil {
		return nil, err
	}
	return db.exec.ToValueStringSet(v.plans).Sorted(), nil
}

// checkColumnIsTagEverywhere enforces that column_values fails fast on
// an unsupported column type: if columnName exists anywhere as a
// non-Tag column, column_values fails rather than silently skipping
// that table.
func (db *DB) checkColumnIsTagEverywhere(columnName string) error {
	for _, p := range db.partitions {
		id, ok := p.Dictionary.LookupValue(columnName)
		if !ok {
			continue
		}
		for _, t := range p.TablesInOrder() {
			col, ok := t.Column(id)
			if !ok {
				continue
			}
			if col.Kind() != coltype.Tag {
				return &wberrors.UnsupportedColumnTypeError{ColumnName: columnName}
			}
		}
	}
	return nil
}

// TableToArrow projects tableName across every partition that holds it
// and returns one arrow.Record per partition, fanned out across an
// errgroup since partition projection is read-only and independent once
// the RLock is held.
func (db *DB) TableToArrow(ctx context.Context, tableName string, columns []string) (_ []arrow.Record, err error) {
	defer instrumentQuery("table_to_arrow", db.clock, &err)()

	db.mu.RLock()
	defer db.mu.RUnlock()

	type hit struct {
		p *partition.Partition
		t *table.Table
	}
	var hits []hit
	for _, p := range db.partitions {
		id, ok := p.Dictionary.LookupValue(tableName)
		if !ok {
			continue
		}
		t, ok := p.Table(id)
		if !ok {
			continue
		}
		hits = append(hits, hit{p: p, t: t})
	}
	if len(hits) == 0 {
		return nil, wberrors.NewDictionaryValueMiss(tableName)
	}

	colIDs := make([][]uint32, len(hits))
	for i, h := range hits {
		ids := make([]uint32, 0, len(columns))
		for _, name := range columns {
			id, ok := h.p.Dictionary.LookupValue(name)
			if !ok {
				return nil, &wberrors.MissingColumnError{Name: name}
			}
			ids = append(ids, id)
		}
		colIDs[i] = ids
	}

	recs := make([]arrow.Record, len(hits))
	g, _ := errgroup.WithContext(ctx)
	for i, h := range hits {
		i, h := i, h
		g.Go(func() error {
			rec, err := h.t.ToArrow(h.p.Dictionary, colIDs[i])
			if err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}
