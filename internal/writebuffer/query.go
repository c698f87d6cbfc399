package writebuffer

import (
	"context"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/malbeclabs/writebuf/internal/plan"
)

// Query answers query(sql): parse a SELECT, materialize every table
// named in its FROM clause via TableToArrow (registering each as an
// in-memory relation, standing in for a full DataFusion-style planner),
// and collect results. A bare "SELECT * FROM t" returns t's partitions
// verbatim; "SELECT a, b FROM t" projects to the named columns via the
// same TableToArrow call. Joins across multiple FROM tables and
// WHERE/GROUP BY/ORDER BY belong to a fuller logical/physical planner
// and are not handled here; multiple FROM tables are each materialized
// and their record batches concatenated in FROM order. Non-SELECT
// statements fail with UnsupportedStatementError.
func (db *DB) Query(ctx context.Context, sql string) (_ []arrow.Record, err error) {
	defer instrumentQuery("sql", db.clock, &err)()

	q, err := plan.ParseSelect(sql)
	if err != nil {
		return nil, err
	}

	columns := selectedColumns(sql)

	var out []arrow.Record
	for _, tableName := range q.FromTables {
		recs, err := db.TableToArrow(ctx, tableName, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// selectedColumns extracts the SELECT list's column names, or nil for
// "SELECT *" (meaning "all columns", per TableToArrow's own convention).
func selectedColumns(sql string) []string {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return nil
	}
	rest := trimmed[len("SELECT"):]
	fromIdx := strings.Index(strings.ToUpper(rest), "FROM")
	if fromIdx < 0 {
		return nil
	}
	list := strings.TrimSpace(rest[:fromIdx])
	if list == "*" || list == "" {
		return nil
	}

	var cols []string
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		if name == "" || name == "*" {
			continue
		}
		cols = append(cols, name)
	}
	return cols
}
