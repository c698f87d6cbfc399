// Package plan holds the minimal logical-plan and executor types used by
// writebuffer.DB to answer tag-names and tag-values queries, and by the
// ad-hoc SQL front end. It stands in for the out-of-scope DataFusion-style
// planner: only equality predicates over a single column are supported,
// which is all the write buffer's own visitors ever need.
package plan

import (
	"sort"
	"strings"

	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// Predicate is a single-column equality predicate, e.g. column "state"
// equal to value "NY". It is the only predicate shape the write buffer
// evaluates; richer expressions are out of scope.
type Predicate struct {
	Column string
	Value  string
}

// TimestampRange restricts rows (or whole partitions) to
// [Start, End) nanoseconds since epoch. A zero-value range matches nothing
// deliberately — callers that want "unrestricted" use a nil *TimestampRange.
type TimestampRange struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls in [Start, End).
func (r *TimestampRange) Contains(ts int64) bool {
	if r == nil {
		return true
	}
	return ts >= r.Start && ts < r.End
}

// StringSet is an insertion-deduplicated, caller-sorted set of strings.
// It backs table_names, tag_column_names, and column_values results.
type StringSet struct {
	seen   map[string]struct{}
	values []string
}

// NewStringSet returns an empty StringSet.
func NewStringSet() *StringSet {
	return &StringSet{seen: make(map[string]struct{})}
}

// Add inserts s if not already present.
func (s *StringSet) Add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.values = append(s.values, v)
}

// Contains reports whether v has been added.
func (s *StringSet) Contains(v string) bool {
	_, ok := s.seen[v]
	return ok
}

// Len reports the number of distinct values added.
func (s *StringSet) Len() int {
	return len(s.values)
}

// Sorted returns the set's contents in ascending lexical order. The
// backing slice is copied so callers may not mutate the set's internals.
func (s *StringSet) Sorted() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	sort.Strings(out)
	return out
}

// TagNamesPlan is a deferred tag-column-names computation built by
// table.Table.TagColumnNamesPlan. Execute runs the scan it closes over;
// separating plan construction from execution mirrors the external
// planner's build-then-run contract even though this Executor runs it
// immediately.
type TagNamesPlan struct {
	Execute func() []string
}

// TagValuesPlan is the tag-values analogue of TagNamesPlan, built by
// table.Table.TagValuesPlan.
type TagValuesPlan struct {
	Execute func() []string
}

// Executor runs logical plans and unions their results into a StringSet.
// It has no state; it stands in for the out-of-scope DataFusion-style
// physical executor for the one query shape the write buffer needs.
type Executor struct{}

// ToStringSet runs every plan and unions the distinct names produced.
func (Executor) ToStringSet(plans []TagNamesPlan) *StringSet {
	s := NewStringSet()
	for _, p := range plans {
		for _, name := range p.Execute() {
			s.Add(name)
		}
	}
	return s
}

// ToValueStringSet runs every plan and unions the distinct values produced.
func (Executor) ToValueStringSet(plans []TagValuesPlan) *StringSet {
	s := NewStringSet()
	for _, p := range plans {
		for _, v := range p.Execute() {
			s.Add(v)
		}
	}
	return s
}

// SelectQuery is the concrete stand-in for what an external DataFusion-
// style planner would otherwise parse a SELECT statement into: just the
// table names named in the FROM clause. query() registers each of those
// tables as an in-memory relation (via table_to_arrow) before handing the
// statement to the real logical/physical planner, which is out of scope
// here; this package only needs to know which tables to materialize.
type SelectQuery struct {
	SQL        string
	FromTables []string
}

// ParseSelect recognizes a single top-level SELECT statement and extracts
// its FROM-clause table names. It does not parse WHERE/GROUP BY/JOIN
// clauses — that belongs to the out-of-scope executor that consumes the
// registered relations. Any statement that doesn't start with SELECT
// fails with UnsupportedStatementError.
func ParseSelect(sql string) (SelectQuery, error) {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		stmt := trimmed
		if sp := strings.IndexAny(trimmed, " \t\n"); sp >= 0 {
			stmt = trimmed[:sp]
		}
		return SelectQuery{}, &wberrors.UnsupportedStatementError{Query: sql, Statement: stmt}
	}

	fromIdx := indexKeyword(upper, "FROM")
	if fromIdx < 0 {
		return SelectQuery{}, wberrors.BadInputf("select statement has no FROM clause: %q", sql)
	}

	rest := trimmed[fromIdx+len("FROM"):]
	for _, kw := range []string{"WHERE", "GROUP BY", "ORDER BY", "LIMIT"} {
		if idx := indexKeyword(strings.ToUpper(rest), kw); idx >= 0 {
			rest = rest[:idx]
		}
	}

	var tables []string
	for _, part := range strings.Split(rest, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		// Drop a trailing alias ("table AS t" / "table t"): only the
		// first whitespace-separated token is the table name.
		if sp := strings.IndexAny(name, " \t\n"); sp >= 0 {
			name = name[:sp]
		}
		tables = append(tables, name)
	}
	if len(tables) == 0 {
		return SelectQuery{}, wberrors.BadInputf("select statement's FROM clause names no tables: %q", sql)
	}

	return SelectQuery{SQL: sql, FromTables: tables}, nil
}

func indexKeyword(upper, keyword string) int {
	idx := strings.Index(upper, keyword)
	// Require a word boundary so e.g. "FROMAGE" or "PERFORMANCE" isn't
	// mistaken for the keyword.
	for idx >= 0 {
		before := idx == 0 || !isIdentChar(upper[idx-1])
		afterPos := idx + len(keyword)
		after := afterPos >= len(upper) || !isIdentChar(upper[afterPos])
		if before && after {
			return idx
		}
		next := strings.Index(upper[idx+1:], keyword)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
