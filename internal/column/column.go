// Package column implements typed, null-aware column storage: a tagged
// variant over {Tag, I64, F64, Bool, String}, each holding a dense
// sequence plus a parallel validity slice (a separate null bitmap,
// rather than a slice of optionals, for memory locality). Tag columns
// store dictionary symbol ids, never strings.
package column

import "github.com/malbeclabs/writebuf/internal/coltype"

// Column is a single typed, null-aware sequence. A Column never shrinks:
// Push* calls extend it by exactly one row, and only PushNull is valid for
// rows written before the column had a real value of its kind.
type Column struct {
	kind coltype.Kind

	tags  []uint32
	i64s  []int64
	f64s  []float64
	bools []bool
	strs  []string
	valid []bool
}

// New creates an empty column of the given kind.
func New(kind coltype.Kind) *Column {
	return &Column{kind: kind}
}

// Kind reports the column's fixed variant.
func (c *Column) Kind() coltype.Kind { return c.kind }

// Len reports the column's row count.
func (c *Column) Len() int { return len(c.valid) }

// IsValid reports whether row i holds a non-null value.
func (c *Column) IsValid(i int) bool { return c.valid[i] }

// PushNull extends the column by one null row.
func (c *Column) PushNull() {
	c.valid = append(c.valid, false)
	switch c.kind {
	case coltype.Tag:
		c.tags = append(c.tags, 0)
	case coltype.I64:
		c.i64s = append(c.i64s, 0)
	case coltype.F64:
		c.f64s = append(c.f64s, 0)
	case coltype.Bool:
		c.bools = append(c.bools, false)
	case coltype.String:
		c.strs = append(c.strs, "")
	}
}

// mismatch reports whether got differs from this column's established kind.
func (c *Column) mismatch(got coltype.Kind) bool { return c.kind != got }

// PushTag appends a dictionary symbol id. Fails if this column is not a
// Tag column.
func (c *Column) PushTag(id uint32) bool {
	if c.mismatch(coltype.Tag) {
		return false
	}
	c.tags = append(c.tags, id)
	c.valid = append(c.valid, true)
	return true
}

// PushI64 appends an int64 value. Fails if this column is not an I64
// column.
func (c *Column) PushI64(v int64) bool {
	if c.mismatch(coltype.I64) {
		return false
	}
	c.i64s = append(c.i64s, v)
	c.valid = append(c.valid, true)
	return true
}

// PushF64 appends a float64 value. Fails if this column is not an F64
// column.
func (c *Column) PushF64(v float64) bool {
	if c.mismatch(coltype.F64) {
		return false
	}
	c.f64s = append(c.f64s, v)
	c.valid = append(c.valid, true)
	return true
}

// PushBool appends a bool value. Fails if this column is not a Bool
// column.
func (c *Column) PushBool(v bool) bool {
	if c.mismatch(coltype.Bool) {
		return false
	}
	c.bools = append(c.bools, v)
	c.valid = append(c.valid, true)
	return true
}

// PushString appends a string value. Fails if this column is not a String
// column.
func (c *Column) PushString(v string) bool {
	if c.mismatch(coltype.String) {
		return false
	}
	c.strs = append(c.strs, v)
	c.valid = append(c.valid, true)
	return true
}

// TagID returns the symbol id stored at row i. Only valid for Tag columns.
func (c *Column) TagID(i int) uint32 { return c.tags[i] }

// I64At returns the int64 value stored at row i. Only valid for I64
// columns.
func (c *Column) I64At(i int) int64 { return c.i64s[i] }

// F64At returns the float64 value stored at row i. Only valid for F64
// columns.
func (c *Column) F64At(i int) float64 { return c.f64s[i] }

// BoolAt returns the bool value stored at row i. Only valid for Bool
// columns.
func (c *Column) BoolAt(i int) bool { return c.bools[i] }

// StringAt returns the string value stored at row i. Only valid for
// String columns.
func (c *Column) StringAt(i int) string { return c.strs[i] }

// IterI64 calls fn for every non-null row, in order.
func (c *Column) IterI64(fn func(row int, v int64)) {
	for i, ok := range c.valid {
		if ok {
			fn(i, c.i64s[i])
		}
	}
}

// IterTag calls fn for every non-null row, in order.
func (c *Column) IterTag(fn func(row int, id uint32)) {
	for i, ok := range c.valid {
		if ok {
			fn(i, c.tags[i])
		}
	}
}
