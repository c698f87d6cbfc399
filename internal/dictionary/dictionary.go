// Package dictionary implements the per-partition bidirectional
// string<->symbol interner that table and column names, and tag
// values, are encoded against. Ids are assigned densely from 0 in
// insertion order; there is no deletion and no id reuse.
package dictionary

// Dictionary interns strings to dense uint32 ids, scoped to a single
// partition. Not safe for concurrent use without external synchronization
// — callers (partition.Partition, via writebuffer.DB) serialize writes
// under the database's writer lock.
type Dictionary struct {
	valueToID map[string]uint32
	idToValue []string
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{valueToID: make(map[string]uint32)}
}

// Intern returns the id for s, inserting it if absent. Idempotent:
// interning the same string twice returns the same id and leaves Len()
// unchanged.
func (d *Dictionary) Intern(s string) uint32 {
	if id, ok := d.valueToID[s]; ok {
		return id
	}
	id := uint32(len(d.idToValue))
	d.idToValue = append(d.idToValue, s)
	d.valueToID[s] = id
	return id
}

// LookupValue returns the id for s, if present.
func (d *Dictionary) LookupValue(s string) (uint32, bool) {
	id, ok := d.valueToID[s]
	return id, ok
}

// LookupID returns the string for id, if present.
func (d *Dictionary) LookupID(id uint32) (string, bool) {
	if int(id) >= len(d.idToValue) {
		return "", false
	}
	return d.idToValue[id], true
}

// Len returns the number of distinct strings interned.
func (d *Dictionary) Len() int {
	return len(d.idToValue)
}
