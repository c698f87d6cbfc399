// Package wberrors defines the semantic error kinds used across the write
// buffer: sentinel errors for classification via errors.Is, and structured
// error types that carry enough context for a caller to log or format a
// useful message.
package wberrors

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/writebuf/internal/coltype"
)

var (
	// ErrBadInput classifies malformed input: malformed SQL or line
	// protocol, and rows missing a timestamp. Non-SELECT statements are
	// classified as ErrUnsupportedOperation instead.
	ErrBadInput = errors.New("bad input")

	// ErrSchemaMismatch classifies a column type conflicting with the
	// stored column variant, including the reserved "time" column name.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrMissingEntity classifies a table/column/value id absent from a
	// dictionary, or a missing column in a projection.
	ErrMissingEntity = errors.New("missing entity")

	// ErrUnsupportedOperation classifies listing values of a non-tag
	// column and non-SELECT SQL statements.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrWalIO classifies failure to open, append, sync, or read the WAL.
	ErrWalIO = errors.New("wal io")

	// ErrWalRecover classifies a decode failure or schema violation
	// during WAL replay.
	ErrWalRecover = errors.New("wal recover")

	// ErrInternal classifies invariant violations.
	ErrInternal = errors.New("internal error")
)

// DictionaryLookupMissError is returned when a caller asserts a dictionary
// key must be present and it is not.
type DictionaryLookupMissError struct {
	Kind string // "value" or "id"
	Key  any
}

func (e *DictionaryLookupMissError) Error() string {
	return fmt.Sprintf("dictionary lookup miss: %s %v not found", e.Kind, e.Key)
}

func (e *DictionaryLookupMissError) Unwrap() error { return ErrMissingEntity }

// NewDictionaryValueMiss reports a failed lookup of a string in a dictionary.
func NewDictionaryValueMiss(value string) error {
	return &DictionaryLookupMissError{Kind: "value", Key: value}
}

// NewDictionaryIDMiss reports a failed lookup of a symbol id in a dictionary.
func NewDictionaryIDMiss(id uint32) error {
	return &DictionaryLookupMissError{Kind: "id", Key: id}
}

// SchemaMismatchError is returned when a column push call's variant does
// not match the column's established variant, or when a row collides with
// the reserved time column.
type SchemaMismatchError struct {
	Column   string
	Expected coltype.Kind
	Found    coltype.Kind
	Reason   string // set instead of Expected/Found for non-type collisions, e.g. "time reserved"
}

func (e *SchemaMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("schema mismatch on column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("schema mismatch on column %q: expected %s, found %s", e.Column, e.Expected, e.Found)
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// MissingColumnError is returned when a requested projection column does
// not exist in a table.
type MissingColumnError struct {
	Name string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q", e.Name)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingEntity }

// UnsupportedColumnTypeError is returned when column_values is asked to
// list values of a column that is not a Tag column.
type UnsupportedColumnTypeError struct {
	ColumnName string
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("column %q is not a tag column and thus can not list values", e.ColumnName)
}

func (e *UnsupportedColumnTypeError) Unwrap() error { return ErrUnsupportedOperation }

// UnsupportedStatementError is returned when query() is given a non-SELECT
// statement.
type UnsupportedStatementError struct {
	Query     string
	Statement string
}

func (e *UnsupportedStatementError) Error() string {
	return fmt.Sprintf("unsupported sql statement in query %q: %s", e.Query, e.Statement)
}

func (e *UnsupportedStatementError) Unwrap() error { return ErrUnsupportedOperation }

// Internal wraps an invariant violation with context.
func Internal(msg string) error {
	return fmt.Errorf("internal error: %s: %w", msg, ErrInternal)
}

// Internalf wraps an invariant violation with a formatted message.
func Internalf(format string, args ...any) error {
	return fmt.Errorf("internal error: "+fmt.Sprintf(format, args...)+": %w", ErrInternal)
}

// WalIO wraps an I/O failure from the WAL writer or reader.
func WalIO(op string, err error) error {
	return fmt.Errorf("wal io (%s): %v: %w", op, err, ErrWalIO)
}

// WalRecover wraps a decode or replay failure.
func WalRecover(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrWalRecover)
}

// WalRecoverf wraps a decode or replay failure with a formatted message.
func WalRecoverf(format string, args ...any) error {
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", ErrWalRecover)
}

// BadInput wraps a malformed-input failure.
func BadInput(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrBadInput)
}

// BadInputf wraps a malformed-input failure with a formatted message.
func BadInputf(format string, args ...any) error {
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", ErrBadInput)
}
