// Package store defines the record store backends the sync controller
// persists the Ledger to: a transactional table-per-collection Primary
// backend and a single-document DocumentStore used in degraded mode.
package store

import (
	"context"
	"errors"
	"fmt"
)

// SettingsTable is the key/value table holding one row per settings field.
const SettingsTable = "settings"

// Row is one persisted record: the record key and its JSON payload.
type Row struct {
	Key     string
	Payload []byte
}

// StatementKind distinguishes the statements of a write-set.
type StatementKind int

const (
	// StmtUpsert inserts or replaces the row with Key in Table.
	StmtUpsert StatementKind = iota
	// StmtDeleteExcept removes every row of Table whose key is not in Keep.
	// An empty Keep empties the table.
	StmtDeleteExcept
)

// Statement is one parameterized operation of a write-set. Backends render
// it in their own dialect.
type Statement struct {
	Kind    StatementKind
	Table   string
	Key     string
	Payload []byte
	// Seq is the record's position in its collection. Settings upserts
	// ignore it.
	Seq  int
	Keep []string
}

// WriteSet is the ordered list of statements applied atomically by
// Primary.BulkWrite.
type WriteSet []Statement

// Primary is a transactional table-per-collection backend.
type Primary interface {
	// Open connects to the backend.
	Open(ctx context.Context) error
	// EnsureSchema creates every table that does not yet exist. It is safe
	// to call on every start.
	EnsureSchema(ctx context.Context) error
	// Query returns all rows of table. Collection rows come back in the
	// order of the Seq they were last written with; settings rows by key.
	Query(ctx context.Context, table string) ([]Row, error)
	// BulkWrite applies ws in a single transaction: either every statement
	// takes effect or none does.
	BulkWrite(ctx context.Context, ws WriteSet) error
	// Close releases the backend connection.
	Close() error
}

// ErrNoDocument is returned by DocumentStore.ReadDocument when nothing has
// been written yet.
var ErrNoDocument = errors.New("no document stored")

// DocumentStore persists the whole Ledger as one opaque document.
type DocumentStore interface {
	ReadDocument(ctx context.Context) ([]byte, error)
	WriteDocument(ctx context.Context, data []byte) error
}

// ErrorKind classifies backend failures so the sync controller can decide
// between switching to degraded mode and logging.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota + 1
	KindConnection
	KindSchema
	KindQuery
	KindWrite
	KindDocument
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindConnection:
		return "connection"
	case KindSchema:
		return "schema"
	case KindQuery:
		return "query"
	case KindWrite:
		return "write"
	case KindDocument:
		return "document"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a classified backend failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns an *Error of the given kind wrapping err.
func Errorf(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ErrUnavailable reports that no primary backend is configured or
// supported on this platform.
var ErrUnavailable = &Error{Kind: KindUnavailable, Op: "primary backend"}
