// Package backend implements the Backend Executor abstraction: a small
// interface describing everything the rest of the system needs from the
// backend database, plus two implementations — a pooled networked
// client and an in-process embedded variant — that are interchangeable
// behind it.
//
// The backend itself is treated as a black box; both implementations
// reach it through database/sql so a real InterSystems IRIS
// database/sql driver can be registered under the configured driver
// name without any change to this package. Until such a driver ships,
// github.com/mattn/go-sqlite3 is wired in as the concrete engine behind
// both paths so the contract is exercisable end to end.
package backend

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/ha1tch/pgiris/internal/types"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// Column describes one result column the way the rest of the system
// needs it: enough to build a PostgreSQL RowDescription field, with the backend's own type name preserved so the
// Type Registry can resolve it to an OID.
type Column struct {
	Name        string
	BackendType string
}

// Rows iterates backend result rows lazily; Execute returns one of
// these rather than a materialized slice so COPY TO and large SELECTs
// never have to hold a full result set in memory.
type Rows interface {
	Next(ctx context.Context) bool
	Scan() ([]types.Value, error)
	Err() error
	Close() error
}

// CommandTag is the PostgreSQL-style tag reported in CommandComplete
// ("SELECT n", "INSERT 0 n", "UPDATE n", "DELETE n", "COPY n", ...).
type CommandTag string

// ResultFormat hints whether the caller wants text or binary encoding;
// the executor itself is format-agnostic (values stay as typed Values
// until the session encodes them), but backends that can push work down
// (e.g. a native binary cursor) may use this hint.
type ResultFormat int

const (
	FormatText ResultFormat = iota
	FormatBinary
)

// Handle identifies one acquired backend connection. Session code treats
// it as opaque; it is threaded back through Execute/Begin/Commit/
// Rollback/Release so the executor can enforce "one handle per
// in-flight statement".
type Handle interface {
	// Cancel requests the backend abandon whatever statement is
	// currently running on this handle.
	Cancel(ctx context.Context) error
}

// Executor is the contract every backend implementation satisfies. All
// operations accept a context so the per-statement timeout and the
// authentication/pool timeouts compose with context.WithTimeout at the
// call site.
type Executor interface {
	// Acquire checks out a handle bound to the given client-visible
	// database/namespace. It blocks up to the pool's acquire timeout
	// before failing with KindResource.
	Acquire(ctx context.Context, namespace string) (Handle, error)
	// Release returns a handle to the pool (for the embedded executor,
	// which has no pool, it ends the caller's exclusive hold on the
	// single connection).
	Release(h Handle)

	// Execute runs sql with positional params on h and returns the
	// column descriptors, a lazy row iterator, the command tag, and
	// rows-affected. format hints the preferred encoding for any
	// backend-native binary path; callers always receive typed Values
	// regardless.
	Execute(ctx context.Context, h Handle, sql string, params []types.Value, format ResultFormat) ([]Column, Rows, CommandTag, int64, error)

	Begin(ctx context.Context, h Handle) error
	Commit(ctx context.Context, h Handle) error
	Rollback(ctx context.Context, h Handle) error

	// BulkInsert implements the COPY FROM backend side: rows arrives
	// as a channel so the caller can stream CSV-parsed rows in without
	// buffering the whole input, batched internally at batchSize
	// (default 1000).
	BulkInsert(ctx context.Context, h Handle, table string, columns []string, rows <-chan []types.Value, batchSize int) (int64, error)

	// StreamSelect implements the COPY TO backend side: a lazy Rows
	// the caller drains chunk by chunk.
	StreamSelect(ctx context.Context, h Handle, sql string) ([]Column, Rows, error)

	// Close flushes the pool (or closes the embedded connection). The
	// networked executor is then marked drained and refuses further
	// Acquire calls; the embedded executor has no such check, so its
	// Acquire still returns a handle after Close.
	Close() error
}

// sqlRows adapts *sql.Rows to the Rows interface, decoding each column
// into a tagged Value using the backend type name supplied by the
// caller (both implementations know their own backend's column
// metadata shape, so they resolve BackendType->Value decoding
// themselves before handing back a sqlRows).
type sqlRows struct {
	rows    *sql.Rows
	decode  func(raw []interface{}) ([]types.Value, error)
	scratch []interface{}
	ptrs    []interface{}
}

func newSQLRows(rows *sql.Rows, n int, decode func([]interface{}) ([]types.Value, error)) *sqlRows {
	scratch := make([]interface{}, n)
	ptrs := make([]interface{}, n)
	for i := range scratch {
		ptrs[i] = &scratch[i]
	}
	return &sqlRows{rows: rows, decode: decode, scratch: scratch, ptrs: ptrs}
}

func (r *sqlRows) Next(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	return r.rows.Next()
}

func (r *sqlRows) Scan() ([]types.Value, error) {
	if err := r.rows.Scan(r.ptrs...); err != nil {
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "row scan failed").Err()
	}
	return r.decode(r.scratch)
}

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "row iteration failed").Err()
	}
	return nil
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

// statementTimeout enforces the per-call deadline every execute must run
// under. It is
// shared by both implementations.
func statementTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// commandTagFor builds the PostgreSQL command tag for a non-SELECT
// statement from its leading verb and rows-affected count.
func commandTagFor(verb string, rowsAffected int64) CommandTag {
	n := strconv.FormatInt(rowsAffected, 10)
	switch verb {
	case "INSERT":
		return CommandTag("INSERT 0 " + n)
	case "UPDATE":
		return CommandTag("UPDATE " + n)
	case "DELETE":
		return CommandTag("DELETE " + n)
	case "COPY":
		return CommandTag("COPY " + n)
	default:
		return CommandTag(verb)
	}
}
