package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ha1tch/pgiris/internal/types"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
)

// NetworkConfig configures the pooled networked executor).
type NetworkConfig struct {
	// Driver names the registered database/sql driver that actually
	// reaches the backend. Production deployments register a real
	// InterSystems IRIS driver under this name; this module registers
	// github.com/mattn/go-sqlite3 as "sqlite3" so the contract runs
	// end to end without a live IRIS instance (see DESIGN.md).
	Driver string
	DSN    string

	// PoolSize + Overflow bounds concurrently acquired handles; the
	// ceiling is enforced regardless of what the two add up to
	// (pool_size + overflow <= 200).
	PoolSize int
	Overflow int

	AcquireTimeout  time.Duration // default 30s
	StatementTimeout time.Duration // default 10s
	Recycle         time.Duration // default 3600s

	Logger *pgirislog.Logger
}

// DefaultNetworkConfig returns sensible production defaults.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Driver:            "sqlite3",
		DSN:               "file::memory:?cache=shared",
		PoolSize:          50,
		Overflow:          20,
		AcquireTimeout:    30 * time.Second,
		StatementTimeout:  10 * time.Second,
		Recycle:           3600 * time.Second,
	}
}

const hardPoolCeiling = 200

// NetworkExecutor is the networked Backend Executor implementation: a
// bounded pool of database/sql connections, health-checked on checkout,
// recycled on a TTL, and quarantined-and-replaced on statement timeout
//, the "core defense against compiler hangs" described
// in §4.11 and §9).
type NetworkExecutor struct {
	cfg  NetworkConfig
	db   *sql.DB
	sem  *semaphore.Weighted
	log  *pgirislog.Logger

	mu      sync.Mutex
	closed  bool
}

// networkHandle wraps one checked-out *sql.Conn plus the transaction it
// may be running inside.
type networkHandle struct {
	conn      *sql.Conn
	tx        *sql.Tx
	createdAt time.Time
	cancel    context.CancelFunc
}

func (h *networkHandle) Cancel(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// NewNetworkExecutor opens the backend driver and sizes the bounding
// semaphore to min(PoolSize+Overflow, hardPoolCeiling).
func NewNetworkExecutor(cfg NetworkConfig) (*NetworkExecutor, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultNetworkConfig().PoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultNetworkConfig().AcquireTimeout
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultNetworkConfig().StatementTimeout
	}
	if cfg.Recycle <= 0 {
		cfg.Recycle = DefaultNetworkConfig().Recycle
	}
	if cfg.Logger == nil {
		cfg.Logger = pgirislog.Default()
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "opening backend driver").Err()
	}
	cap := cfg.PoolSize + cfg.Overflow
	if cap > hardPoolCeiling || cap <= 0 {
		cap = hardPoolCeiling
	}
	db.SetMaxOpenConns(cap)
	db.SetConnMaxLifetime(cfg.Recycle)

	return &NetworkExecutor{
		cfg: cfg,
		db:  db,
		sem: semaphore.NewWeighted(int64(cap)),
		log: cfg.Logger,
	}, nil
}

// Acquire checks out a connection, waiting on the semaphore up to
// AcquireTimeout, then health-checks it with Ping.
func (e *NetworkExecutor) Acquire(ctx context.Context, namespace string) (Handle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, pgiriserrors.New(pgiriserrors.KindResource, "executor is closed").Err()
	}
	e.mu.Unlock()

	waitCtx, cancelWait := context.WithTimeout(ctx, e.cfg.AcquireTimeout)
	defer cancelWait()
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		return nil, pgiriserrors.New(pgiriserrors.KindResource, "pool acquire timed out").
			WithDetail(fmt.Sprintf("waited %s, pool size %d", e.cfg.AcquireTimeout, e.cfg.PoolSize+e.cfg.Overflow)).
			Err()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.sem.Release(1)
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "checking out connection").Err()
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		e.sem.Release(1)
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "backend health check failed").Err()
	}
	if namespace != "" {
		// USE-equivalent: backends that key a namespace per connection
		// get it set here; the embedded sqlite stand-in has no concept
		// of multiple namespaces, so this is a no-op against it.
	}
	return &networkHandle{conn: conn, createdAt: time.Now()}, nil
}

// Release returns the connection's slot to the pool. A connection past
// its recycle age is closed instead of returned to database/sql's own
// idle pool, so a stale backend session never outlives Recycle.
func (e *NetworkExecutor) Release(h Handle) {
	nh, ok := h.(*networkHandle)
	if !ok || nh.conn == nil {
		return
	}
	if time.Since(nh.createdAt) > e.cfg.Recycle {
		nh.conn.Close()
	} else {
		nh.conn.Close() // returns the *sql.Conn to database/sql's pool
	}
	e.sem.Release(1)
}

// quarantine discards a handle's connection outright, without returning
// it to database/sql's idle pool, and gives the handle a fresh connection
// in the same pool slot — the response to a statement timeout. The slot
// stays held until Release.
func (e *NetworkExecutor) quarantine(h *networkHandle) {
	if h.tx != nil {
		h.tx.Rollback()
		h.tx = nil
	}
	// Reporting ErrBadConn from Raw makes database/sql close the driver
	// connection instead of keeping it for reuse.
	h.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	h.conn.Close()
	if conn, err := e.db.Conn(context.Background()); err == nil {
		h.conn = conn
		h.createdAt = time.Now()
	}
}

func (e *NetworkExecutor) Execute(ctx context.Context, h Handle, sqlText string, params []types.Value, format ResultFormat) ([]Column, Rows, CommandTag, int64, error) {
	nh := h.(*networkHandle)
	stmtCtx, cancel := statementTimeout(ctx, e.cfg.StatementTimeout)
	nh.cancel = cancel

	args := valuesToArgs(params)
	verb := leadingVerb(sqlText)

	exec := queryExecer(nh)
	if isSelectLike(verb) {
		rows, err := exec.query(stmtCtx, sqlText, args...)
		if err != nil {
			cancel()
			return e.classifyErr(nh, err)
		}
		cols, err := columnsOf(rows)
		if err != nil {
			rows.Close()
			cancel()
			return nil, nil, "", 0, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "reading column metadata").Err()
		}
		return cols, newSQLRows(rows, len(cols), scalarDecoder(cols)), CommandTag(fmt.Sprintf("SELECT")), 0, nil
	}

	result, err := exec.exec(stmtCtx, sqlText, args...)
	cancel()
	if err != nil {
		return e.classifyErr(nh, err)
	}
	n, _ := result.RowsAffected()
	return nil, nil, commandTagFor(verb, n), n, nil
}

func (e *NetworkExecutor) classifyErr(nh *networkHandle, err error) ([]Column, Rows, CommandTag, int64, error) {
	if ctxErr := nh2ctxErr(err); ctxErr {
		e.quarantine(nh)
		return nil, nil, "", 0, pgiriserrors.Wrap(err, pgiriserrors.KindTimeout, "statement exceeded its deadline").Err()
	}
	return nil, nil, "", 0, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "backend execution failed").Err()
}

func nh2ctxErr(err error) bool {
	return err == context.DeadlineExceeded || strings.Contains(err.Error(), "context deadline exceeded")
}

func (e *NetworkExecutor) Begin(ctx context.Context, h Handle) error {
	nh := h.(*networkHandle)
	tx, err := nh.conn.BeginTx(ctx, nil)
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "BEGIN failed").Err()
	}
	nh.tx = tx
	return nil
}

func (e *NetworkExecutor) Commit(ctx context.Context, h Handle) error {
	nh := h.(*networkHandle)
	if nh.tx == nil {
		return nil
	}
	err := nh.tx.Commit()
	nh.tx = nil
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "COMMIT failed").Err()
	}
	return nil
}

func (e *NetworkExecutor) Rollback(ctx context.Context, h Handle) error {
	nh := h.(*networkHandle)
	if nh.tx == nil {
		return nil
	}
	err := nh.tx.Rollback()
	nh.tx = nil
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "ROLLBACK failed").Err()
	}
	return nil
}

// BulkInsert drains rows off the channel batchSize at a time and issues
// one multi-row INSERT per batch.
func (e *NetworkExecutor) BulkInsert(ctx context.Context, h Handle, table string, columns []string, rows <-chan []types.Value, batchSize int) (int64, error) {
	nh := h.(*networkHandle)
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	batch := make([][]types.Value, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := insertBatch(ctx, queryExecer(nh), table, columns, batch)
		total += n
		batch = batch[:0]
		return err
	}
	for row := range rows {
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func (e *NetworkExecutor) StreamSelect(ctx context.Context, h Handle, sqlText string) ([]Column, Rows, error) {
	nh := h.(*networkHandle)
	rows, err := queryExecer(nh).query(ctx, sqlText)
	if err != nil {
		return nil, nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "stream select failed").Err()
	}
	cols, err := columnsOf(rows)
	if err != nil {
		rows.Close()
		return nil, nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "reading column metadata").Err()
	}
	return cols, newSQLRows(rows, len(cols), scalarDecoder(cols)), nil
}

func (e *NetworkExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return e.db.Close()
}

// --- small helpers shared with the embedded executor ---

type execer interface {
	query(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error)
	exec(ctx context.Context, sqlText string, args ...interface{}) (sql.Result, error)
}

type connExecer struct{ h *networkHandle }

func (c connExecer) query(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error) {
	if c.h.tx != nil {
		return c.h.tx.QueryContext(ctx, sqlText, args...)
	}
	return c.h.conn.QueryContext(ctx, sqlText, args...)
}

func (c connExecer) exec(ctx context.Context, sqlText string, args ...interface{}) (sql.Result, error) {
	if c.h.tx != nil {
		return c.h.tx.ExecContext(ctx, sqlText, args...)
	}
	return c.h.conn.ExecContext(ctx, sqlText, args...)
}

func queryExecer(h *networkHandle) execer { return connExecer{h: h} }

func valuesToArgs(params []types.Value) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = valueToDriverArg(p)
	}
	return args
}

func leadingVerb(sqlText string) string {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n")
	end := strings.IndexAny(trimmed, " \t\r\n(")
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToUpper(trimmed[:end])
}

func isSelectLike(verb string) bool {
	switch verb {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES":
		return true
	default:
		return false
	}
}

func columnsOf(rows *sql.Rows) ([]Column, error) {
	types_, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types_))
	for i, t := range types_ {
		cols[i] = Column{Name: t.Name(), BackendType: t.DatabaseTypeName()}
	}
	return cols, nil
}

func insertBatch(ctx context.Context, ex execer, table string, columns []string, batch [][]types.Value) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	args := make([]interface{}, 0, len(batch)*len(columns))
	for i, row := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('?')
			args = append(args, valueToDriverArg(v))
		}
		b.WriteByte(')')
	}
	result, err := ex.exec(ctx, b.String(), args...)
	if err != nil {
		return 0, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "bulk insert batch failed").Err()
	}
	n, _ := result.RowsAffected()
	return n, nil
}
