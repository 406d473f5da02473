package backend

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ha1tch/pgiris/internal/types"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// EmbeddedConfig configures the embedded executor,
// available only when the server runs co-located inside the backend's
// scripting runtime. It has no pool: a single connection is opened once
// and shared, serialized by a mutex, the same "one connection, no pool"
// shape a single-writer SQLite storage layer has.
type EmbeddedConfig struct {
	Driver           string
	DSN              string
	StatementTimeout time.Duration
}

func DefaultEmbeddedConfig() EmbeddedConfig {
	return EmbeddedConfig{
		Driver:           "sqlite3",
		DSN:              "file::memory:?cache=shared&_foreign_keys=on",
		StatementTimeout: 10 * time.Second,
	}
}

// EmbeddedExecutor calls the co-located runtime's SQL entry point
// directly, bypassing the network). Same Executor
// contract as NetworkExecutor; Acquire/Release are no-ops beyond mutual
// exclusion since there is only ever one connection.
type EmbeddedExecutor struct {
	cfg EmbeddedConfig
	db  *sql.DB
	mu  sync.Mutex
}

type embeddedHandle struct {
	tx     *sql.Tx
	cancel context.CancelFunc
}

func (h *embeddedHandle) Cancel(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

func NewEmbeddedExecutor(cfg EmbeddedConfig) (*EmbeddedExecutor, error) {
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultEmbeddedConfig().StatementTimeout
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "opening embedded runtime connection").Err()
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "embedded runtime health check failed").Err()
	}
	return &EmbeddedExecutor{cfg: cfg, db: db}, nil
}

func (e *EmbeddedExecutor) Acquire(ctx context.Context, namespace string) (Handle, error) {
	e.mu.Lock()
	return &embeddedHandle{}, nil
}

func (e *EmbeddedExecutor) Release(h Handle) {
	e.mu.Unlock()
}

type embeddedExecer struct {
	e  *EmbeddedExecutor
	tx *sql.Tx
}

func (x embeddedExecer) query(ctx context.Context, sqlText string, args ...interface{}) (*sql.Rows, error) {
	if x.tx != nil {
		return x.tx.QueryContext(ctx, sqlText, args...)
	}
	return x.e.db.QueryContext(ctx, sqlText, args...)
}

func (x embeddedExecer) exec(ctx context.Context, sqlText string, args ...interface{}) (sql.Result, error) {
	if x.tx != nil {
		return x.tx.ExecContext(ctx, sqlText, args...)
	}
	return x.e.db.ExecContext(ctx, sqlText, args...)
}

func (e *EmbeddedExecutor) Execute(ctx context.Context, h Handle, sqlText string, params []types.Value, format ResultFormat) ([]Column, Rows, CommandTag, int64, error) {
	eh := h.(*embeddedHandle)
	stmtCtx, cancel := statementTimeout(ctx, e.cfg.StatementTimeout)
	eh.cancel = cancel
	ex := embeddedExecer{e: e, tx: eh.tx}
	args := valuesToArgs(params)
	verb := leadingVerb(sqlText)

	if isSelectLike(verb) {
		rows, err := ex.query(stmtCtx, sqlText, args...)
		if err != nil {
			cancel()
			return nil, nil, "", 0, classifyEmbeddedErr(err)
		}
		cols, err := columnsOf(rows)
		if err != nil {
			rows.Close()
			cancel()
			return nil, nil, "", 0, pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "reading column metadata").Err()
		}
		return cols, newSQLRows(rows, len(cols), scalarDecoder(cols)), CommandTag("SELECT"), 0, nil
	}

	result, err := ex.exec(stmtCtx, sqlText, args...)
	cancel()
	if err != nil {
		return nil, nil, "", 0, classifyEmbeddedErr(err)
	}
	n, _ := result.RowsAffected()
	return nil, nil, commandTagFor(verb, n), n, nil
}

func classifyEmbeddedErr(err error) error {
	if err == context.DeadlineExceeded || strings.Contains(err.Error(), "context deadline exceeded") {
		return pgiriserrors.Wrap(err, pgiriserrors.KindTimeout, "statement exceeded its deadline").Err()
	}
	return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "backend execution failed").Err()
}

func (e *EmbeddedExecutor) Begin(ctx context.Context, h Handle) error {
	eh := h.(*embeddedHandle)
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "BEGIN failed").Err()
	}
	eh.tx = tx
	return nil
}

func (e *EmbeddedExecutor) Commit(ctx context.Context, h Handle) error {
	eh := h.(*embeddedHandle)
	if eh.tx == nil {
		return nil
	}
	err := eh.tx.Commit()
	eh.tx = nil
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "COMMIT failed").Err()
	}
	return nil
}

func (e *EmbeddedExecutor) Rollback(ctx context.Context, h Handle) error {
	eh := h.(*embeddedHandle)
	if eh.tx == nil {
		return nil
	}
	err := eh.tx.Rollback()
	eh.tx = nil
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindBackend, "ROLLBACK failed").Err()
	}
	return nil
}

func (e *EmbeddedExecutor) BulkInsert(ctx context.Context, h Handle, table string, columns []string, rows <-chan []types.Value, batchSize int) (int64, error) {
	eh := h.(*embeddedHandle)
	ex := embeddedExecer{e: e, tx: eh.tx}
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	batch := make([][]types.Value, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := insertBatch(ctx, ex, table, columns, batch)
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

func (e *EmbeddedExecutor) StreamSelect(ctx context.Context, h Handle, sqlText string) ([]Column, Rows, error) {
	eh := h.(*embeddedHandle)
	ex := embeddedExecer{e: e, tx: eh.tx}
	rows, err := ex.query(ctx, sqlText)
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

func (e *EmbeddedExecutor) Close() error {
	return e.db.Close()
}
