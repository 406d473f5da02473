// Package session implements the Session Controller: the
// per-connection state machine tying together the authenticated identity,
// the prepared-statement/portal tables the Extended Protocol Engine
// consults, transaction status, and COPY state. Messages are dispatched
// on their concrete frontend type to a Simple Query or Extended Protocol
// handler.
package session

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/auth"
	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/catalog"
	"github.com/ha1tch/pgiris/internal/copyproto"
	"github.com/ha1tch/pgiris/internal/translate"
	"github.com/ha1tch/pgiris/internal/wire"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
)

// PreparedStatement is the Parse-message result kept until Close or
// connection teardown.
type PreparedStatement struct {
	Name        string
	SourceSQL   string // as translated, ready to execute
	ParamOIDs   []uint32
	Fields      []backend.Column
	ReturnsRows bool
}

// Portal is the Bind-message result: a prepared statement bound to
// concrete parameter values, with its own fully-translated SQL (bound
// vector parameters are spliced in per-binding, so two Binds of the same
// named statement can translate to different final SQL) and the
// requested per-column result formats. The row iterator and its partial-
// execution bookkeeping are attached once the first Execute runs the
// query, so a later Execute on the same portal (driven by max_rows)
// resumes it rather than re-running the statement.
type Portal struct {
	Name   string
	Stmt   *PreparedStatement
	SQL    string
	Params []translate.BoundParam

	// FormatCodes holds the raw ResultFormatCodes from Bind: empty means
	// every column is text, one entry applies to every column, and more
	// than one gives an explicit code per column (the wire protocol's own
	// three conventions).
	FormatCodes []int16

	executed bool
	rows     *pendingRows
	plan     []columnPlan
	tag      backend.CommandTag
	rowsSent int64
}

// wantsBinary reports whether the client asked for column i in binary,
// per the FormatCodes conventions above. The caller still intersects
// this with whether this server actually implements a binary encoder
// for that column's type.
func (p *Portal) wantsBinary(i int) bool {
	switch len(p.FormatCodes) {
	case 0:
		return false
	case 1:
		return p.FormatCodes[0] == 1
	default:
		if i < len(p.FormatCodes) {
			return p.FormatCodes[i] == 1
		}
		return false
	}
}

// Config bundles everything a Session needs to translate and execute
// statements against one backend namespace.
type Config struct {
	Translator *translate.Translator
	Catalog    *catalog.Router
	Executor   backend.Executor
	Copy       *copyproto.Handler
	Namespace  string
	Log        *pgirislog.Logger
}

// Session is the per-connection controller: it owns the prepared
// statement/portal tables, the current transaction status, and the
// backend handle acquired for this connection's lifetime.
type Session struct {
	cfg   Config
	auth  *auth.Session
	codec *wire.Codec

	mu       sync.Mutex
	prepared map[string]*PreparedStatement
	portals  map[string]*Portal
	txStatus translate.TxStatus
	handle   backend.Handle
}

func New(cfg Config, authSession *auth.Session, codec *wire.Codec) *Session {
	if cfg.Log == nil {
		cfg.Log = pgirislog.Default()
	}
	return &Session{
		cfg:      cfg,
		auth:     authSession,
		codec:    codec,
		prepared: make(map[string]*PreparedStatement),
		portals:  make(map[string]*Portal),
		txStatus: translate.TxIdle,
	}
}

// Run drives the session loop until the client disconnects or sends
// Terminate, dispatching each frontend message to the Simple Query or
// Extended Protocol Engine handler.
func (s *Session) Run(ctx context.Context, onHandleAcquired func(backend.Handle)) error {
	h, err := s.cfg.Executor.Acquire(ctx, s.cfg.Namespace)
	if err != nil {
		return err
	}
	s.handle = h
	if onHandleAcquired != nil {
		onHandleAcquired(h)
	}
	defer s.cfg.Executor.Release(h)

	for {
		msg, err := s.codec.Receive()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto3.Query:
			if err := s.handleQuery(ctx, m); err != nil {
				s.sendError(err)
				s.sendReady()
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Parse:
			if err := s.handleParse(ctx, m); err != nil {
				s.sendError(err)
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Bind:
			if err := s.handleBind(m); err != nil {
				s.sendError(err)
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Describe:
			if err := s.handleDescribe(m); err != nil {
				s.sendError(err)
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Execute:
			if err := s.handleExecute(ctx, m); err != nil {
				s.sendError(err)
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Close:
			if err := s.handleClose(m); err != nil {
				s.sendError(err)
				if err := s.codec.Flush(); err != nil {
					return err
				}
			}
		case *pgproto3.Sync:
			s.sendReady()
			if err := s.codec.Flush(); err != nil {
				return err
			}
		case *pgproto3.Flush:
			if err := s.codec.Flush(); err != nil {
				return err
			}
		case *pgproto3.Terminate:
			return nil
		default:
			s.sendError(pgiriserrors.New(pgiriserrors.KindProtocolViolation, "unsupported message type").Err())
			if err := s.codec.Flush(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) sendError(err error) {
	code := pgiriserrors.GetSQLState(err)
	s.txStatus = translate.NextTxStatus(s.txStatus, false, false, true)
	s.codec.Send(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     code,
		Message:  err.Error(),
	})
	s.cfg.Log.Protocol().Warn("statement error", "sqlstate", code, "error", err.Error())
}

func (s *Session) sendReady() {
	s.codec.Send(&pgproto3.ReadyForQuery{TxStatus: byte(s.txStatus)})
}

func (s *Session) deletePrepared(name string) {
	s.mu.Lock()
	delete(s.prepared, name)
	s.mu.Unlock()
}

func (s *Session) deletePortal(name string) {
	s.mu.Lock()
	delete(s.portals, name)
	s.mu.Unlock()
}
