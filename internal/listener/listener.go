// Package listener implements the TCP accept loop and per-connection
// lifecycle: SSL probe, StartupMessage, authentication, the session
// loop, and cancellation-request dispatch. The
// Start/Stop/acceptLoop/handleConnection shape is grounded directly on
// pkg/server/server.go's State machine and accept loop, adapted from its
// protocol.Listener abstraction to a plain net.Listener since this
// module speaks exactly one wire protocol.
package listener

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/auth"
	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/catalog"
	"github.com/ha1tch/pgiris/internal/copyproto"
	"github.com/ha1tch/pgiris/internal/session"
	"github.com/ha1tch/pgiris/internal/translate"
	"github.com/ha1tch/pgiris/internal/wire"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
)

// State tracks the listener's lifecycle.
type State int

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateStopped
)

// Config bundles everything the Listener needs to authenticate and serve
// a connection.
type Config struct {
	Addr             string
	MaxMessageSize   int
	ShutdownGrace    time.Duration
	Auth             auth.Config
	Translator       translate.Config
	Namespace        string
	NewExecutor      func() (backend.Executor, error)
	CatalogGenerator *catalog.Generator
	CatalogSource    catalog.MetadataSource
	Log              *pgirislog.Logger
}

func DefaultConfig() Config {
	return Config{
		Addr:          ":5432",
		ShutdownGrace: 30 * time.Second,
		Auth:          auth.DefaultConfig(),
		Translator:    translate.DefaultConfig(),
		Namespace:     "public",
	}
}

// Listener owns the TCP socket, the shared Executor, and the per-
// connection cancellation-key registry: a (pid,secret) pair looked up
// from a CancelRequest maps to an in-flight backend statement so it can
// be cancelled.
type Listener struct {
	cfg Config
	log *pgirislog.Logger

	exec     backend.Executor
	authn    *auth.Authenticator
	emulator *catalog.Emulator
	router   *catalog.Router

	ln net.Listener

	mu        sync.RWMutex
	state     State
	cancelMap map[cancelKey]backend.Handle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cancelKey struct {
	pid    uint32
	secret uint32
}

func New(cfg Config) (*Listener, error) {
	if cfg.Log == nil {
		cfg.Log = pgirislog.Default()
	}
	exec, err := cfg.NewExecutor()
	if err != nil {
		return nil, err
	}

	l := &Listener{
		cfg:       cfg,
		log:       cfg.Log,
		exec:      exec,
		authn:     auth.New(cfg.Auth, cfg.Log),
		cancelMap: make(map[cancelKey]backend.Handle),
		state:     StateNew,
	}
	if cfg.CatalogGenerator != nil && cfg.CatalogSource != nil {
		l.emulator = catalog.NewEmulator(cfg.CatalogGenerator, cfg.CatalogSource, 0)
		l.router = catalog.NewRouter(cfg.CatalogGenerator, l.emulator, cfg.Namespace)
	}
	return l, nil
}

// Start binds the listening socket and launches the accept loop in a
// background goroutine; it returns once the socket is bound.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateNew {
		l.mu.Unlock()
		return pgiriserrors.New(pgiriserrors.KindInternal, "listener cannot start twice").Err()
	}
	l.state = StateRunning
	l.mu.Unlock()

	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindInternal, "binding listen socket").
			WithDetail(l.cfg.Addr).Err()
	}
	l.ln = ln
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.log.Backend().Info("listener started", "addr", ln.Addr().String())

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop()
	}()
	return nil
}

// Stop signals the accept loop and every in-flight session to wind down,
// waiting up to ShutdownGrace for them to finish.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return nil
	}
	l.state = StateStopping
	l.mu.Unlock()

	l.cancel()
	if l.ln != nil {
		l.ln.Close()
	}

	grace := l.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		l.log.Backend().Warn("shutdown grace period elapsed with sessions still active")
	}

	err := l.exec.Close()

	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
	l.log.Backend().Info("listener stopped")
	return err
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				if err != io.EOF && !isTemporaryNetError(err) {
					l.log.Backend().Error("accept failed", err)
				}
				continue
			}
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(conn)
		}()
	}
}

func isTemporaryNetError(err error) bool {
	return err.Error() == "use of closed network connection"
}

// handleConnection runs the SSL probe, StartupMessage, cancel-request
// dispatch, and authentication handshake, then hands off to a Session
// for the lifetime of the connection.
func (l *Listener) handleConnection(conn net.Conn) {
	defer conn.Close()

	codec := wire.NewCodec(conn, l.cfg.MaxMessageSize)

	startupMsg, err := codec.ReceiveStartupMessage()
	if err != nil {
		l.log.Protocol().Warn("startup read failed", "remote", conn.RemoteAddr().String(), "error", err.Error())
		return
	}

	if handled, err := l.authn.HandleSSLProbe(codec, startupMsg); handled {
		if err != nil {
			l.log.Protocol().Warn("SSL negotiation failed", "remote", conn.RemoteAddr().String(), "error", err.Error())
			return
		}
		startupMsg, err = codec.ReceiveStartupMessage()
		if err != nil {
			l.log.Protocol().Warn("post-SSL startup read failed", "error", err.Error())
			return
		}
	}

	if cancel, ok := startupMsg.(*pgproto3.CancelRequest); ok {
		l.dispatchCancel(cancel)
		return
	}

	startup, ok := startupMsg.(*pgproto3.StartupMessage)
	if !ok {
		l.log.Protocol().Warn("unexpected first message", "type", "unknown")
		return
	}

	authSession, err := l.authn.Handshake(l.ctx, codec, startup)
	if err != nil {
		codec.Send(&pgproto3.ErrorResponse{Severity: "FATAL", Code: pgiriserrors.GetSQLState(err), Message: err.Error()})
		codec.Flush()
		return
	}

	translator := translate.NewTranslator(l.cfg.Translator)
	copyHandler := copyproto.New(l.exec, l.log)

	sess := session.New(session.Config{
		Translator: translator,
		Catalog:    l.router,
		Executor:   l.exec,
		Copy:       copyHandler,
		Namespace:  authSession.Database,
		Log:        l.log,
	}, authSession, codec)

	key := cancelKey{pid: authSession.ProcessID, secret: authSession.SecretKey}
	defer l.unregisterCancelTarget(key)

	onHandleAcquired := func(h backend.Handle) {
		l.mu.Lock()
		l.cancelMap[key] = h
		l.mu.Unlock()
	}

	if err := sess.Run(l.ctx, onHandleAcquired); err != nil && err != io.EOF {
		l.log.Protocol().Warn("session ended with error", "user", authSession.User, "error", err.Error())
	}
}

func (l *Listener) unregisterCancelTarget(key cancelKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cancelMap, key)
}

// dispatchCancel looks up the backend handle for the (pid,secret) pair a
// CancelRequest carries and asks the backend to cancel whatever
// statement it is currently running. A cancel request that
// names an unknown key is silently ignored, matching real PostgreSQL's
// behavior of never acknowledging CancelRequest on the wire.
func (l *Listener) dispatchCancel(req *pgproto3.CancelRequest) {
	key := cancelKey{pid: req.ProcessID, secret: req.SecretKey}
	l.mu.RLock()
	h, ok := l.cancelMap[key]
	l.mu.RUnlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Cancel(ctx); err != nil {
		l.log.Backend().Warn("cancel dispatch failed", "error", err.Error())
	}
}
