// Package auth implements the Authenticator: the SSL probe
// reply, StartupMessage validation, the trust/cleartext/SCRAM-SHA-256
// authentication methods, the post-auth ParameterStatus/BackendKeyData/
// ReadyForQuery sequence, and a pluggable AuthMethod seam for optional
// OAuth/GSSAPI bridges.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/ha1tch/pgiris/internal/wire"
	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
	"github.com/ha1tch/pgiris/pkg/version"
)

// Method names the authentication policy selected by configuration.
type Method string

const (
	MethodTrust     Method = "trust"
	MethodCleartext Method = "cleartext"
	MethodScram     Method = "scram-sha-256"
)

// PasswordLookup resolves the backend credential for a startup user; a
// cleartext or SCRAM handshake is verified against whatever it returns.
// ok is false when the user is unknown.
type PasswordLookup func(user string) (password string, ok bool)

// AuthMethod is the pluggable seam a future OAuth or GSSAPI bridge
// implements in place of the built-in methods. It is invoked after
// StartupMessage is parsed and before AuthenticationOk.
type AuthMethod interface {
	Name() string
	Authenticate(ctx context.Context, codec *wire.Codec, user string) error
}

// Config selects the authentication policy and its timeouts.
type Config struct {
	Method          Method
	Passwords       PasswordLookup
	HandshakeTimeout time.Duration // default 5s
	ServerVersion   string

	// TLSConfig, when non-nil, makes AcceptSSL available: pgiris
	// terminates TLS itself using a certificate from pkg/tlsutil. A nil
	// TLSConfig means SSLRequest is always answered 'N', leaving TLS
	// termination to a proxy in front of the listener.
	TLSConfig *tls.Config

	// Extra lists additional pluggable methods (OAuth/GSSAPI bridges);
	// nil by default, since none ship in this module. Handshake does not
	// invoke these entries: every client is authenticated with the
	// built-in Method whatever Extra holds.
	Extra []AuthMethod
}

func DefaultConfig() Config {
	return Config{
		Method:           MethodTrust,
		HandshakeTimeout: 5 * time.Second,
		ServerVersion:    version.ServerVersion,
	}
}

// Session is the outcome of a completed handshake: the authenticated
// user, the requested database (mapped to the backend namespace
// upstream), and the cancellation key the Listener/Supervisor indexes
// cancel requests by.
type Session struct {
	User       string
	Database   string
	ProcessID  uint32
	SecretKey  uint32
}

// Authenticator drives the handshake state machine: SSLProbe ->
// StartupReceived -> AuthMethodChosen -> (SCRAMInProgress | ClearText |
// Trust) -> AuthOk -> EmitParameters -> EmitBackendKey -> Ready.
type Authenticator struct {
	cfg Config
	log *pgirislog.Logger
}

func New(cfg Config, log *pgirislog.Logger) *Authenticator {
	if log == nil {
		log = pgirislog.Default()
	}
	return &Authenticator{cfg: cfg, log: log}
}

// HandleSSLProbe replies 'S' when TLS is configured and available, 'N'
// otherwise, and is a no-op (returns false) when the first message was
// not actually an SSL probe.
func (a *Authenticator) HandleSSLProbe(codec *wire.Codec, msg pgproto3.FrontendMessage) (handled bool, err error) {
	if _, ok := msg.(*pgproto3.SSLRequest); !ok {
		return false, nil
	}
	if a.cfg.TLSConfig != nil {
		err = codec.AcceptSSL(a.cfg.TLSConfig)
	} else {
		err = codec.RejectSSL()
	}
	return true, err
}

// Handshake runs StartupReceived through Ready, given the
// already-parsed StartupMessage. It returns the authenticated Session or
// a KindAuthenticationFailure/KindProtocolViolation error.
func (a *Authenticator) Handshake(ctx context.Context, codec *wire.Codec, startup *pgproto3.StartupMessage) (*Session, error) {
	timeout := a.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user := startup.Parameters["user"]
	if user == "" {
		return nil, pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "no user specified in startup message").
			WithOp("auth.Handshake").Err()
	}
	database := startup.Parameters["database"]
	if database == "" {
		database = user
	}

	if err := a.authenticate(ctx, codec, user); err != nil {
		return nil, err
	}

	codec.Send(&pgproto3.AuthenticationOK{})

	for name, value := range a.parameterStatus() {
		codec.Send(&pgproto3.ParameterStatus{Name: name, Value: value})
	}

	pid, secret, err := randomBackendKey()
	if err != nil {
		return nil, pgiriserrors.Wrap(err, pgiriserrors.KindInternal, "generating backend key").Err()
	}
	codec.Send(&pgproto3.BackendKeyData{ProcessID: pid, SecretKey: secret})
	codec.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	if err := codec.Flush(); err != nil {
		return nil, err
	}

	a.log.Audit().Info("authentication succeeded", "user", user, "database", database, "method", string(a.cfg.Method))
	return &Session{User: user, Database: database, ProcessID: pid, SecretKey: secret}, nil
}

func (a *Authenticator) authenticate(ctx context.Context, codec *wire.Codec, user string) error {
	for _, extra := range a.cfg.Extra {
		_ = extra // reserved dispatch point: a real bridge would be selected here by client-advertised mechanism
	}

	switch a.cfg.Method {
	case MethodTrust:
		return nil
	case MethodCleartext:
		return a.cleartext(ctx, codec, user)
	case MethodScram:
		return a.scram(ctx, codec, user)
	default:
		return pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "unknown authentication method").
			WithDetail(string(a.cfg.Method)).Err()
	}
}

func (a *Authenticator) lookupPassword(user string) (string, error) {
	if a.cfg.Passwords == nil {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "no password lookup configured").Err()
	}
	pw, ok := a.cfg.Passwords(user)
	if !ok {
		a.log.Audit().Warn("authentication failed: unknown user", "user", user)
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "password authentication failed").
			WithDetail(user).Err()
	}
	return pw, nil
}

func (a *Authenticator) cleartext(ctx context.Context, codec *wire.Codec, user string) error {
	expected, err := a.lookupPassword(user)
	if err != nil {
		return err
	}
	codec.SetAuthType(pgproto3.AuthTypeCleartextPassword)
	codec.Send(&pgproto3.AuthenticationCleartextPassword{})
	if err := codec.Flush(); err != nil {
		return err
	}

	msg, err := a.receive(ctx, codec)
	if err != nil {
		return err
	}
	pwMsg, ok := msg.(*pgproto3.PasswordMessage)
	if !ok {
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "expected PasswordMessage").Err()
	}
	if pwMsg.Password != expected {
		a.log.Audit().Warn("authentication failed: bad password", "user", user)
		return pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "password authentication failed").Err()
	}
	return nil
}

func (a *Authenticator) scram(ctx context.Context, codec *wire.Codec, user string) error {
	expected, err := a.lookupPassword(user)
	if err != nil {
		return err
	}
	codec.SetAuthType(pgproto3.AuthTypeSASL)
	codec.Send(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{Mechanism}})
	if err := codec.Flush(); err != nil {
		return err
	}

	initial, err := a.receive(ctx, codec)
	if err != nil {
		return err
	}
	initMsg, ok := initial.(*pgproto3.SASLInitialResponse)
	if !ok {
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "expected SASLInitialResponse").Err()
	}
	if initMsg.AuthMechanism != Mechanism {
		return pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "unsupported SASL mechanism").
			WithDetail(initMsg.AuthMechanism).Err()
	}

	server := NewScramServer(expected)
	serverFirst, err := server.ClientFirst(string(initMsg.Data))
	if err != nil {
		a.log.Audit().Warn("authentication failed: malformed SCRAM client-first", "user", user, "error", err)
		return err
	}
	codec.Send(&pgproto3.AuthenticationSASLContinue{Data: []byte(serverFirst)})
	if err := codec.Flush(); err != nil {
		return err
	}

	final, err := a.receive(ctx, codec)
	if err != nil {
		return err
	}
	finalMsg, ok := final.(*pgproto3.SASLResponse)
	if !ok {
		return pgiriserrors.New(pgiriserrors.KindProtocolViolation, "expected SASLResponse").Err()
	}
	serverFinal, err := server.ClientFinal(string(finalMsg.Data))
	if err != nil {
		a.log.Audit().Warn("authentication failed: SCRAM proof rejected", "user", user, "error", err)
		return err
	}
	codec.Send(&pgproto3.AuthenticationSASLFinal{Data: []byte(serverFinal)})
	return nil
}

// receive enforces the handshake-scoped context deadline around a single
// codec read; pgproto3's Receive itself has no context parameter, so a
// background goroutine races it against ctx.Done().
func (a *Authenticator) receive(ctx context.Context, codec *wire.Codec) (pgproto3.FrontendMessage, error) {
	type result struct {
		msg pgproto3.FrontendMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := codec.Receive()
		ch <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		return nil, pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "authentication handshake timed out").
			WithCode("08P01").Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.msg, nil
	}
}

// parameterStatus is the fixed set of ParameterStatus frames a client
// expects after AuthenticationOk.
func (a *Authenticator) parameterStatus() map[string]string {
	sv := a.cfg.ServerVersion
	if sv == "" {
		sv = version.ServerVersion
	}
	return map[string]string{
		"server_version":             sv,
		"server_encoding":            "UTF8",
		"client_encoding":            "UTF8",
		"DateStyle":                  "ISO, MDY",
		"TimeZone":                   "UTC",
		"integer_datetimes":          "on",
		"standard_conforming_strings": "on",
	}
}

func randomBackendKey() (pid, secret uint32, err error) {
	var buf [8]byte
	if _, err = rand.Read(buf[:]); err != nil {
		return 0, 0, err
	}
	pid = binary.BigEndian.Uint32(buf[0:4])
	secret = binary.BigEndian.Uint32(buf[4:8])
	return pid, secret, nil
}
