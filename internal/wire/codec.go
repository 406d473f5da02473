// Package wire implements the Frame Codec: the thin layer between a raw
// TCP connection and the PostgreSQL wire protocol message types, wrapping
// jackc/pgx/v5/pgproto3's Backend for message encode/decode. It owns
// SSLRequest detection and enforcement of the maximum-frame-size ceiling
//.
package wire

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgproto3"

	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// DefaultMaxMessageSize is the practical ceiling applied to any single
// incoming message body, enforced through pgproto3's message size limit;
// it exists to fail fast on a runaway length prefix before allocating a
// buffer for it.
const DefaultMaxMessageSize = 256 << 20 // 256 MiB

// HardMessageSizeCeiling is never exceeded regardless of configuration.
const HardMessageSizeCeiling = 2 << 30 // 2 GiB

// Codec wraps a single client connection's pgproto3.Backend, tracking
// the configured maximum message size and exposing Send/Receive in terms
// of pgproto3's typed messages rather than raw bytes.
type Codec struct {
	conn    net.Conn
	backend *pgproto3.Backend
	maxSize int
}

// NewCodec constructs a Codec around conn with maxSize as the frame size
// ceiling; maxSize is clamped to HardMessageSizeCeiling and defaulted to
// DefaultMaxMessageSize when zero.
func NewCodec(conn net.Conn, maxSize int) *Codec {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if maxSize > HardMessageSizeCeiling {
		maxSize = HardMessageSizeCeiling
	}
	reader := bufio.NewReader(conn)
	backend := pgproto3.NewBackend(reader, conn)
	backend.SetMessageSizeLimit(maxSize)
	return &Codec{conn: conn, backend: backend, maxSize: maxSize}
}

// ReceiveStartupMessage reads the very first message on the connection,
// which uses the length-prefixed-but-untagged startup wire format shared
// by SSLRequest, GSSENCRequest, CancelRequest, and StartupMessage.
func (c *Codec) ReceiveStartupMessage() (pgproto3.FrontendMessage, error) {
	msg, err := c.backend.ReceiveStartupMessage()
	if err != nil {
		return nil, translateReceiveErr(err)
	}
	return msg, nil
}

// Receive reads the next tagged frontend message.
func (c *Codec) Receive() (pgproto3.FrontendMessage, error) {
	msg, err := c.backend.Receive()
	if err != nil {
		return nil, translateReceiveErr(err)
	}
	return msg, nil
}

// Send queues a backend message for writing; call Flush to push it to
// the wire. pgproto3.Backend buffers internally so a sequence of
// Send calls followed by one Flush is cheaper than flushing after each.
func (c *Codec) Send(msg pgproto3.BackendMessage) {
	c.backend.Send(msg)
}

// Flush writes any buffered backend messages to the connection.
func (c *Codec) Flush() error {
	if err := c.backend.Flush(); err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindProtocolViolation, "flush failed").
			WithOp("wire.Codec.Flush").
			Err()
	}
	return nil
}

// SetAuthType informs pgproto3 which SASL/password flow is in progress so
// it can correctly decode the client's next message as a
// PasswordMessage/SASLInitialResponse/SASLResponse rather than a generic
// query message.
func (c *Codec) SetAuthType(authType uint32) {
	c.backend.SetAuthType(authType)
}

// AcceptSSL replies 'S' to the client's SSLRequest and then performs a
// server-side TLS handshake over the same connection, rebuilding the
// pgproto3.Backend on top of the upgraded conn. Callers
// that have no tlsConfig should call RejectSSL instead.
func (c *Codec) AcceptSSL(tlsConfig *tls.Config) error {
	if _, err := c.conn.Write([]byte{sslResponseAccept}); err != nil {
		return err
	}
	tlsConn := tls.Server(c.conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return pgiriserrors.Wrap(err, pgiriserrors.KindProtocolViolation, "TLS handshake failed").
			WithOp("wire.Codec.AcceptSSL").Err()
	}
	c.conn = tlsConn
	reader := bufio.NewReader(tlsConn)
	c.backend = pgproto3.NewBackend(reader, tlsConn)
	c.backend.SetMessageSizeLimit(c.maxSize)
	return nil
}

// RemoteAddr exposes the underlying connection's remote address for
// logging and pg_stat_activity-equivalent bookkeeping.
func (c *Codec) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}

func translateReceiveErr(err error) error {
	if err == io.EOF {
		return err
	}
	return pgiriserrors.Wrap(err, pgiriserrors.KindProtocolViolation, "receive failed").
		WithOp("wire.Codec.Receive").
		Err()
}
