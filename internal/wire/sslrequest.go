package wire

// SSL negotiation happens before any tagged message and uses a single
// unframed byte reply, so it sits outside pgproto3's typed message
// vocabulary entirely. A deployment with no certificate configured just
// answers 'N' and leaves TLS termination to a proxy in front of the
// listener; AcceptSSL in codec.go covers the case where pgiris terminates
// TLS itself using pkg/tlsutil.
const (
	sslResponseDeny    = 'N'
	sslResponseAccept  = 'S'
)

// RejectSSL replies to a client's SSLRequest with 'N', telling it to
// continue the handshake over the plain connection.
func (c *Codec) RejectSSL() error {
	_, err := c.conn.Write([]byte{sslResponseDeny})
	return err
}
