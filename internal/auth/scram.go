package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	pgiriserrors "github.com/ha1tch/pgiris/pkg/errors"
)

// Mechanism is the SASL mechanism name negotiated in AuthenticationSASL
//.
const Mechanism = "SCRAM-SHA-256"

const defaultIterations = 4096

// ScramServer drives one SCRAM-SHA-256 handshake (RFC 5802/7677) as the
// server side. No repo in the corpus ships a server-side SCRAM
// implementation; the mechanism is hand-assembled from
// golang.org/x/crypto/pbkdf2 plus stdlib crypto/hmac+crypto/sha256, per
// the dependency already promoted to direct use in go.mod for exactly
// this purpose (see DESIGN.md).
type ScramServer struct {
	password string

	clientFirstBare string
	serverFirst     string
	nonce           string
	salt            []byte
	iterations      int

	saltedPassword []byte
}

// NewScramServer begins a handshake that will authenticate against
// password (the plaintext backend credential looked up for the startup
// user).
func NewScramServer(password string) *ScramServer {
	return &ScramServer{password: password}
}

// ClientFirst parses the client-first-message ("n,,n=user,r=<nonce>") and
// returns the server-first-message carrying the combined nonce, a fresh
// salt, and the iteration count.
func (s *ScramServer) ClientFirst(msg string) (string, error) {
	parts, err := parseAttrs(msg)
	if err != nil {
		return "", err
	}
	clientNonce, ok := parts["r"]
	if !ok {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "SCRAM client-first missing nonce").Err()
	}
	s.clientFirstBare = stripGS2Header(msg)

	serverNonceSuffix, err := randomNonce()
	if err != nil {
		return "", err
	}
	s.nonce = clientNonce + serverNonceSuffix
	s.salt = make([]byte, 16)
	if _, err := rand.Read(s.salt); err != nil {
		return "", err
	}
	s.iterations = defaultIterations

	s.saltedPassword = pbkdf2.Key([]byte(s.password), s.salt, s.iterations, sha256.Size, sha256.New)

	s.serverFirst = fmt.Sprintf("r=%s,s=%s,i=%d",
		s.nonce, base64.StdEncoding.EncodeToString(s.salt), s.iterations)
	return s.serverFirst, nil
}

// ClientFinal verifies the client-final-message's proof and, if it
// matches, returns the server-final-message carrying the server
// signature.
func (s *ScramServer) ClientFinal(msg string) (string, error) {
	parts, err := parseAttrs(msg)
	if err != nil {
		return "", err
	}
	channelBinding, ok := parts["c"]
	if !ok {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "SCRAM client-final missing channel binding").Err()
	}
	nonce, ok := parts["r"]
	if !ok || nonce != s.nonce {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "SCRAM nonce mismatch").Err()
	}
	proofB64, ok := parts["p"]
	if !ok {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "SCRAM client-final missing proof").Err()
	}
	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return "", pgiriserrors.Wrap(err, pgiriserrors.KindAuthenticationFailure, "SCRAM proof is not valid base64").Err()
	}

	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + nonce
	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + clientFinalWithoutProof

	clientKey := hmacSHA256(s.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))

	computedClientKey := xorBytes(proof, clientSignature)
	computedStoredKey := sha256.Sum256(computedClientKey)
	if subtle.ConstantTimeCompare(computedStoredKey[:], storedKey[:]) != 1 {
		return "", pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "SCRAM proof verification failed").Err()
	}

	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}

func randomNonce() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// stripGS2Header removes the GS2 header ("n,," or "y,," or "p=...,") a
// client-first-message is prefixed with, returning the bare
// client-first-message-bare the auth message hash is computed over.
func stripGS2Header(msg string) string {
	if idx := strings.Index(msg, "n="); idx >= 0 {
		return msg[idx:]
	}
	return msg
}

// parseAttrs splits a comma-separated "k=v,k=v,..." SCRAM message into a
// map; values may themselves contain "=" (base64 padding), so each
// segment is split on the first "=" only.
func parseAttrs(msg string) (map[string]string, error) {
	out := make(map[string]string)
	for _, seg := range strings.Split(msg, ",") {
		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			continue
		}
		out[seg[:eq]] = seg[eq+1:]
	}
	if len(out) == 0 {
		return nil, pgiriserrors.New(pgiriserrors.KindAuthenticationFailure, "malformed SCRAM message").WithDetail(msg).Err()
	}
	return out, nil
}
