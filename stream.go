package plume

import (
	"crypto/tls"
	"io"
	"net"
	"os"
	"time"

	"github.com/synqronlabs/plume/utils"
)

// Stream is the ordered byte transport a session runs over. The engine never
// touches certificates or sockets directly; everything it needs is read,
// write and the optional capabilities below.
type Stream = io.ReadWriter

// StartTLSStream is a Stream that can be upgraded to TLS in place. After a
// successful upgrade the previous Stream must not be used again.
type StartTLSStream interface {
	Stream
	StartTLS(config *tls.Config) (Stream, error)
}

// deadlineStream is a Stream with per-read deadlines, used for command
// timeouts when the transport supports them.
type deadlineStream interface {
	SetReadDeadline(t time.Time) error
}

// NetStream adapts a net.Conn, adding the TLS upgrade capability.
type NetStream struct {
	net.Conn
}

// NewNetStream wraps conn.
func NewNetStream(conn net.Conn) *NetStream {
	return &NetStream{Conn: conn}
}

// StartTLS performs the server-side TLS handshake over the wrapped
// connection and returns the upgraded stream.
func (s *NetStream) StartTLS(config *tls.Config) (Stream, error) {
	tlsConn := tls.Server(s.Conn, config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, err
	}
	return &NetStream{Conn: tlsConn}, nil
}

// RemoteIP returns the peer IP, or nil if the address cannot be parsed.
func (s *NetStream) RemoteIP() net.IP {
	ip, err := utils.GetIPFromAddr(s.Conn.RemoteAddr())
	if err != nil {
		return nil
	}
	return ip
}

// Stdio is a Stream over stdin/stdout for inetd-style single-shot
// invocations. It cannot expose a peer address; the invocation context
// supplies one explicitly when needed.
type Stdio struct{}

func (Stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (Stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
