package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// socketTransport is the default Transport implementation: a TCP
// connection, optionally wrapped in TLS after a STARTTLS upgrade.
type socketTransport struct {
	conn        net.Conn
	sendTimeout time.Duration
	typ         Type
}

func newSocketTransport(conn net.Conn, sendTimeout time.Duration) *socketTransport {
	return &socketTransport{conn: conn, sendTimeout: sendTimeout, typ: Socket}
}

// NewSocketTransport wraps an already-established net.Conn, e.g. handed in
// by a test harness or an accept loop.
func NewSocketTransport(conn net.Conn, sendTimeout time.Duration) Transport {
	if sendTimeout == 0 {
		sendTimeout = 15 * time.Second
	}
	return newSocketTransport(conn, sendTimeout)
}

func (s *socketTransport) Type() Type { return s.typ }

func (s *socketTransport) Send(b []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.sendTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(b)
	return err
}

func (s *socketTransport) StartTLS(cfg *tls.Config) error {
	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	s.conn = tlsConn
	s.typ = TLSSocket
	return nil
}

func (s *socketTransport) Close() error { return s.conn.Close() }

func (s *socketTransport) Reader() net.Conn { return s.conn }
