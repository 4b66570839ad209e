// Package transport provides the byte-oriented connection abstraction used
// by the S2S session FSM (spec §4.2): connect, send, STARTTLS upgrade, and
// close. Framing of the byte stream into XML events is done by
// internal/wire's Reader over Transport.Reader.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// Type identifies the underlying connection kind.
type Type int

const (
	Socket Type = iota
	TLSSocket
)

// Transport is the connection-level collaborator the S2S session drives. It
// wraps a net.Conn (optionally TLS-upgraded) with a bounded send timeout and
// a STARTTLS upgrade path, per spec §4.2.
type Transport interface {
	// Type reports whether the connection currently runs in the clear or
	// over TLS.
	Type() Type

	// Send writes b, bounded by the configured send-timeout (default
	// 15s); on timeout the caller should fail the owning session.
	Send(b []byte) error

	// StartTLS upgrades the connection in place using cfg; subsequent
	// Send/Read calls run over TLS.
	StartTLS(cfg *tls.Config) error

	// Close tears down the underlying connection.
	Close() error

	// Reader exposes the underlying io.Reader for the stream codec.
	Reader() net.Conn
}

// DialOptions configures Connect, spec §4.2 "configurable outgoing local
// address."
type DialOptions struct {
	LocalAddress string
	Timeout      time.Duration
}

// Connect dials network address addr:port, optionally binding to a local
// address, honoring ctx's deadline in addition to opts.Timeout.
func Connect(ctx context.Context, addr string, port uint16, opts DialOptions) (Transport, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	if opts.LocalAddress != "" && opts.LocalAddress != "0.0.0.0" && opts.LocalAddress != "[::]" {
		if lip := net.ParseIP(opts.LocalAddress); lip != nil {
			d.LocalAddr = &net.TCPAddr{IP: lip}
		}
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}
	return newSocketTransport(conn, 15*time.Second), nil
}
