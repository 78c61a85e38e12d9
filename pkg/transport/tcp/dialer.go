// Package tcp provides the TCP transport. Connections are driven through
// Go's netpoller in non-blocking mode and implement transport.Transport.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/transport"
)

const keepAlivePeriod = 30 * time.Second

// Dialer implements the transport.Dialer interface for TCP connections.
type Dialer struct {
	tcpAddr  *net.TCPAddr
	dialerFn config.TCPDialerFunc
}

// NewDialer creates a new TCP dialer for the specified address.
// The deps parameter is optional and can be nil to use default implementations.
func NewDialer(addr string, deps *config.Dependencies) (*Dialer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	return &Dialer{
		tcpAddr:  tcpAddr,
		dialerFn: config.GetTCPDialerFunc(deps),
	}, nil
}

// Dial establishes a TCP connection to the configured address with keep-alive
// enabled and returns it as a non-blocking transport.
func (d *Dialer) Dial(ctx context.Context) (transport.Transport, error) {
	conn, err := d.dialerFn(ctx, "tcp", d.tcpAddr.String())
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", d.tcpAddr.String(), err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
	}

	t, err := Wrap(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wrap tcp %s: %w", d.tcpAddr.String(), err)
	}
	return t, nil
}
