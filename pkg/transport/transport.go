// Package transport defines the non-blocking byte transport the TLS bridge
// runs on, and provides implementations for tcp, ws/wss and udp (KCP).
//
// A Transport never blocks in TryRead or TryWrite:
//   - data available / space available: the call completes (a write may be partial)
//   - not ready: the call returns ErrWouldBlock (after the accepted count, for writes)
//   - anything else is fatal for the transport
//
// Readiness is awaited with WaitReadable / WaitWritable, which park the
// calling goroutine until the direction is ready, the transport is closed or
// the context is done.
//
// Implementations:
//   - tcp: Go's netpoller through syscall.RawConn and golang.org/x/sys/unix
//   - pump: any blocking net.Conn, buffered by one reader and one writer goroutine
//   - ws: coder/websocket connections on top of pump
//   - udp: KCP sessions (xtaci/kcp-go) on top of pump
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrWouldBlock reports that an operation cannot make progress until the
// transport becomes ready. It is never fatal.
var ErrWouldBlock = errors.New("operation would block")

// NoFd is returned by Fd when a transport has no OS-level descriptor.
const NoFd = ^uintptr(0)

// Transport is a non-blocking bidirectional byte transport.
type Transport interface {
	// TryRead reads available bytes into p or returns ErrWouldBlock.
	// io.EOF reports an orderly shutdown by the peer.
	TryRead(p []byte) (int, error)
	// TryWrite writes as much of p as the transport accepts right now.
	// If not all of p was accepted, the count is returned with ErrWouldBlock.
	TryWrite(p []byte) (int, error)
	// WaitReadable blocks until TryRead can make progress.
	WaitReadable(ctx context.Context) error
	// WaitWritable blocks until TryWrite can make progress.
	WaitWritable(ctx context.Context) error
	// Fd returns the raw descriptor, or NoFd.
	Fd() uintptr
	// Close releases the transport and wakes all waiters.
	Close() error
}

// Dialer establishes outbound transports.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// Descriptor identifies a transport for bookkeeping such as readiness
// registration or diagnostics. It carries no ownership; never do I/O on Fd.
type Descriptor struct {
	Fd      uintptr
	Network string
	Addr    string
}

// Describe returns the descriptor of t.
func Describe(t Transport, network, addr string) Descriptor {
	return Descriptor{
		Fd:      t.Fd(),
		Network: network,
		Addr:    addr,
	}
}

// String formats the descriptor for logs.
func (d Descriptor) String() string {
	if d.Fd == NoFd {
		return fmt.Sprintf("%s://%s (no fd)", d.Network, d.Addr)
	}
	return fmt.Sprintf("%s://%s (fd %d)", d.Network, d.Addr, d.Fd)
}
