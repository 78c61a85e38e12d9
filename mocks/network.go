// Package mocks provides in-memory stand-ins for the network and the
// terminal, so commands and dialers can be tested without real sockets.
package mocks

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
)

// Network connects dialers to listeners through net.Pipe. Its DialContext
// fits config.Dependencies.TCPDialer.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*listener
	changed   chan struct{}
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		listeners: make(map[string]*listener),
		changed:   make(chan struct{}),
	}
}

// Listen creates a listener on addr, given as host:port.
func (n *Network) Listen(addr string) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	key := tcpAddr.String()
	if _, exists := n.listeners[key]; exists {
		return nil, &net.OpError{Op: "listen", Net: "tcp", Addr: tcpAddr, Err: syscall.EADDRINUSE}
	}

	l := &listener{
		addr:    tcpAddr,
		connCh:  make(chan net.Conn),
		closeCh: make(chan struct{}),
		network: n,
	}
	n.listeners[key] = l
	n.notify()

	return l, nil
}

// notify must be called with n.mu held.
func (n *Network) notify() {
	close(n.changed)
	n.changed = make(chan struct{})
}

// DialContext connects to the listener on addr. Only "tcp" networks are
// supported.
func (n *Network) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}

	raddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	l, exists := n.listeners[raddr.String()]
	n.mu.Unlock()

	if !exists {
		return nil, &net.OpError{Op: "dial", Net: network, Addr: raddr, Err: syscall.ECONNREFUSED}
	}

	clientConn, serverConn := net.Pipe()

	select {
	case l.connCh <- serverConn:
		return clientConn, nil
	case <-l.closeCh:
		clientConn.Close()
		serverConn.Close()
		return nil, &net.OpError{Op: "dial", Net: network, Addr: raddr, Err: syscall.ECONNREFUSED}
	case <-ctx.Done():
		clientConn.Close()
		serverConn.Close()
		return nil, ctx.Err()
	}
}

// WaitForListener blocks until a listener exists on addr or ctx ends.
func (n *Network) WaitForListener(ctx context.Context, addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}

	for {
		n.mu.Lock()
		_, exists := n.listeners[tcpAddr.String()]
		changed := n.changed
		n.mu.Unlock()

		if exists {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("waiting for listener on %s: %w", addr, ctx.Err())
		}
	}
}

type listener struct {
	addr    *net.TCPAddr
	connCh  chan net.Conn
	closeCh chan struct{}
	once    sync.Once
	network *Network
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

// Close removes the listener from its network.
func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)

		l.network.mu.Lock()
		delete(l.network.listeners, l.addr.String())
		l.network.notify()
		l.network.mu.Unlock()
	})
	return nil
}

func (l *listener) Addr() net.Addr {
	return l.addr
}

var _ net.Listener = (*listener)(nil)
