// Package pump turns a blocking net.Conn into a non-blocking
// transport.Transport. One goroutine reads from the connection into a
// bounded inbound buffer, another drains a bounded outbound buffer into it.
package pump

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"dominicbreuker/nbtls/pkg/transport"
)

// DefaultBufferSize bounds both the inbound and outbound buffers.
const DefaultBufferSize = 64 * 1024

// lingerTimeout bounds how long Close waits for queued bytes to drain.
const lingerTimeout = 2 * time.Second

// Conn is a non-blocking transport backed by a blocking net.Conn.
type Conn struct {
	conn  net.Conn
	limit int
	fd    uintptr

	mu   sync.Mutex
	rbuf []byte
	rerr error
	wbuf []byte
	werr error

	readable chan struct{}
	writable chan struct{}
	drained  chan struct{}
	queued   chan struct{}

	closing    chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// New starts pumping conn with DefaultBufferSize buffers.
func New(conn net.Conn) *Conn {
	return NewSize(conn, DefaultBufferSize)
}

// NewSize starts pumping conn with buffers of the given size.
// Small sizes are useful to provoke partial writes.
func NewSize(conn net.Conn, size int) *Conn {
	if size <= 0 {
		size = DefaultBufferSize
	}

	c := &Conn{
		conn:       conn,
		limit:      size,
		fd:         rawFd(conn),
		readable:   make(chan struct{}, 1),
		writable:   make(chan struct{}, 1),
		drained:    make(chan struct{}, 1),
		queued:     make(chan struct{}, 1),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	return c
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func rawFd(conn net.Conn) uintptr {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return transport.NoFd
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return transport.NoFd
	}
	fd := transport.NoFd
	if err := raw.Control(func(s uintptr) { fd = s }); err != nil {
		return transport.NoFd
	}
	return fd
}

func (c *Conn) readLoop() {
	buf := make([]byte, c.limit)
	for {
		c.mu.Lock()
		for len(c.rbuf) >= c.limit {
			c.mu.Unlock()
			select {
			case <-c.drained:
			case <-c.closing:
				return
			}
			c.mu.Lock()
		}
		room := c.limit - len(c.rbuf)
		c.mu.Unlock()

		n, err := c.conn.Read(buf[:room])

		c.mu.Lock()
		c.rbuf = append(c.rbuf, buf[:n]...)
		if err != nil {
			c.rerr = err
		}
		c.mu.Unlock()
		notify(c.readable)

		if err != nil {
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		c.mu.Lock()
		chunk := c.wbuf
		c.mu.Unlock()

		if len(chunk) == 0 {
			select {
			case <-c.queued:
				continue
			case <-c.closing:
				c.mu.Lock()
				empty := len(c.wbuf) == 0
				c.mu.Unlock()
				if empty {
					return
				}
				continue
			}
		}

		n, err := c.conn.Write(chunk)

		c.mu.Lock()
		c.wbuf = c.wbuf[n:]
		if len(c.wbuf) == 0 {
			c.wbuf = nil
		}
		if err != nil {
			c.werr = err
		}
		c.mu.Unlock()
		notify(c.writable)

		if err != nil {
			return
		}
	}
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// TryRead implements transport.Transport.
func (c *Conn) TryRead(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.isClosing() {
		return 0, net.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.rbuf) > 0 {
		n := copy(p, c.rbuf)
		c.rbuf = c.rbuf[n:]
		notify(c.drained)
		return n, nil
	}
	if c.rerr != nil {
		return 0, c.rerr
	}
	return 0, transport.ErrWouldBlock
}

// TryWrite implements transport.Transport.
func (c *Conn) TryWrite(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.isClosing() {
		return 0, net.ErrClosed
	}

	c.mu.Lock()
	if c.werr != nil {
		err := c.werr
		c.mu.Unlock()
		return 0, err
	}
	room := c.limit - len(c.wbuf)
	if room <= 0 {
		c.mu.Unlock()
		return 0, transport.ErrWouldBlock
	}
	n := min(room, len(p))
	c.wbuf = append(c.wbuf, p[:n]...)
	c.mu.Unlock()
	notify(c.queued)

	if n < len(p) {
		return n, transport.ErrWouldBlock
	}
	return n, nil
}

// WaitReadable implements transport.Transport.
func (c *Conn) WaitReadable(ctx context.Context) error {
	for {
		c.mu.Lock()
		ready := len(c.rbuf) > 0 || c.rerr != nil
		c.mu.Unlock()
		if ready {
			return nil
		}

		select {
		case <-c.readable:
		case <-c.closing:
			return net.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitWritable implements transport.Transport.
func (c *Conn) WaitWritable(ctx context.Context) error {
	for {
		c.mu.Lock()
		ready := c.werr != nil || len(c.wbuf) < c.limit
		c.mu.Unlock()
		if ready {
			return nil
		}

		select {
		case <-c.writable:
		case <-c.closing:
			return net.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Fd implements transport.Transport.
func (c *Conn) Fd() uintptr {
	return c.fd
}

// Close stops the pumps and closes the connection. Bytes already accepted
// by TryWrite get a short grace period to reach the connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.conn.SetWriteDeadline(time.Now().Add(lingerTimeout))
		<-c.writerDone
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
