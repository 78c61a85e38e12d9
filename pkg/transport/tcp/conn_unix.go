//go:build unix

package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"dominicbreuker/nbtls/pkg/transport"
	"dominicbreuker/nbtls/pkg/transport/pump"

	"golang.org/x/sys/unix"
)

// aLongTimeAgo is a deadline in the past, used to interrupt waiters.
var aLongTimeAgo = time.Unix(1, 0)

// Conn is a non-blocking TCP transport. Reads and writes are single
// syscalls on the socket; waits park the goroutine on the netpoller.
type Conn struct {
	conn *net.TCPConn
	raw  syscall.RawConn
	fd   uintptr

	closeOnce sync.Once
	closeErr  error
}

// Wrap turns conn into a non-blocking transport. *net.TCPConn uses the
// netpoller directly; any other connection is pumped.
func Wrap(conn net.Conn) (transport.Transport, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return pump.New(conn), nil
	}
	return NewConn(tcpConn)
}

// NewConn takes ownership of conn.
func NewConn(conn *net.TCPConn) (*Conn, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("SyscallConn(): %w", err)
	}

	var fd uintptr
	if err := raw.Control(func(s uintptr) { fd = s }); err != nil {
		return nil, fmt.Errorf("RawConn.Control(): %w", err)
	}

	return &Conn{conn: conn, raw: raw, fd: fd}, nil
}

func wouldBlock(errno error) bool {
	return errors.Is(errno, unix.EAGAIN) || errors.Is(errno, unix.EWOULDBLOCK) || errors.Is(errno, unix.EINTR)
}

func (c *Conn) opError(op string, err error) error {
	return &net.OpError{
		Op:     op,
		Net:    "tcp",
		Source: c.conn.LocalAddr(),
		Addr:   c.conn.RemoteAddr(),
		Err:    err,
	}
}

// TryRead implements transport.Transport.
func (c *Conn) TryRead(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var errno error
	if err := c.raw.Read(func(fd uintptr) bool {
		n, errno = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, c.opError("read", err)
	}

	switch {
	case errno != nil && wouldBlock(errno):
		return 0, transport.ErrWouldBlock
	case errno != nil:
		return 0, c.opError("read", os.NewSyscallError("read", errno))
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// TryWrite implements transport.Transport.
func (c *Conn) TryWrite(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var errno error
	if err := c.raw.Write(func(fd uintptr) bool {
		n, errno = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, c.opError("write", err)
	}

	if n < 0 {
		n = 0
	}
	switch {
	case errno != nil && wouldBlock(errno):
		return n, transport.ErrWouldBlock
	case errno != nil:
		return n, c.opError("write", os.NewSyscallError("write", errno))
	case n < len(p):
		return n, transport.ErrWouldBlock
	}
	return n, nil
}

// WaitReadable implements transport.Transport.
func (c *Conn) WaitReadable(ctx context.Context) error {
	return c.wait(ctx, unix.POLLIN, c.raw.Read, c.conn.SetReadDeadline)
}

// WaitWritable implements transport.Transport.
func (c *Conn) WaitWritable(ctx context.Context) error {
	return c.wait(ctx, unix.POLLOUT, c.raw.Write, c.conn.SetWriteDeadline)
}

// wait parks on the netpoller until fd reports events. Readiness is probed
// with a zero-timeout poll inside the RawConn callback, so an edge that
// fired before the wait started is not lost. Cancellation moves the
// direction's deadline into the past.
func (c *Conn) wait(ctx context.Context, events int16, rawOp func(func(uintptr) bool) error, setDeadline func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = setDeadline(aLongTimeAgo)
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			_ = setDeadline(time.Time{})
		}
	}()

	err := rawOp(func(fd uintptr) bool {
		return ready(fd, events)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.opError("wait", err)
	}
	return nil
}

func ready(fd uintptr, events int16) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		// let the next Try call surface the error
		return !errors.Is(err, unix.EINTR)
	}
	return n > 0 && fds[0].Revents != 0
}

// Fd implements transport.Transport.
func (c *Conn) Fd() uintptr {
	return c.fd
}

// Close implements transport.Transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
