package minttls

import (
	"errors"
	"io"
	"net"
	"time"

	"dominicbreuker/nbtls/pkg/bridge"

	"github.com/bifurcation/mint"
)

// ReadWriteDeferrer is what the engine needs from the bridge's shim.
type ReadWriteDeferrer interface {
	io.ReadWriter
	// Defer queues bytes the transport did not take yet.
	Defer(p []byte)
}

// conn presents the shim as the net.Conn mint's record layer expects.
//
// mint does not retry short writes, so whatever the transport does not
// accept is queued with Defer and the full length is reported. Reads that
// would block surface as mint.AlertWouldBlock, which mint resumes from in
// NonBlocking mode.
type conn struct {
	rw ReadWriteDeferrer
}

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.rw.Read(p)
	if errors.Is(err, bridge.ErrWouldBlock) {
		return n, mint.AlertWouldBlock
	}
	return n, err
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.rw.Write(p)
	if errors.Is(err, bridge.ErrWouldBlock) {
		c.rw.Defer(p[n:])
		return len(p), nil
	}
	return n, err
}

// Close is a no-op: the transport belongs to the bridge.
func (c *conn) Close() error {
	return nil
}

func (c *conn) LocalAddr() net.Addr                { return addr{} }
func (c *conn) RemoteAddr() net.Addr               { return addr{} }
func (c *conn) SetDeadline(t time.Time) error      { return nil }
func (c *conn) SetReadDeadline(t time.Time) error  { return nil }
func (c *conn) SetWriteDeadline(t time.Time) error { return nil }

type addr struct{}

func (addr) Network() string { return "nbtls" }
func (addr) String() string  { return "nbtls" }
