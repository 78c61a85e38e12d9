package bridge

import (
	"context"
	"errors"
	"io"
	"sync"

	"dominicbreuker/nbtls/pkg/transport"
)

// readAhead is the minimum size of a transport read. Smaller reads by the
// engine (record headers) are served from the pending-read slot.
const readAhead = 4096

// Direction is the readiness a suspended operation waits for.
type Direction int

const (
	DirNone Direction = iota
	DirRead
	DirWrite
)

func (d Direction) String() string {
	switch d {
	case DirRead:
		return "read"
	case DirWrite:
		return "write"
	default:
		return "none"
	}
}

// Shim is the io.ReadWriter handed to an Engine. It owns the transport,
// never waits and records the direction of the last not-ready operation.
//
// A Shim is not safe for concurrent use except for Wait, WaitFor and Close.
type Shim struct {
	t transport.Transport

	pendingW []byte // accepted from the engine, not yet on the transport
	pendingR []byte // read from the transport, not yet given to the engine
	rbuf     []byte

	interest Direction
	err      error // sticky fatal transport error

	closeOnce sync.Once
	closeErr  error
}

// NewShim takes ownership of t.
func NewShim(t transport.Transport) *Shim {
	return &Shim{t: t}
}

// Read returns buffered or available bytes, or ErrWouldBlock. Deferred
// writes are flushed first so a read never waits on the peer while our own
// bytes are unsent.
func (s *Shim) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(s.pendingR) > 0 {
		n := copy(p, s.pendingR)
		s.pendingR = s.pendingR[n:]
		return n, nil
	}

	if s.err != nil {
		return 0, s.err
	}

	if len(s.pendingW) > 0 {
		if err := s.Flush(); err != nil {
			return 0, err
		}
	}

	if len(p) >= readAhead {
		return s.tryRead(p)
	}

	if s.rbuf == nil {
		s.rbuf = make([]byte, readAhead)
	}
	n, err := s.tryRead(s.rbuf)
	if n == 0 {
		return 0, err
	}
	c := copy(p, s.rbuf[:n])
	s.pendingR = s.rbuf[c:n]
	return c, nil
}

func (s *Shim) tryRead(p []byte) (int, error) {
	n, err := s.t.TryRead(p)
	switch {
	case err == nil && n == 0:
		s.interest = DirRead
		return 0, ErrWouldBlock
	case err == nil:
		return n, nil
	case wouldBlock(err):
		s.interest = DirRead
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		s.err = err
		return n, err
	}
}

// Write forwards p to the transport and reports exactly the number of
// bytes it accepted. A short count comes with ErrWouldBlock.
func (s *Shim) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	if len(s.pendingW) > 0 {
		if err := s.Flush(); err != nil {
			return 0, err
		}
	}

	if len(p) == 0 {
		return 0, nil
	}

	n, err := s.t.TryWrite(p)
	switch {
	case err == nil && n < len(p):
		s.interest = DirWrite
		return n, ErrWouldBlock
	case err == nil:
		return n, nil
	case wouldBlock(err):
		s.interest = DirWrite
		return n, ErrWouldBlock
	default:
		s.err = err
		return n, err
	}
}

// Defer queues p for the transport. It is used by engines that cannot
// retry a short write; the owner must Flush before reporting success.
func (s *Shim) Defer(p []byte) {
	s.pendingW = append(s.pendingW, p...)
}

// Pending returns the number of deferred bytes not yet written.
func (s *Shim) Pending() int {
	return len(s.pendingW)
}

// Buffered returns the number of read-ahead bytes not yet consumed.
func (s *Shim) Buffered() int {
	return len(s.pendingR)
}

// Flush writes deferred bytes. It returns ErrWouldBlock if some remain.
func (s *Shim) Flush() error {
	if s.err != nil {
		return s.err
	}

	for len(s.pendingW) > 0 {
		n, err := s.t.TryWrite(s.pendingW)
		s.pendingW = s.pendingW[n:]
		switch {
		case err == nil && n == 0:
			s.interest = DirWrite
			return ErrWouldBlock
		case err == nil:
		case wouldBlock(err):
			s.interest = DirWrite
			return ErrWouldBlock
		default:
			s.err = err
			return err
		}
	}

	s.pendingW = nil
	return nil
}

// Interest returns the direction of the last not-ready operation.
func (s *Shim) Interest() Direction {
	return s.interest
}

func (s *Shim) resetInterest() {
	s.interest = DirNone
}

// Err returns the fatal transport error seen so far, if any.
func (s *Shim) Err() error {
	return s.err
}

// Wait blocks until the transport is ready in the recorded direction.
func (s *Shim) Wait(ctx context.Context) error {
	return s.WaitFor(ctx, s.interest)
}

// WaitFor blocks until the transport is ready in direction d. DirNone waits
// for readability.
func (s *Shim) WaitFor(ctx context.Context, d Direction) error {
	if d == DirWrite {
		return s.t.WaitWritable(ctx)
	}
	return s.t.WaitReadable(ctx)
}

// Fd returns the transport's raw descriptor.
func (s *Shim) Fd() uintptr {
	return s.t.Fd()
}

// Close releases the transport. Only the first call has an effect.
func (s *Shim) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.t.Close()
	})
	return s.closeErr
}
