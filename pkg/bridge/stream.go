package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"dominicbreuker/nbtls/pkg/log"
	"dominicbreuker/nbtls/pkg/transport"
)

// Stream is an established session over its Shim.
//
// One goroutine may read while another writes. Engine calls are serialized;
// waiting for the transport happens outside the lock, in the direction the
// engine call reported.
type Stream struct {
	session Session
	shim    *Shim
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(session Session, shim *Shim, logger *log.Logger) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		session: session,
		shim:    shim,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Plain returns a Stream that passes bytes through t without encryption.
func Plain(t transport.Transport, logger *log.Logger) *Stream {
	shim := NewShim(t)
	return newStream(plainSession{shim}, shim, logger)
}

type plainSession struct {
	*Shim
}

func (plainSession) Close() error {
	return nil
}

// Read implements io.Reader. It is unblocked by Close.
func (s *Stream) Read(p []byte) (int, error) {
	return s.ReadContext(s.ctx, p)
}

// Write implements io.Writer. It is unblocked by Close.
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteContext(s.ctx, p)
}

// ReadContext reads at least one byte into p, waiting for the transport as
// long as necessary. It returns io.EOF once the peer closed the session.
func (s *Stream) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, &Error{Kind: KindTransport, Op: "read", Err: net.ErrClosed}
		}
		s.shim.resetInterest()
		n, err := s.session.Read(p)
		dir := s.shim.Interest()
		s.mu.Unlock()

		if n > 0 && (err == nil || wouldBlock(err)) {
			return n, nil
		}
		switch {
		case err == nil, wouldBlock(err):
		case errors.Is(err, io.EOF):
			return n, io.EOF
		default:
			return n, s.recordErr("read", err)
		}

		if err := s.shim.WaitFor(ctx, dir); err != nil {
			return 0, &Error{Kind: KindTransport, Op: "read", Err: err}
		}
	}
}

// WriteContext writes all of p. It returns only once every byte was
// accepted by the transport, or with an error.
func (s *Stream) WriteContext(ctx context.Context, p []byte) (int, error) {
	written := 0
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return written, &Error{Kind: KindTransport, Op: "write", Err: net.ErrClosed}
		}
		s.shim.resetInterest()
		var err error
		if written < len(p) {
			var n int
			n, err = s.session.Write(p[written:])
			written += n
		}
		if err == nil {
			err = s.shim.Flush()
		}
		dir := s.shim.Interest()
		s.mu.Unlock()

		switch {
		case err == nil && written == len(p):
			return written, nil
		case err == nil, wouldBlock(err):
		default:
			return written, s.recordErr("write", err)
		}

		if err == nil {
			continue
		}
		if err := s.shim.WaitFor(ctx, dir); err != nil {
			return written, &Error{Kind: KindTransport, Op: "write", Err: err}
		}
	}
}

func (s *Stream) recordErr(op string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shim.Err() != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return &Error{Kind: KindRecord, Op: op, Err: err}
}

// Close asks the session for close_notify and flushes it if the transport
// takes it right away, then releases the transport. Failures are logged,
// not returned. Only the first call has an effect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		if err := s.session.Close(); err != nil && !wouldBlock(err) {
			s.logger.VerboseMsg("close_notify failed: %s", err)
		} else if err := s.shim.Flush(); err != nil {
			s.logger.VerboseMsg("close_notify not delivered: %s", err)
		}
		s.mu.Unlock()

		s.closeErr = s.shim.Close()
	})
	return s.closeErr
}

// Fd returns the raw descriptor of the transport. It must not be used for I/O.
func (s *Stream) Fd() uintptr {
	return s.shim.Fd()
}
