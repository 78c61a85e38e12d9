package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// fakeTransport is a scripted non-blocking transport.
type fakeTransport struct {
	mu sync.Mutex

	in  []byte // bytes TryRead will return
	out []byte // bytes accepted by TryWrite

	readBlocks  int // TryRead calls answered with ErrWouldBlock regardless of data
	writeBlocks int // TryWrite calls answered with ErrWouldBlock
	writeLimit  int // max bytes per TryWrite, 0 for unlimited
	readErr     error
	writeErr    error
	eof         bool

	tryReads   int
	tryWrites  int
	readWaits  int
	writeWaits int
	closes     int
	closed     bool
	wake       chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{wake: make(chan struct{})}
}

func (f *fakeTransport) signal() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// feed makes p readable and wakes waiting readers.
func (f *fakeTransport) feed(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, p...)
	f.signal()
}

func (f *fakeTransport) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.out)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) TryRead(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryReads++
	switch {
	case f.closed:
		return 0, net.ErrClosed
	case f.readErr != nil:
		return 0, f.readErr
	case f.readBlocks > 0:
		f.readBlocks--
		return 0, ErrWouldBlock
	case len(f.in) == 0 && f.eof:
		return 0, io.EOF
	case len(f.in) == 0:
		return 0, ErrWouldBlock
	}
	n := copy(p, f.in)
	f.in = f.in[n:]
	return n, nil
}

func (f *fakeTransport) TryWrite(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryWrites++
	switch {
	case f.closed:
		return 0, net.ErrClosed
	case f.writeErr != nil:
		return 0, f.writeErr
	case f.writeBlocks > 0:
		f.writeBlocks--
		return 0, ErrWouldBlock
	}
	n := len(p)
	if f.writeLimit > 0 && n > f.writeLimit {
		n = f.writeLimit
	}
	f.out = append(f.out, p[:n]...)
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (f *fakeTransport) WaitReadable(ctx context.Context) error {
	f.mu.Lock()
	f.readWaits++
	for {
		if f.closed {
			f.mu.Unlock()
			return net.ErrClosed
		}
		if len(f.in) > 0 || f.readErr != nil || f.readBlocks > 0 || f.eof {
			f.mu.Unlock()
			return nil
		}
		wake := f.wake
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
		f.mu.Lock()
	}
}

func (f *fakeTransport) WaitWritable(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeWaits++
	if f.closed {
		return net.ErrClosed
	}
	return ctx.Err()
}

func (f *fakeTransport) Fd() uintptr {
	return 42
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if !f.closed {
		f.closed = true
		f.signal()
	}
	return nil
}

var (
	clientHello = []byte("HELLO")
	serverHello = []byte("WORLD")
	closeNotify = []byte("BYE")
)

// fakeEngine speaks a toy protocol: the client sends HELLO, the server
// answers WORLD. Data is exchanged unencrypted afterwards.
type fakeEngine struct {
	mu      sync.Mutex
	clients int
	names   []string
}

func (e *fakeEngine) Client(rw io.ReadWriter, serverName string) (Session, Handshake, error) {
	e.mu.Lock()
	e.clients++
	e.names = append(e.names, serverName)
	e.mu.Unlock()

	hs := &fakeHandshake{rw: rw}
	sess, err := hs.Resume()
	if err != nil {
		return nil, hs, err
	}
	return sess, nil, nil
}

func (e *fakeEngine) clientCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients
}

var errBadServerHello = errors.New("bad server hello")

// fakeHandshake keeps its progress across would-block results.
type fakeHandshake struct {
	rw      io.ReadWriter
	sent    int
	got     []byte
	resumes int
}

func (h *fakeHandshake) Resume() (Session, error) {
	h.resumes++
	for h.sent < len(clientHello) {
		n, err := h.rw.Write(clientHello[h.sent:])
		h.sent += n
		if err != nil {
			return nil, err
		}
	}
	for len(h.got) < len(serverHello) {
		buf := make([]byte, len(serverHello)-len(h.got))
		n, err := h.rw.Read(buf)
		h.got = append(h.got, buf[:n]...)
		if err != nil {
			return nil, err
		}
	}
	if !bytes.Equal(h.got, serverHello) {
		return nil, errBadServerHello
	}
	return &fakeSession{rw: h.rw}, nil
}

type fakeSession struct {
	rw     io.ReadWriter
	closes int
}

func (s *fakeSession) Read(p []byte) (int, error) {
	return s.rw.Read(p)
}

func (s *fakeSession) Write(p []byte) (int, error) {
	return s.rw.Write(p)
}

func (s *fakeSession) Close() error {
	s.closes++
	_, err := s.rw.Write(closeNotify)
	return err
}

// deferringEngine hands every write to Shim.Defer, like engines whose
// record layer cannot retry a short write.
type deferringEngine struct{}

func (deferringEngine) Client(rw io.ReadWriter, serverName string) (Session, Handshake, error) {
	shim := rw.(*Shim)
	shim.Defer(clientHello)
	hs := &fakeHandshake{rw: rw, sent: len(clientHello)}
	sess, err := hs.Resume()
	if err != nil {
		return nil, hs, err
	}
	return sess, nil, nil
}
