package bridge

import (
	"context"
	"errors"
	"net"
	"sync"

	"dominicbreuker/nbtls/pkg/log"
)

// Status is the outcome of one Handshaker.Poll.
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	default:
		return "failed"
	}
}

type state int

const (
	stateInitial state = iota
	stateInProgress
	stateFlushing // engine done, deferred bytes still queued
	stateCompleted
	stateFailed
)

// Handshaker drives one client handshake attempt over a Shim.
//
// The engine's entry point is called once; every later step resumes the
// continuation it returned. Poll performs a single step and never waits,
// Run loops until the attempt ends.
type Handshaker struct {
	engine     Engine
	shim       *Shim
	serverName string
	logger     *log.Logger

	mu          sync.Mutex
	state       state
	hs          Handshake
	session     Session
	stream      *Stream
	err         error
	suspensions int
}

// Option configures a Handshaker.
type Option func(*Handshaker)

// WithLogger sets the logger of the handshaker and the resulting stream.
func WithLogger(l *log.Logger) Option {
	return func(h *Handshaker) {
		h.logger = l
	}
}

// NewHandshaker prepares an attempt. It takes ownership of shim.
func NewHandshaker(engine Engine, shim *Shim, serverName string, opts ...Option) *Handshaker {
	h := &Handshaker{
		engine:     engine,
		shim:       shim,
		serverName: serverName,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Poll advances the handshake by one step. StatusPending means the
// transport must become ready in direction Interest() before the next Poll.
func (h *Handshaker) Poll() (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateCompleted:
		return StatusCompleted, nil
	case stateFailed:
		return StatusFailed, h.err
	}

	h.shim.resetInterest()

	var err error
	switch h.state {
	case stateInitial:
		var sess Session
		var hs Handshake
		sess, hs, err = h.engine.Client(h.shim, h.serverName)
		if err == nil {
			h.session = sess
		} else if wouldBlock(err) {
			if hs == nil {
				return h.fail(ErrNoContinuation)
			}
			h.hs = hs
			h.state = stateInProgress
		}
	case stateInProgress:
		var sess Session
		sess, err = h.hs.Resume()
		if err == nil {
			h.session = sess
		}
	case stateFlushing:
	}

	if err == nil && h.session == nil {
		return h.fail(errors.New("engine returned no session"))
	}

	if err == nil {
		h.state = stateFlushing
		h.hs = nil
		err = h.shim.Flush()
	}

	switch {
	case err == nil:
		h.state = stateCompleted
		h.stream = newStream(h.session, h.shim, h.logger)
		h.logger.VerboseMsg("handshake with %q completed after %d suspensions", h.serverName, h.suspensions)
		return StatusCompleted, nil
	case wouldBlock(err):
		return StatusPending, nil
	default:
		return h.fail(err)
	}
}

// fail must be called with h.mu held.
func (h *Handshaker) fail(err error) (Status, error) {
	kind := KindHandshake
	if h.shim.Err() != nil {
		kind = KindTransport
	}
	return h.failKind(kind, err)
}

func (h *Handshaker) failKind(kind Kind, err error) (Status, error) {
	h.state = stateFailed
	h.hs = nil
	h.err = &Error{Kind: kind, Op: "handshake", Err: err}
	h.logger.VerboseMsg("handshake with %q failed: %s", h.serverName, err)
	h.shim.Close()
	return StatusFailed, h.err
}

// Interest returns the direction a pending handshake waits for.
func (h *Handshaker) Interest() Direction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shim.Interest()
}

// Run polls until the handshake completes or fails, waiting on the
// transport in between. If ctx ends first the attempt is closed.
func (h *Handshaker) Run(ctx context.Context) (*Stream, error) {
	for {
		status, err := h.Poll()
		switch status {
		case StatusCompleted:
			return h.Stream(), nil
		case StatusFailed:
			return nil, err
		}

		h.mu.Lock()
		dir := h.shim.Interest()
		h.suspensions++
		h.mu.Unlock()

		h.logger.VerboseMsg("handshake with %q waiting for %s", h.serverName, dir)
		if err := h.shim.WaitFor(ctx, dir); err != nil {
			h.mu.Lock()
			defer h.mu.Unlock()
			_, err = h.failKind(KindTransport, err)
			return nil, err
		}
	}
}

// Stream returns the established stream, or nil before completion.
func (h *Handshaker) Stream() *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream
}

// Suspensions returns how often Run waited on the transport.
func (h *Handshaker) Suspensions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suspensions
}

// Close abandons an unfinished attempt and releases the transport. After
// completion the stream owns the transport and Close does nothing.
func (h *Handshaker) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateCompleted:
		return nil
	case stateFailed:
		return h.shim.Close()
	}

	h.state = stateFailed
	h.hs = nil
	h.err = &Error{Kind: KindTransport, Op: "handshake", Err: net.ErrClosed}
	return h.shim.Close()
}
