package bridge

import "io"

// Engine is a synchronous TLS client implementation.
//
// Engines do all I/O through the io.ReadWriter they are given and must
// treat ErrWouldBlock from it as "retry later", keeping their state.
type Engine interface {
	// Client starts a handshake. It returns the Session when the handshake
	// completed right away, or a Handshake together with an error wrapping
	// ErrWouldBlock when it must be resumed. Any other error is fatal.
	Client(rw io.ReadWriter, serverName string) (Session, Handshake, error)
}

// Handshake is the continuation of a suspended handshake.
type Handshake interface {
	// Resume continues from where the last call stopped.
	Resume() (Session, error)
}

// Session is an established TLS session. Read and Write report
// ErrWouldBlock like the Shim does. Close sends close_notify or returns an
// error if the engine cannot.
type Session interface {
	io.ReadWriter
	Close() error
}
