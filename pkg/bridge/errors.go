package bridge

import (
	"errors"
	"fmt"
	"net"

	"dominicbreuker/nbtls/pkg/transport"
)

// ErrWouldBlock is returned by the Shim when the transport is not ready.
// It is the same value as transport.ErrWouldBlock. Run, ReadContext and
// WriteContext never return it.
var ErrWouldBlock = transport.ErrWouldBlock

// ErrNoContinuation is reported when an engine signals would-block without
// handing out a continuation to resume.
var ErrNoContinuation = errors.New("engine returned no handshake continuation")

// Kind classifies an Error.
type Kind int

const (
	// KindTransport is an I/O failure of the underlying transport.
	KindTransport Kind = iota + 1
	// KindHandshake is a failure of the handshake itself.
	KindHandshake
	// KindRecord is a failure of an established session.
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHandshake:
		return "handshake"
	case KindRecord:
		return "record"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the error type returned by Handshaker and Stream.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" || e.Op == e.Kind.String() {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IOError converts e for callers that only understand net errors.
func (e *Error) IOError() *net.OpError {
	return &net.OpError{
		Op:  e.Op,
		Net: "tls",
		Err: e,
	}
}

// IsHandshake reports whether err stems from a failed handshake.
func IsHandshake(err error) bool {
	return isKind(err, KindHandshake)
}

// IsTransport reports whether err stems from the underlying transport.
func IsTransport(err error) bool {
	return isKind(err, KindTransport)
}

// IsRecord reports whether err stems from an established session.
func IsRecord(err error) bool {
	return isKind(err, KindRecord)
}

func isKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func wouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
