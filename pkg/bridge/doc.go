// Package bridge runs a synchronous TLS engine over a non-blocking
// transport.
//
// The engine sees a Shim, an io.ReadWriter that never blocks: when the
// transport is not ready it returns ErrWouldBlock and remembers which
// direction it was waiting for. A Handshaker drives one handshake attempt
// to completion by resuming the engine's continuation after every such
// suspension, and hands the session to a Stream which does the same for
// application data.
//
//	t, _ := dialer.Dial(ctx)
//	h := bridge.NewHandshaker(engine, bridge.NewShim(t), "example.com")
//	s, err := h.Run(ctx)
//	if err != nil { ... }
//	defer s.Close()
package bridge
