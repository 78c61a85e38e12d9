// Package net connects to a remote address over the configured transport
// and returns a ready stream, TLS-encrypted or plain depending on the mode.
package net

import (
	"context"
	"fmt"
	"io"

	"dominicbreuker/nbtls/pkg/bridge"
	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/transport"
)

// Stream is an established connection. Read and Write block until done or
// until Close is called.
type Stream interface {
	io.ReadWriteCloser
	ReadContext(ctx context.Context, p []byte) (int, error)
	WriteContext(ctx context.Context, p []byte) (int, error)
	Fd() uintptr
}

var _ Stream = (*bridge.Stream)(nil)

// Dial connects to shared.Addr() using shared.Protocol and secures the
// connection as tlsCfg.Mode demands. The returned descriptor identifies
// the transport under the stream.
//
// The context can be used to cancel the dial and handshake at any time.
// shared.Timeout, if set, bounds both together.
func Dial(ctx context.Context, shared *config.Shared, tlsCfg *config.TLS) (Stream, transport.Descriptor, error) {
	deps := &dialDependencies{
		newTCPDialer: realNewTCPDialer,
		newWSDialer:  realNewWSDialer,
		newUDPDialer: realNewUDPDialer,
	}
	return dial(ctx, shared, tlsCfg, deps)
}

// dial is the internal implementation that accepts injected dependencies for testing.
func dial(ctx context.Context, shared *config.Shared, tlsCfg *config.TLS, deps *dialDependencies) (Stream, transport.Descriptor, error) {
	addr := shared.Addr()

	shared.Logger.InfoMsg("Connecting to %s\n", addr)
	shared.Logger.VerboseMsg("Dialing %s using protocol %s in %s mode", addr, shared.Protocol, tlsCfg.Mode)

	dc, err := newDomainConnector(shared, tlsCfg, deps)
	if err != nil {
		return nil, transport.Descriptor{}, fmt.Errorf("configuring connection: %w", err)
	}

	if shared.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shared.Timeout)
		defer cancel()
	}

	s, err := dc.Connect(ctx, addr)
	if err != nil {
		shared.Logger.VerboseMsg("Connection to %s failed: %v", addr, err)
		return nil, transport.Descriptor{}, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	desc := transport.Descriptor{
		Fd:      s.Fd(),
		Network: shared.Protocol.String(),
		Addr:    addr,
	}
	shared.Logger.VerboseMsg("Connection established: %s", desc)
	return s, desc, nil
}
