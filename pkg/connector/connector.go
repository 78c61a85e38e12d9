package connector

import (
	"context"
	"errors"
	"fmt"
	"net"

	"dominicbreuker/nbtls/pkg/bridge"
	"dominicbreuker/nbtls/pkg/log"
	"dominicbreuker/nbtls/pkg/transport"
)

// Connector runs TLS client handshakes.
type Connector struct {
	engine bridge.Engine
	logger *log.Logger
}

// Connect performs a handshake over t, authenticating the server as
// serverName. It takes ownership of t, which is closed if the handshake
// fails or ctx ends first.
func (c *Connector) Connect(ctx context.Context, serverName string, t transport.Transport) (*bridge.Stream, error) {
	c.logger.VerboseMsg("Starting TLS handshake with %s", serverName)

	h := bridge.NewHandshaker(c.engine, bridge.NewShim(t), serverName, bridge.WithLogger(c.logger))
	s, err := h.Run(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.VerboseMsg("TLS handshake with %s completed after %d suspensions", serverName, h.Suspensions())
	return s, nil
}

// DialFunc opens a transport to addr.
type DialFunc func(ctx context.Context, addr string) (transport.Transport, error)

// DomainConnector connects to an address and returns a ready stream.
// Errors are *net.OpError values.
type DomainConnector interface {
	Connect(ctx context.Context, addr string) (*bridge.Stream, error)
}

// Plain connects without TLS.
type Plain struct {
	dial   DialFunc
	logger *log.Logger
}

// NewPlain returns a DomainConnector that passes bytes through unchanged.
func NewPlain(dial DialFunc, logger *log.Logger) *Plain {
	return &Plain{dial: dial, logger: logger}
}

// Connect dials addr.
func (p *Plain) Connect(ctx context.Context, addr string) (*bridge.Stream, error) {
	t, err := p.dial(ctx, addr)
	if err != nil {
		return nil, dialError(addr, err)
	}
	return bridge.Plain(t, p.logger), nil
}

// Domain connects to any address but authenticates the server as a fixed
// domain name.
type Domain struct {
	connector *Connector
	domain    string
	dial      DialFunc
}

// NewDomain returns a DomainConnector verifying every server as domain.
func NewDomain(c *Connector, domain string, dial DialFunc) *Domain {
	return &Domain{connector: c, domain: domain, dial: dial}
}

// Connect dials addr and runs the handshake for the configured domain.
func (d *Domain) Connect(ctx context.Context, addr string) (*bridge.Stream, error) {
	d.connector.logger.VerboseMsg("connect to tls addr: %s", addr)
	t, err := d.dial(ctx, addr)
	if err != nil {
		return nil, dialError(addr, err)
	}

	d.connector.logger.VerboseMsg("connect to tls domain: %s", d.domain)
	s, err := d.connector.Connect(ctx, d.domain, t)
	if err != nil {
		return nil, handshakeError(err)
	}
	return s, nil
}

// Anonymous authenticates the server under the host part of the address
// it dials.
type Anonymous struct {
	connector *Connector
	dial      DialFunc
}

// NewAnonymous returns a DomainConnector using the dialed host as server name.
func NewAnonymous(c *Connector, dial DialFunc) *Anonymous {
	return &Anonymous{connector: c, dial: dial}
}

// Connect dials addr and runs the handshake for its host.
func (a *Anonymous) Connect(ctx context.Context, addr string) (*bridge.Stream, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &net.OpError{Op: "dial", Net: "tls", Err: fmt.Errorf("invalid address %q: %w", addr, err)}
	}

	t, err := a.dial(ctx, addr)
	if err != nil {
		return nil, dialError(addr, err)
	}

	s, err := a.connector.Connect(ctx, host, t)
	if err != nil {
		return nil, handshakeError(err)
	}
	return s, nil
}

func dialError(addr string, err error) error {
	return &net.OpError{Op: "dial", Net: "tls", Err: fmt.Errorf("dial %s: %w", addr, err)}
}

func handshakeError(err error) error {
	var e *bridge.Error
	if errors.As(err, &e) {
		return e.IOError()
	}
	return &net.OpError{Op: "handshake", Net: "tls", Err: err}
}
