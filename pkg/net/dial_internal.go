package net

import (
	"context"
	"fmt"

	"dominicbreuker/nbtls/pkg/bridge"
	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/connector"
	"dominicbreuker/nbtls/pkg/transport"
	"dominicbreuker/nbtls/pkg/transport/tcp"
	"dominicbreuker/nbtls/pkg/transport/udp"
	"dominicbreuker/nbtls/pkg/transport/ws"
)

// dialDependencies holds injectable dependencies for testing.
type dialDependencies struct {
	newTCPDialer func(string, *config.Dependencies) (transport.Dialer, error)
	newWSDialer  func(string, config.Protocol) transport.Dialer
	newUDPDialer func(string, *config.Dependencies) (transport.Dialer, error)
	// engine replaces the TLS engine if set.
	engine bridge.Engine
}

// Real implementations for production use.
func realNewTCPDialer(addr string, deps *config.Dependencies) (transport.Dialer, error) {
	return tcp.NewDialer(addr, deps)
}

func realNewWSDialer(addr string, proto config.Protocol) transport.Dialer {
	return ws.NewDialer(addr, proto)
}

func realNewUDPDialer(addr string, deps *config.Dependencies) (transport.Dialer, error) {
	return udp.NewDialer(addr, deps)
}

// dialFunc returns a function opening transports of shared.Protocol.
func dialFunc(shared *config.Shared, deps *dialDependencies) connector.DialFunc {
	return func(ctx context.Context, addr string) (transport.Transport, error) {
		dialer, err := createDialer(addr, shared, deps)
		if err != nil {
			return nil, err
		}

		t, err := dialer.Dial(ctx)
		if err != nil {
			shared.Logger.VerboseMsg("Connection failed: %v", err)
			return nil, fmt.Errorf("dial failed: %w", err)
		}

		shared.Logger.VerboseMsg("Transport established")
		return t, nil
	}
}

// createDialer creates the appropriate transport dialer based on protocol.
func createDialer(addr string, shared *config.Shared, deps *dialDependencies) (transport.Dialer, error) {
	switch shared.Protocol {
	case config.ProtoWS, config.ProtoWSS:
		return deps.newWSDialer(addr, shared.Protocol), nil

	case config.ProtoUDP:
		dialer, err := deps.newUDPDialer(addr, shared.Deps)
		if err != nil {
			shared.Logger.VerboseMsg("Failed to create UDP dialer: %v", err)
			return nil, fmt.Errorf("create UDP dialer: %w", err)
		}
		return dialer, nil

	default:
		dialer, err := deps.newTCPDialer(addr, shared.Deps)
		if err != nil {
			shared.Logger.VerboseMsg("Failed to create TCP dialer: %v", err)
			return nil, fmt.Errorf("create TCP dialer: %w", err)
		}
		return dialer, nil
	}
}

// newDomainConnector picks the connection strategy for tlsCfg.Mode.
func newDomainConnector(shared *config.Shared, tlsCfg *config.TLS, deps *dialDependencies) (connector.DomainConnector, error) {
	dial := dialFunc(shared, deps)

	if !tlsCfg.Mode.IsTLS() {
		return connector.NewPlain(dial, shared.Logger), nil
	}

	c, err := buildConnector(shared, tlsCfg, deps)
	if err != nil {
		return nil, err
	}

	switch tlsCfg.Mode {
	case config.ModeTLSDomain:
		return connector.NewDomain(c, tlsCfg.ServerName, dial), nil
	default:
		return connector.NewAnonymous(c, dial), nil
	}
}

// buildConnector translates tlsCfg into a TLS connector.
func buildConnector(shared *config.Shared, tlsCfg *config.TLS, deps *dialDependencies) (*connector.Connector, error) {
	b := connector.NewBuilder().WithLogger(shared.Logger)

	if tlsCfg.Insecure {
		shared.Logger.VerboseMsg("Server certificate verification disabled")
		b.WithCertificateVerificationDisabled()
	}
	if tlsCfg.NoHostnameCheck {
		shared.Logger.VerboseMsg("Server name verification disabled")
		b.WithHostnameVerificationDisabled()
	}
	if tlsCfg.CAFile != "" {
		b.WithCAFromPEMFile(tlsCfg.CAFile)
	}
	if tlsCfg.CertFile != "" {
		shared.Logger.VerboseMsg("Using client certificate %s", tlsCfg.CertFile)
		b.WithCertificateAndKeyFromPEMFiles(tlsCfg.CertFile, tlsCfg.KeyFile)
	}
	if deps.engine != nil {
		b.WithEngine(deps.engine)
	}

	c, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building TLS connector: %w", err)
	}
	return c, nil
}
