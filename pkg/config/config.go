// Package config holds the user-facing connection settings and the
// injectable dependencies used by the dialers.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"dominicbreuker/nbtls/pkg/log"
)

// Protocol selects the byte transport underneath the session.
type Protocol int

const (
	ProtoTCP Protocol = iota + 1
	ProtoWS
	ProtoWSS
	ProtoUDP
)

// String returns the URL scheme of the protocol, or "" if unknown.
func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoWS:
		return "ws"
	case ProtoWSS:
		return "wss"
	case ProtoUDP:
		return "udp"
	default:
		return ""
	}
}

// Mode selects how the session is secured.
type Mode int

const (
	// ModePlain passes bytes through without TLS.
	ModePlain Mode = iota
	// ModeTLSDomain verifies the server against a fixed domain name.
	ModeTLSDomain
	// ModeTLSAnonymous verifies the server against the dialed host.
	ModeTLSAnonymous
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeTLSDomain:
		return "domain"
	case ModeTLSAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// IsTLS reports whether the mode runs a TLS handshake.
func (m Mode) IsTLS() bool {
	return m == ModeTLSDomain || m == ModeTLSAnonymous
}

// Shared holds the transport settings.
type Shared struct {
	Protocol Protocol
	Host     string
	Port     int
	Timeout  time.Duration
	Verbose  bool
	Logger   *log.Logger
	Deps     *Dependencies
}

// Addr returns host:port.
func (c *Shared) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate ...
func (c *Shared) Validate() []error {
	var errors []error

	if c.Protocol.String() == "" {
		errors = append(errors, fmt.Errorf("unsupported protocol %d", int(c.Protocol)))
	}

	if c.Host == "" {
		errors = append(errors, fmt.Errorf("host must not be empty"))
	}

	if err := validatePort(c.Port); err != nil {
		errors = append(errors, fmt.Errorf("port: %w", err))
	}

	if c.Timeout < 0 {
		errors = append(errors, fmt.Errorf("'--timeout' must not be negative"))
	}

	return errors
}
