//go:build !unix

package tcp

import (
	"net"

	"dominicbreuker/nbtls/pkg/transport"
	"dominicbreuker/nbtls/pkg/transport/pump"
)

// Wrap turns conn into a non-blocking transport. Without unix poll support
// every connection is pumped.
func Wrap(conn net.Conn) (transport.Transport, error) {
	return pump.New(conn), nil
}
