// Package ws provides the WebSocket transport (ws and wss). Binary
// WebSocket messages carry the byte stream; the resulting connection is
// pumped into a non-blocking transport.Transport.
package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"dominicbreuker/nbtls/pkg/config"
	"dominicbreuker/nbtls/pkg/transport"
	"dominicbreuker/nbtls/pkg/transport/pump"

	"github.com/coder/websocket"
)

// Dialer implements the transport.Dialer interface for WebSocket connections.
type Dialer struct {
	url string
}

// NewDialer creates a dialer for ws:// or wss:// depending on proto.
func NewDialer(addr string, proto config.Protocol) *Dialer {
	return &Dialer{
		url: fmt.Sprintf("%s://%s", proto.String(), addr),
	}
}

// Dial opens the WebSocket and returns it as a non-blocking transport.
// The connection stays usable after ctx ends; only the handshake is bound to it.
func (d *Dialer) Dial(ctx context.Context) (transport.Transport, error) {
	opts := &websocket.DialOptions{
		Subprotocols: []string{"bin"},
	}
	// For wss, skip verification; the inner TLS session is authoritative.
	opts.HTTPClient = &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	c, _, err := websocket.Dial(ctx, d.url, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket.Dial(%s): %w", d.url, err)
	}

	return pump.New(websocket.NetConn(context.Background(), c, websocket.MessageBinary)), nil
}
