// Package minttls is the TLS 1.3 engine of the bridge, built on
// github.com/bifurcation/mint in NonBlocking mode.
package minttls

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"dominicbreuker/nbtls/pkg/bridge"

	"github.com/bifurcation/mint"
)

var (
	// ErrNotDeferrer is returned when Client gets a ReadWriter without Defer.
	ErrNotDeferrer = errors.New("minttls: transport must support Defer")
	// ErrCloseNotifyUnsupported is returned by Close. mint keeps its record
	// layer private and offers no way to send a close_notify alert.
	ErrCloseNotifyUnsupported = errors.New("minttls: mint cannot send close_notify")
)

// maxWrite bounds the plaintext handed to mint per call. mint cuts writes
// into 16 KiB fragments and rejects records whose ciphertext (plaintext,
// content type and AEAD tag) exceeds 16 KiB.
const maxWrite = 16*1024 - 256

// Config selects how the server is authenticated.
type Config struct {
	// RootCAs verifies the server chain. nil means the host's roots.
	RootCAs *x509.CertPool
	// InsecureSkipVerify accepts any server certificate.
	InsecureSkipVerify bool
	// SkipHostnameVerification verifies the chain but not the server name.
	SkipHostnameVerification bool
	// Certificates are presented when the server asks for client auth.
	Certificates []*mint.Certificate
}

// Engine implements bridge.Engine.
type Engine struct {
	cfg Config
}

// New returns an engine using cfg for every handshake.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Client starts a handshake. rw must be a ReadWriteDeferrer, usually a
// *bridge.Shim.
func (e *Engine) Client(rw io.ReadWriter, serverName string) (bridge.Session, bridge.Handshake, error) {
	rwd, ok := rw.(ReadWriteDeferrer)
	if !ok {
		return nil, nil, ErrNotDeferrer
	}

	h := &handshake{}
	cfg := e.mintConfig(serverName)
	if verify := cfg.VerifyPeerCertificate; verify != nil {
		cfg.VerifyPeerCertificate = func(raw [][]byte, chains [][]*x509.Certificate) error {
			if err := verify(raw, chains); err != nil {
				h.rejected = err
				return err
			}
			return nil
		}
	}
	h.conn = mint.Client(&conn{rw: rwd}, cfg)

	sess, err := h.Resume()
	if err != nil {
		return nil, h, err
	}
	return sess, nil, nil
}

func (e *Engine) mintConfig(serverName string) *mint.Config {
	cfg := &mint.Config{
		ServerName:         serverName,
		NonBlocking:        true,
		RootCAs:            e.cfg.RootCAs,
		InsecureSkipVerify: e.cfg.InsecureSkipVerify,
		Certificates:       e.cfg.Certificates,
	}

	// mint has no chain-only mode. Its own checks are turned off and the
	// chain is verified from the CertificateVerify state instead, so the
	// handshake aborts before Finished is sent.
	if e.cfg.SkipHostnameVerification {
		cfg.InsecureSkipVerify = true
		if !e.cfg.InsecureSkipVerify {
			cfg.VerifyPeerCertificate = verifyChain(e.cfg.RootCAs)
		}
	}

	return cfg
}

// verifyChain checks the presented chain against roots without a name.
func verifyChain(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(raw [][]byte, _ [][]*x509.Certificate) error {
		if len(raw) == 0 {
			return errors.New("server presented no certificate")
		}

		certs := make([]*x509.Certificate, 0, len(raw))
		for _, der := range raw {
			c, err := x509.ParseCertificate(der)
			if err != nil {
				return fmt.Errorf("parse server certificate: %w", err)
			}
			certs = append(certs, c)
		}

		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, c := range certs[1:] {
			opts.Intermediates.AddCert(c)
		}

		if _, err := certs[0].Verify(opts); err != nil {
			return fmt.Errorf("verify server certificate: %w", err)
		}
		return nil
	}
}

// handshake retains the mint connection between suspensions. mint keeps
// its state machine inside the Conn, so resuming means calling Handshake
// on the same Conn again.
type handshake struct {
	conn *mint.Conn
	// rejected is the reason the chain check failed, if it did.
	rejected error
}

func (h *handshake) Resume() (bridge.Session, error) {
	for {
		switch alert := h.conn.Handshake(); alert {
		case mint.AlertNoAlert:
		case mint.AlertWouldBlock:
			return nil, bridge.ErrWouldBlock
		default:
			if h.rejected != nil {
				return nil, fmt.Errorf("mint handshake: %w: %w", alert, h.rejected)
			}
			return nil, fmt.Errorf("mint handshake: %w", alert)
		}

		// In NonBlocking mode mint returns after every state transition.
		if h.conn.ConnectionState().HandshakeState != mint.StateClientConnected {
			continue
		}
		return &session{conn: h.conn}, nil
	}
}

// session adapts an established mint connection to bridge.Session.
type session struct {
	conn *mint.Conn
}

func (s *session) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, mint.AlertWouldBlock):
		return n, bridge.ErrWouldBlock
	case errors.Is(err, mint.AlertCloseNotify):
		return n, io.EOF
	default:
		return n, err
	}
}

func (s *session) Write(p []byte) (int, error) {
	var written int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxWrite {
			chunk = chunk[:maxWrite]
		}
		n, err := s.conn.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(chunk):]
	}
	return written, nil
}

// Close leaves the transport to the bridge. No close_notify goes out, see
// ErrCloseNotifyUnsupported.
func (s *session) Close() error {
	return ErrCloseNotifyUnsupported
}
