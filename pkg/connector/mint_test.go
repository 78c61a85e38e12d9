package connector

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"dominicbreuker/nbtls/pkg/bridge"
	"dominicbreuker/nbtls/pkg/crypto"
	"dominicbreuker/nbtls/pkg/engine/minttls"
	"dominicbreuker/nbtls/pkg/log"
	"dominicbreuker/nbtls/pkg/transport"
	"dominicbreuker/nbtls/pkg/transport/pump"

	"github.com/bifurcation/mint"
)

const serverName = "server.internal"

// mintServer runs a blocking mint server on one end of a net.Pipe.
type mintServer struct {
	conn *mint.Conn
	done chan mint.Alert
}

func startMintServer(t *testing.T, cert *mint.Certificate) (net.Conn, *mintServer) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	srv := &mintServer{
		conn: mint.Server(server, &mint.Config{Certificates: []*mint.Certificate{cert}}),
		done: make(chan mint.Alert, 1),
	}
	go func() {
		srv.done <- srv.conn.Handshake()
	}()
	return client, srv
}

func (s *mintServer) handshakeResult(t *testing.T) mint.Alert {
	t.Helper()

	select {
	case alert := <-s.done:
		return alert
	case <-time.After(5 * time.Second):
		t.Fatal("server handshake did not finish")
		return mint.AlertNoAlert
	}
}

func generatePKI(t *testing.T) *crypto.PKI {
	t.Helper()

	pki, err := crypto.GeneratePKI("", serverName)
	if err != nil {
		t.Fatalf("GeneratePKI() error = %v", err)
	}
	return pki
}

// serverCertificate turns the leaf of pki into a mint certificate. mint
// selects certificates by the parsed DNSNames but sends the raw bytes, so
// aliases are served without being part of the certificate.
func serverCertificate(t *testing.T, pki *crypto.PKI, aliases ...string) *mint.Certificate {
	t.Helper()

	chain, err := crypto.ParseCertificatesPEM(pki.Cert)
	if err != nil {
		t.Fatalf("ParseCertificatesPEM() error = %v", err)
	}
	key, err := crypto.ParsePrivateKeyPEM(pki.Key)
	if err != nil {
		t.Fatalf("ParsePrivateKeyPEM() error = %v", err)
	}
	chain[0].DNSNames = append(chain[0].DNSNames, aliases...)
	return &mint.Certificate{Chain: chain, PrivateKey: key}
}

func trusting(t *testing.T, pki *crypto.PKI) *Builder {
	t.Helper()

	ca, err := crypto.ParseCertificatesPEM(pki.CACert)
	if err != nil {
		t.Fatalf("ParseCertificatesPEM() error = %v", err)
	}
	return NewBuilder().AddRootCertificate(ca[0])
}

// writeCounter counts the bytes the transport accepted.
type writeCounter struct {
	transport.Transport
	mu     sync.Mutex
	n      int
	closes int
}

func (w *writeCounter) TryWrite(p []byte) (int, error) {
	n, err := w.Transport.TryWrite(p)
	w.mu.Lock()
	w.n += n
	w.mu.Unlock()
	return n, err
}

func (w *writeCounter) Close() error {
	w.mu.Lock()
	w.closes++
	w.mu.Unlock()
	return w.Transport.Close()
}

func (w *writeCounter) stats() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n, w.closes
}

// connectMint dials the pipe end through a transport taking 7 bytes per
// write, which splits every TLS record.
func connectMint(t *testing.T, b *Builder, name string, client net.Conn) (*bridge.Stream, *writeCounter, error) {
	t.Helper()

	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tr := &writeCounter{Transport: pump.NewSize(client, 7)}
	dial := func(ctx context.Context, addr string) (transport.Transport, error) {
		return tr, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewDomain(c, name, dial).Connect(ctx, "127.0.0.1:443")
	return s, tr, err
}

func TestDomain_Connect_Mint(t *testing.T) {
	t.Parallel()

	pki := generatePKI(t)
	client, srv := startMintServer(t, serverCertificate(t, pki))

	s, tr, err := connectMint(t, trusting(t, pki), serverName, client)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	if alert := srv.handshakeResult(t); alert != mint.AlertNoAlert {
		t.Fatalf("server Handshake() = %v, want no alert", alert)
	}
	if n, _ := tr.stats(); n == 0 {
		t.Error("no handshake bytes were written")
	}
}

func TestStream_Mint_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{"single byte", 1},
		{"below one record", 16000},
		{"16 KiB", 16 * 1024},
		{"several records", 40000},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pki := generatePKI(t)
			client, srv := startMintServer(t, serverCertificate(t, pki))

			s, _, err := connectMint(t, trusting(t, pki), serverName, client)
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer s.Close()
			if alert := srv.handshakeResult(t); alert != mint.AlertNoAlert {
				t.Fatalf("server Handshake() = %v, want no alert", alert)
			}

			payload := make([]byte, tc.size)
			for i := range payload {
				payload[i] = byte(i % 251)
			}

			received := make(chan []byte, 1)
			go func() {
				buf := make([]byte, tc.size)
				if _, err := io.ReadFull(srv.conn, buf); err != nil {
					received <- nil
					return
				}
				received <- buf
				_, _ = srv.conn.Write([]byte("done"))
			}()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			n, err := s.WriteContext(ctx, payload)
			if err != nil || n != tc.size {
				t.Fatalf("WriteContext() = %d, %v, want %d, nil", n, err, tc.size)
			}

			select {
			case got := <-received:
				if !bytes.Equal(got, payload) {
					t.Fatalf("server received %d bytes, not the payload", len(got))
				}
			case <-ctx.Done():
				t.Fatal("server did not receive the payload")
			}

			reply := make([]byte, 4)
			if _, err := io.ReadFull(readerFunc(func(p []byte) (int, error) {
				return s.ReadContext(ctx, p)
			}), reply); err != nil {
				t.Fatalf("ReadContext() error = %v", err)
			}
			if string(reply) != "done" {
				t.Errorf("reply = %q, want %q", reply, "done")
			}
		})
	}
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func TestDomain_Connect_Mint_WrongCA(t *testing.T) {
	t.Parallel()

	pki := generatePKI(t)
	foreign := generatePKI(t)
	client, srv := startMintServer(t, serverCertificate(t, pki))

	_, tr, err := connectMint(t, trusting(t, foreign), serverName, client)
	if !bridge.IsHandshake(err) || !errors.Is(err, mint.AlertBadCertificate) {
		t.Fatalf("Connect() error = %v, want bad certificate handshake error", err)
	}
	if alert := srv.handshakeResult(t); alert == mint.AlertNoAlert {
		t.Error("server completed the handshake with a rejected client")
	}
	if _, closes := tr.stats(); closes != 1 {
		t.Errorf("transport closed %d times, want 1", closes)
	}
}

func TestDomain_Connect_Mint_HostnameVerification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		skipHostname     bool
		foreignCA        bool
		wantErr          bool
		wantUnknownCA    bool
		wantServerFinish bool
	}{
		{name: "hostname mismatch rejected", wantErr: true},
		{name: "chain only accepts mismatch", skipHostname: true, wantServerFinish: true},
		{name: "chain only rejects foreign CA", skipHostname: true, foreignCA: true, wantErr: true, wantUnknownCA: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pki := generatePKI(t)
			client, srv := startMintServer(t, serverCertificate(t, pki, "alias.internal"))

			roots := pki
			if tc.foreignCA {
				roots = generatePKI(t)
			}
			b := trusting(t, roots)
			if tc.skipHostname {
				b = b.WithHostnameVerificationDisabled()
			}

			s, _, err := connectMint(t, b, "alias.internal", client)
			if s != nil {
				defer s.Close()
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("Connect() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr && !errors.Is(err, mint.AlertBadCertificate) {
				t.Errorf("Connect() error = %v, want bad certificate", err)
			}
			var unknown x509.UnknownAuthorityError
			if got := errors.As(err, &unknown); got != tc.wantUnknownCA {
				t.Errorf("Connect() error = %v, unknown authority %v, want %v", err, got, tc.wantUnknownCA)
			}

			alert := srv.handshakeResult(t)
			if got := alert == mint.AlertNoAlert; got != tc.wantServerFinish {
				t.Errorf("server Handshake() = %v, completed %v, want %v", alert, got, tc.wantServerFinish)
			}
		})
	}
}

func TestDomain_Connect_Mint_PeerResets(t *testing.T) {
	t.Parallel()

	pki := generatePKI(t)
	c, err := trusting(t, pki).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	client, server := net.Pipe()
	defer server.Close()

	// The peer reads one full ClientHello record and hangs up.
	go func() {
		hdr := make([]byte, 5)
		if _, err := io.ReadFull(server, hdr); err != nil {
			return
		}
		body := make([]byte, binary.BigEndian.Uint16(hdr[3:]))
		_, _ = io.ReadFull(server, body)
		server.Close()
	}()

	tr := &writeCounter{Transport: pump.NewSize(client, 7)}
	dial := func(ctx context.Context, addr string) (transport.Transport, error) {
		return tr, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = NewDomain(c, serverName, dial).Connect(ctx, "127.0.0.1:443")
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("Connect() error = %v, want *net.OpError", err)
	}
	if !bridge.IsHandshake(err) && !bridge.IsTransport(err) {
		t.Errorf("Connect() error = %v, want handshake or transport error", err)
	}
	if ctx.Err() != nil {
		t.Error("Connect() waited for the deadline instead of failing")
	}
	if _, closes := tr.stats(); closes != 1 {
		t.Errorf("transport closed %d times, want 1", closes)
	}
}

func TestStream_Close_Mint(t *testing.T) {
	t.Parallel()

	pki := generatePKI(t)
	client, srv := startMintServer(t, serverCertificate(t, pki))

	var logs bytes.Buffer
	s, tr, err := connectMint(t, trusting(t, pki).WithLogger(log.NewLoggerTo(&logs, true)), serverName, client)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if alert := srv.handshakeResult(t); alert != mint.AlertNoAlert {
		t.Fatalf("server Handshake() = %v, want no alert", alert)
	}

	before, _ := tr.stats()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	after, closes := tr.stats()

	// mint offers no way to send close_notify, so nothing goes out.
	if after != before {
		t.Errorf("Close() wrote %d bytes, want 0", after-before)
	}
	if closes != 1 {
		t.Errorf("transport closed %d times, want 1", closes)
	}
	if !strings.Contains(logs.String(), minttls.ErrCloseNotifyUnsupported.Error()) {
		t.Errorf("log = %q, want close_notify notice", logs.String())
	}

	if _, err := srv.conn.Read(make([]byte, 1)); err == nil {
		t.Error("server Read() succeeded after Close")
	}
}
