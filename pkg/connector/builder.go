// Package connector configures TLS clients and connects them over
// non-blocking transports.
package connector

import (
	"crypto/x509"
	"errors"
	"fmt"

	"dominicbreuker/nbtls/pkg/bridge"
	"dominicbreuker/nbtls/pkg/crypto"
	"dominicbreuker/nbtls/pkg/engine/minttls"
	"dominicbreuker/nbtls/pkg/log"

	"github.com/bifurcation/mint"
)

// Builder collects TLS client settings. Errors are accumulated and
// reported by Build, so calls can be chained.
type Builder struct {
	verifyHostname    bool
	verifyCertificate bool
	roots             *x509.CertPool
	certs             []*mint.Certificate
	engine            bridge.Engine
	logger            *log.Logger
	errs              []error
}

// NewBuilder returns a builder that verifies certificates and host names
// against the system roots.
func NewBuilder() *Builder {
	return &Builder{
		verifyHostname:    true,
		verifyCertificate: true,
	}
}

// WithHostnameVerificationDisabled keeps chain verification but accepts
// any server name.
func (b *Builder) WithHostnameVerificationDisabled() *Builder {
	b.verifyHostname = false
	return b
}

// WithCertificateVerificationDisabled accepts any server certificate.
func (b *Builder) WithCertificateVerificationDisabled() *Builder {
	b.verifyCertificate = false
	return b
}

// WithCertificateAndKeyFromPEMFiles sets the client certificate.
func (b *Builder) WithCertificateAndKeyFromPEMFiles(certFile, keyFile string) *Builder {
	kp, err := crypto.LoadKeyPair(certFile, keyFile)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("client certificate: %w", err))
		return b
	}

	b.certs = append(b.certs, &mint.Certificate{
		Chain:      kp.Chain,
		PrivateKey: kp.Key,
	})
	return b
}

// WithCAFromPEMFile trusts every certificate in caFile in addition to the
// system roots.
func (b *Builder) WithCAFromPEMFile(caFile string) *Builder {
	certs, err := crypto.LoadCertificates(caFile)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("CA file: %w", err))
		return b
	}

	for _, c := range certs {
		b.AddRootCertificate(c)
	}
	return b
}

// AddRootCertificate trusts cert in addition to the system roots.
func (b *Builder) AddRootCertificate(cert *x509.Certificate) *Builder {
	if b.roots == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		b.roots = pool
	}
	b.roots.AddCert(cert)
	return b
}

// WithLogger sets the logger for handshakes and streams.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEngine replaces the TLS engine. The verification settings of the
// builder are not applied to it.
func (b *Builder) WithEngine(engine bridge.Engine) *Builder {
	b.engine = engine
	return b
}

// Build returns the Connector, or all errors collected while building.
func (b *Builder) Build() (*Connector, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	engine := b.engine
	if engine == nil {
		engine = minttls.New(minttls.Config{
			RootCAs:                  b.roots,
			InsecureSkipVerify:       !b.verifyCertificate,
			SkipHostnameVerification: !b.verifyHostname,
			Certificates:             b.certs,
		})
	}

	return &Connector{
		engine: engine,
		logger: b.logger,
	}, nil
}
