// Package crypto generates and loads the PEM material used for TLS
// sessions: CA bundles, certificate chains and private keys.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	mrand "math/rand"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names used by PKI.WriteFiles.
const (
	CAFileName   = "ca.pem"
	CertFileName = "cert.pem"
	KeyFileName  = "key.pem"
)

// PKI is a CA and one leaf certificate signed by it, PEM encoded.
type PKI struct {
	CACert []byte
	CAKey  []byte
	Cert   []byte
	Key    []byte
}

// GeneratePKI creates a CA from seed and a leaf certificate valid for hosts.
// Hosts may be DNS names or IP addresses. An empty seed is replaced by a
// random one.
func GeneratePKI(seed string, hosts ...string) (*PKI, error) {
	var err error
	if seed == "" {
		seed, err = GenerateRandomString(32)
		if err != nil {
			return nil, fmt.Errorf("GenerateRandomString(32): %s", err)
		}
	}

	caKeyPEM, caCertPEM, err := generateKeyPair(seed)
	if err != nil {
		return nil, fmt.Errorf("generateKeyPair(%s): %s", seed, err)
	}

	certPEM, keyPEM, err := generateCertificate(caCertPEM, caKeyPEM, hosts)
	if err != nil {
		return nil, fmt.Errorf("generateCertificate(%v): %s", hosts, err)
	}

	return &PKI{
		CACert: caCertPEM,
		CAKey:  caKeyPEM,
		Cert:   certPEM,
		Key:    keyPEM,
	}, nil
}

// WriteFiles stores the CA certificate, the leaf certificate and the leaf
// key in dir. The CA key is not written.
func (p *PKI) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll(%s): %w", dir, err)
	}

	files := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{CAFileName, p.CACert, 0o644},
		{CertFileName, p.Cert, 0o644},
		{KeyFileName, p.Key, 0o600},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, f.perm); err != nil {
			return fmt.Errorf("os.WriteFile(%s): %w", path, err)
		}
	}
	return nil
}

// generateKeyPair generates a CA key pair and certificate using the provided seed.
// Returns PEM-encoded private key and certificate.
func generateKeyPair(seed string) ([]byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), getRandReader(seed))
	if err != nil {
		return nil, nil, fmt.Errorf("ecdsa.GenerateKey(%s): %s", seed, err)
	}

	cert, err := generateCACertificate(key, seed)
	if err != nil {
		return nil, nil, fmt.Errorf("generateCACertificate(key): %s", err)
	}

	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert})

	b, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to marshal ECDSA private key: %v", err)
	}
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})

	return keyPem, certPem, nil
}

// generateCACertificate creates a self-signed CA certificate with a common
// name derived from the seed.
func generateCACertificate(key *ecdsa.PrivateKey, seed string) ([]byte, error) {
	cn, err := generateRandomString(8, getRandReader(seed))
	if err != nil {
		return nil, fmt.Errorf("generating random common name: %s", err)
	}

	tml := x509.Certificate{
		NotBefore:    time.Date(1970, 0, 0, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2063, 4, 5, 11, 0, 0, 0, time.UTC),
		SerialNumber: big.NewInt(mrand.Int63()),
		Subject: pkix.Name{
			CommonName:   "nbtls CA " + cn,
			Organization: []string{"nbtls"},
		},
		BasicConstraintsValid: true,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	cert, err := x509.CreateCertificate(rand.Reader, &tml, &tml, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %s", err)
	}

	return cert, nil
}

// generateCertificate creates a leaf certificate for hosts signed by the CA.
func generateCertificate(caCertPEM, caKeyPEM []byte, hosts []string) ([]byte, []byte, error) {
	caKey, err := ParsePrivateKeyPEM(caKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("ParsePrivateKeyPEM(ca): %w", err)
	}

	caCerts, err := ParseCertificatesPEM(caCertPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("ParseCertificatesPEM(ca): %w", err)
	}
	caCert := caCerts[0]

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %v", err)
	}

	commonName := "nbtls"
	if len(hosts) > 0 {
		commonName = hosts[0]
	}

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(mrand.Int63()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Date(1970, 0, 0, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2063, 4, 5, 11, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	cert, err := x509.CreateCertificate(rand.Reader, &tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %v", err)
	}

	b, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to marshal ECDSA private key: %v", err)
	}

	certPem := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert})
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	return certPem, keyPem, nil
}
