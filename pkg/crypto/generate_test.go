package crypto

import (
	"crypto/x509"
	"testing"
)

func TestGeneratePKI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		seed  string
		hosts []string
	}{
		{"random seed", "", []string{"localhost"}},
		{"fixed seed", "test-seed-123", []string{"example.com", "127.0.0.1"}},
		{"no hosts", "seed", nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pki, err := GeneratePKI(tc.seed, tc.hosts...)
			if err != nil {
				t.Fatalf("GeneratePKI() error = %v", err)
			}

			roots, err := ParseCertificatesPEM(pki.CACert)
			if err != nil {
				t.Fatalf("ParseCertificatesPEM(ca) error = %v", err)
			}
			if !roots[0].IsCA {
				t.Error("CA certificate is not a CA")
			}

			leaf, err := ParseCertificatesPEM(pki.Cert)
			if err != nil {
				t.Fatalf("ParseCertificatesPEM(cert) error = %v", err)
			}

			pool := x509.NewCertPool()
			pool.AddCert(roots[0])
			for _, h := range tc.hosts {
				_, err := leaf[0].Verify(x509.VerifyOptions{Roots: pool, DNSName: h})
				if err != nil {
					t.Errorf("leaf does not verify for %q: %v", h, err)
				}
			}
			if _, err := leaf[0].Verify(x509.VerifyOptions{Roots: pool, DNSName: "other.invalid"}); err == nil {
				t.Error("leaf verifies for a host it was not issued for")
			}

			if _, err := ParsePrivateKeyPEM(pki.Key); err != nil {
				t.Errorf("ParsePrivateKeyPEM(key) error = %v", err)
			}
		})
	}
}

func TestGeneratePKI_SameSeedSameCA(t *testing.T) {
	t.Parallel()

	a, err := GeneratePKI("deterministic-seed")
	if err != nil {
		t.Fatalf("GeneratePKI() error = %v", err)
	}
	b, err := GeneratePKI("deterministic-seed")
	if err != nil {
		t.Fatalf("GeneratePKI() error = %v", err)
	}

	ca, _ := ParseCertificatesPEM(a.CACert)
	cb, _ := ParseCertificatesPEM(b.CACert)
	if ca[0].Subject.CommonName != cb[0].Subject.CommonName {
		t.Errorf("CA names differ: %q vs %q", ca[0].Subject.CommonName, cb[0].Subject.CommonName)
	}
}
