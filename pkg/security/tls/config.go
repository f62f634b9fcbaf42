package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"dmkit-hq/dmkit/pkg/config"
)

// Build returns a server tls.Config that takes its certificate from certs.
func Build(cfg config.TLSConfig, certs *CertStore) (*tls.Config, error) {
	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	// #nosec G402 - MinVersion is never below TLS 1.2
	tc := &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: certs.GetCertificate,
	}

	if cfg.ClientCAFile != "" {
		pem, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.ClientCAFile)
		}
		tc.ClientCAs = pool
		tc.ClientAuth, err = ParseClientAuth(cfg.ClientAuth)
		if err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// ParseVersion maps "1.2" or "1.3" to its tls constant. Empty means 1.3.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.3":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// ParseClientAuth maps a client_auth setting to its tls constant. Empty
// means "require".
func ParseClientAuth(mode string) (tls.ClientAuthType, error) {
	switch mode {
	case "", "require":
		return tls.RequireAndVerifyClientCert, nil
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven, nil
	default:
		return tls.NoClientCert, fmt.Errorf("unsupported client auth %q", mode)
	}
}
