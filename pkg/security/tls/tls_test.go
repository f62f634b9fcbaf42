package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/filewatch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeKeyPair writes a self-signed certificate for cn valid over
// [notBefore, notAfter] and returns the cert and key paths.
func writeKeyPair(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestCertStore_Load(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   bool
	}{
		{"valid", now.Add(-time.Hour), now.Add(365 * 24 * time.Hour), false},
		{"expiring soon", now.Add(-time.Hour), now.Add(24 * time.Hour), false},
		{"expired", now.Add(-48 * time.Hour), now.Add(-24 * time.Hour), true},
		{"not yet valid", now.Add(24 * time.Hour), now.Add(48 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := writeKeyPair(t, t.TempDir(), "dmkit.test", tt.notBefore, tt.notAfter)
			s := NewCertStore(certFile, keyFile, discardLogger())
			err := s.Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := s.Certificate() != nil; got == tt.wantErr {
				t.Errorf("Certificate() set = %v after Load error %v", got, err)
			}
		})
	}
}

func TestCertStore_LoadMissing(t *testing.T) {
	s := NewCertStore("missing.crt", "missing.key", discardLogger())
	if err := s.Load(); err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if _, err := s.GetCertificate(nil); err == nil {
		t.Error("GetCertificate() error = nil before Load")
	}
}

func TestCertStore_Watch(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, "first", now.Add(-time.Hour), now.Add(24*time.Hour*90))

	s := NewCertStore(certFile, keyFile, discardLogger())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	w := filewatch.NewPollWatcher(&filewatch.Config{Interval: time.Hour}, discardLogger())
	defer func() { _ = w.Close() }()
	if err := s.Watch(w); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	writeKeyPair(t, dir, "second", now.Add(-time.Hour), now.Add(24*time.Hour*90))
	later := now.Add(time.Minute)
	if err := os.Chtimes(certFile, later, later); err != nil {
		t.Fatal(err)
	}
	w.Scan()

	cert, err := s.GetCertificate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Leaf.Subject.CommonName != "second" {
		t.Errorf("CommonName = %q, want second", cert.Leaf.Subject.CommonName)
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeKeyPair(t, dir, "dmkit.test", now.Add(-time.Hour), now.Add(24*time.Hour))
	certs := NewCertStore(certFile, keyFile, discardLogger())
	if err := certs.Load(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name           string
		cfg            config.TLSConfig
		wantVersion    uint16
		wantClientAuth tls.ClientAuthType
		wantErr        bool
	}{
		{"defaults", config.TLSConfig{}, tls.VersionTLS13, tls.NoClientCert, false},
		{"tls 1.2", config.TLSConfig{MinVersion: "1.2"}, tls.VersionTLS12, tls.NoClientCert, false},
		{"tls 1.1", config.TLSConfig{MinVersion: "1.1"}, 0, 0, true},
		{"client ca", config.TLSConfig{ClientCAFile: certFile}, tls.VersionTLS13, tls.RequireAndVerifyClientCert, false},
		{"optional client cert", config.TLSConfig{ClientCAFile: certFile, ClientAuth: "verify_if_given"}, tls.VersionTLS13, tls.VerifyClientCertIfGiven, false},
		{"bad client auth", config.TLSConfig{ClientCAFile: certFile, ClientAuth: "maybe"}, 0, 0, true},
		{"client ca not pem", config.TLSConfig{ClientCAFile: keyFile}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := Build(tt.cfg, certs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tc.MinVersion != tt.wantVersion {
				t.Errorf("MinVersion = %x, want %x", tc.MinVersion, tt.wantVersion)
			}
			if tc.ClientAuth != tt.wantClientAuth {
				t.Errorf("ClientAuth = %v, want %v", tc.ClientAuth, tt.wantClientAuth)
			}
			if _, err := tc.GetCertificate(nil); err != nil {
				t.Errorf("GetCertificate() error = %v", err)
			}
		})
	}
}
