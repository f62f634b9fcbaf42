package tls

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dmkit-hq/dmkit/pkg/filewatch"
)

// CertStore holds the current server certificate.
type CertStore struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	now      func() time.Time

	cert atomic.Pointer[tls.Certificate]

	mu     sync.Mutex
	handle filewatch.Handle
}

// NewCertStore creates an empty store. Call Load before serving.
func NewCertStore(certFile, keyFile string, logger *slog.Logger) *CertStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertStore{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger.With("component", "tls"),
		now:      time.Now,
	}
}

// Load reads and validates the key pair. On error the previous certificate
// stays in use.
func (s *CertStore) Load() error {
	pair, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	leaf, err := Leaf(&pair)
	if err != nil {
		return err
	}
	now := s.now()
	if err := CheckValidity(leaf, now); err != nil {
		return err
	}
	pair.Leaf = leaf
	s.cert.Store(&pair)

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresSoon(leaf, now) {
		s.logger.Warn("Certificate expires soon", attrs...)
	} else {
		s.logger.Info("Certificate loaded", attrs...)
	}
	return nil
}

// Certificate returns the current certificate, or nil before Load.
func (s *CertStore) Certificate() *tls.Certificate {
	return s.cert.Load()
}

// GetCertificate is a tls.Config.GetCertificate hook.
func (s *CertStore) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := s.cert.Load()
	if cert == nil {
		return nil, fmt.Errorf("no certificate loaded")
	}
	return cert, nil
}

// Watch reloads the key pair whenever the certificate file changes.
// Renewals should replace the key file first.
func (s *CertStore) Watch(w filewatch.Watcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return nil
	}
	h, err := w.Watch(s.certFile, func() error {
		if err := s.Load(); err != nil {
			s.logger.Warn("Certificate reload failed, keeping previous certificate", "error", err)
			return err
		}
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("failed to watch certificate: %w", err)
	}
	s.handle = h
	return nil
}

// Close stops watching the certificate file.
func (s *CertStore) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}
