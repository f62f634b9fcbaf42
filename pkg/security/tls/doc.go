// Package tls serves the dmkit HTTP endpoints over TLS.
//
// A CertStore holds the server key pair and swaps it in place when the
// certificate file changes, so renewals take effect without a restart:
//
//	certs := tls.NewCertStore(cfg.CertFile, cfg.KeyFile, logger)
//	if err := certs.Load(); err != nil {
//		return err
//	}
//	_ = certs.Watch(watcher)
//	tlsConfig, err := tls.Build(cfg, certs)
//
// Client certificates are verified against ClientCAFile when it is set.
package tls
