// SPDX-License-Identifier: MIT

package bundle

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"
)

// Pool builds an x509.CertPool containing exactly the bundle's roots.
// Consumers that must trust only the vendored Mozilla store (and not the
// host's system roots) verify outbound TLS against this pool.
func (b *Bundle) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, cert := range b.Certs {
		pool.AddCert(cert)
	}
	return pool
}

// TLSConfig returns a tls.Config that verifies peers against the bundle only.
func (b *Bundle) TLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    b.Pool(),
		MinVersion: tls.VersionTLS12,
	}
}

// HTTPClient returns an http.Client whose transport trusts the bundle only.
func (b *Bundle) HTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = b.TLSConfig()
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
