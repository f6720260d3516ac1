// SPDX-License-Identifier: MIT

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBundle(t *testing.T, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root"},
		NotBefore:             time.Now().Add(-2 * time.Hour),
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cacert.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	return path
}

func TestVerifyCLI(t *testing.T) {
	path := writeBundle(t, time.Now().Add(365*24*time.Hour))
	assert.Equal(t, 0, runVerifyCLI([]string{path}))
}

func TestVerifyCLIStrictExpired(t *testing.T) {
	path := writeBundle(t, time.Now().Add(-time.Hour))
	assert.Equal(t, 0, runVerifyCLI([]string{path}))
	assert.Equal(t, 1, runVerifyCLI([]string{"-strict", path}))
}

func TestVerifyCLIUsage(t *testing.T) {
	assert.Equal(t, 2, runVerifyCLI(nil))
	assert.Equal(t, 1, runVerifyCLI([]string{filepath.Join(t.TempDir(), "missing.pem")}))
}

func TestStatusCLINoRun(t *testing.T) {
	t.Setenv("CABOT_DATA", t.TempDir())
	assert.Equal(t, 1, runStatusCLI(nil))
}

func TestHealthcheckCLIUnreachable(t *testing.T) {
	// Nothing listens on this port.
	assert.Equal(t, 1, runHealthcheckCLI([]string{"-port", "1", "-timeout", "500ms"}))
}
