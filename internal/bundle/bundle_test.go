// SPDX-License-Identifier: MIT

package bundle

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCert struct {
	cert *x509.Certificate
	pem  []byte
}

func makeRoot(t *testing.T, cn string, notAfter time.Time) testCert {
	return makeRootWindow(t, cn, time.Now().Add(-time.Hour), notAfter)
}

func makeRootWindow(t *testing.T, cn string, notBefore, notAfter time.Time) testCert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return testCert{
		cert: cert,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

func TestParse(t *testing.T) {
	a := makeRoot(t, "Root A", time.Now().Add(24*time.Hour))
	b := makeRoot(t, "Root B", time.Now().Add(24*time.Hour))

	t.Run("multiple certs", func(t *testing.T) {
		got, err := Parse(append(append([]byte{}, a.pem...), b.pem...))
		require.NoError(t, err)
		assert.Equal(t, 2, got.Len())
		assert.True(t, got.Contains(Fingerprint(a.cert)))
		assert.True(t, got.Contains(Fingerprint(b.cert)))
	})

	t.Run("skips non-certificate blocks", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString("Mozilla CA bundle export\n\n")
		require.NoError(t, pem.Encode(&buf, &pem.Block{Type: "PUBLIC KEY", Bytes: []byte{0x01}}))
		buf.Write(a.pem)

		got, err := Parse(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, 1, got.Len())
	})

	t.Run("deduplicates", func(t *testing.T) {
		got, err := Parse(append(append([]byte{}, a.pem...), a.pem...))
		require.NoError(t, err)
		assert.Equal(t, 1, got.Len())
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Parse([]byte("no pem here"))
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("corrupt certificate block", func(t *testing.T) {
		bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")})
		_, err := Parse(bad)
		assert.Error(t, err)
	})
}

func TestDigestOrderIndependent(t *testing.T) {
	a := makeRoot(t, "Root A", time.Now().Add(24*time.Hour))
	b := makeRoot(t, "Root B", time.Now().Add(24*time.Hour))

	ab, err := Parse(append(append([]byte{}, a.pem...), b.pem...))
	require.NoError(t, err)
	ba, err := Parse(append(append([]byte{}, b.pem...), a.pem...))
	require.NoError(t, err)

	assert.Equal(t, ab.Digest(), ba.Digest())

	only, err := Parse(a.pem)
	require.NoError(t, err)
	assert.NotEqual(t, ab.Digest(), only.Digest())
}

func TestCompare(t *testing.T) {
	a := makeRoot(t, "Root A", time.Now().Add(24*time.Hour))
	b := makeRoot(t, "Root B", time.Now().Add(24*time.Hour))
	c := makeRoot(t, "Root C", time.Now().Add(24*time.Hour))

	oldB, err := Parse(append(append([]byte{}, a.pem...), b.pem...))
	require.NoError(t, err)
	newB, err := Parse(append(append([]byte{}, b.pem...), c.pem...))
	require.NoError(t, err)

	d := Compare(oldB, newB)
	assert.Equal(t, 1, d.Retained)
	require.Len(t, d.Added, 1)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "Root C", d.Added[0].Subject)
	assert.Equal(t, "Root A", d.Removed[0].Subject)
	assert.False(t, d.Empty())

	summary := d.Summary()
	assert.Contains(t, summary, "Root C")
	assert.Contains(t, summary, "Root A")
}

func TestCompareNilSides(t *testing.T) {
	a := makeRoot(t, "Root A", time.Now().Add(24*time.Hour))
	cur, err := Parse(a.pem)
	require.NoError(t, err)

	d := Compare(nil, cur)
	assert.Equal(t, 0, d.Retained)
	require.Len(t, d.Added, 1)
	assert.Empty(t, d.Removed)

	d = Compare(cur, cur)
	assert.True(t, d.Empty())
	if diff := cmp.Diff(Diff{Retained: 1}, d); diff != "" {
		t.Errorf("self diff mismatch (-want +got):\n%s", diff)
	}
}

func TestInspect(t *testing.T) {
	now := time.Now()
	fresh := makeRoot(t, "Fresh", now.Add(365*24*time.Hour))
	soon := makeRoot(t, "Soon", now.Add(12*time.Hour))
	expired := makeRoot(t, "Expired", now.Add(-time.Minute))

	data := append(append(append([]byte{}, fresh.pem...), soon.pem...), expired.pem...)
	b, err := Parse(data)
	require.NoError(t, err)

	info, err := b.Inspect(now, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Certs)
	assert.Equal(t, 1, info.Expired)
	assert.Equal(t, 1, info.ExpiringSoon)
	assert.Equal(t, expired.cert.NotAfter.Unix(), info.NotAfterMin.Unix())
	assert.Equal(t, b.Digest(), info.Digest)
}

func TestInspectNotYetValidRoot(t *testing.T) {
	// Mozilla has shipped roots before their activation date; the bundle is
	// still usable and the run must not fail on it.
	now := time.Now()
	fresh := makeRoot(t, "Fresh", now.Add(365*24*time.Hour))
	future := makeRootWindow(t, "Future Root", now.Add(24*time.Hour), now.Add(365*24*time.Hour))

	b, err := Parse(append(append([]byte{}, fresh.pem...), future.pem...))
	require.NoError(t, err)

	info, err := b.Inspect(now, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Certs)
	assert.Equal(t, 1, info.NotYetValid)
	assert.Equal(t, 0, info.Expired)
	assert.Equal(t, 0, info.ExpiringSoon)
}

func TestPool(t *testing.T) {
	a := makeRoot(t, "Root A", time.Now().Add(24*time.Hour))
	b, err := Parse(a.pem)
	require.NoError(t, err)

	pool := b.Pool()
	require.NotNil(t, pool)

	// The root must verify itself via the pool.
	_, err = a.cert.Verify(x509.VerifyOptions{Roots: pool})
	assert.NoError(t, err)

	cfg := b.TLSConfig()
	assert.NotNil(t, cfg.RootCAs)
	assert.EqualValues(t, 0x0303, cfg.MinVersion) // TLS 1.2

	client := b.HTTPClient(5 * time.Second)
	assert.NotNil(t, client.Transport)
}
