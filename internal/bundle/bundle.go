// SPDX-License-Identifier: MIT

// Package bundle parses and inspects PEM CA certificate bundles such as the
// Mozilla root store export vendored in the mozilla-ca submodule.
package bundle

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmpty is returned when the input contains no certificates at all.
	ErrEmpty = errors.New("bundle contains no certificates")
)

// Bundle is a parsed CA bundle. Certificates keep their file order; lookups
// go through the fingerprint index.
type Bundle struct {
	Certs []*x509.Certificate

	byFingerprint map[string]*x509.Certificate
}

// Parse reads a PEM bundle. Non-certificate PEM blocks (the Mozilla export
// interleaves comment text between blocks) are skipped; a block that claims
// to be a certificate but fails DER parsing is an error.
func Parse(data []byte) (*Bundle, error) {
	b := &Bundle{byFingerprint: make(map[string]*x509.Certificate)}

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate %d: %w", len(b.Certs)+1, err)
		}
		fp := Fingerprint(cert)
		if _, dup := b.byFingerprint[fp]; dup {
			continue
		}
		b.Certs = append(b.Certs, cert)
		b.byFingerprint[fp] = cert
	}

	if len(b.Certs) == 0 {
		return nil, ErrEmpty
	}
	return b, nil
}

// Load parses a bundle from a file on disk.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %q: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: %w", path, err)
	}
	return b, nil
}

// Fingerprint returns the lowercase hex sha256 of the certificate DER.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Digest returns an order-independent digest of the bundle contents: the
// sha256 over the sorted list of certificate fingerprints. Reordering the
// file without changing the set of roots keeps the digest stable.
func (b *Bundle) Digest() string {
	fps := make([]string, 0, len(b.Certs))
	for fp := range b.byFingerprint {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	h := sha256.New()
	for _, fp := range fps {
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Contains reports whether the bundle holds a certificate with the given
// sha256 fingerprint.
func (b *Bundle) Contains(fingerprint string) bool {
	_, ok := b.byFingerprint[fingerprint]
	return ok
}

// Len returns the number of distinct certificates.
func (b *Bundle) Len() int { return len(b.Certs) }

// Info summarises a bundle for run reports and the verify command.
type Info struct {
	Certs        int       `json:"certs"`
	Digest       string    `json:"digest"`
	Expired      int       `json:"expired"`
	ExpiringSoon int       `json:"expiring_soon"`
	NotYetValid  int       `json:"not_yet_valid"`
	NotAfterMin  time.Time `json:"not_after_min"`
}

// Inspect classifies every certificate's validity window against now.
// Mozilla ships roots ahead of their activation date, so a NotBefore in the
// future is counted, not treated as a broken bundle. Certificates are
// checked in parallel; the Mozilla bundle is ~150 roots so this is cheap,
// but verify is also used against arbitrary user bundles.
func (b *Bundle) Inspect(now time.Time, soonWindow time.Duration) (Info, error) {
	info := Info{Certs: len(b.Certs), Digest: b.Digest()}

	type verdict struct {
		expired  bool
		soon     bool
		notYet   bool
		notAfter time.Time
	}
	verdicts := make([]verdict, len(b.Certs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, cert := range b.Certs {
		g.Go(func() error {
			v := verdict{notAfter: cert.NotAfter}
			switch {
			case now.Before(cert.NotBefore):
				v.notYet = true
			case now.After(cert.NotAfter):
				v.expired = true
			case now.Add(soonWindow).After(cert.NotAfter):
				v.soon = true
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Info{}, err
	}

	for _, v := range verdicts {
		if v.expired {
			info.Expired++
		}
		if v.soon {
			info.ExpiringSoon++
		}
		if v.notYet {
			info.NotYetValid++
		}
		if info.NotAfterMin.IsZero() || v.notAfter.Before(info.NotAfterMin) {
			info.NotAfterMin = v.notAfter
		}
	}
	return info, nil
}
