// SPDX-License-Identifier: MIT

package bundle

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
)

// Change describes one certificate that entered or left the bundle.
type Change struct {
	Subject     string `json:"subject"`
	Fingerprint string `json:"fingerprint"`
	NotAfter    string `json:"not_after"`
}

// Diff is the set difference between two bundles, keyed by fingerprint.
type Diff struct {
	Added    []Change `json:"added"`
	Removed  []Change `json:"removed"`
	Retained int      `json:"retained"`
}

// Compare diffs old against new. Either side may be nil, which is treated as
// an empty bundle (first run has no previous bundle to compare against).
func Compare(oldB, newB *Bundle) Diff {
	var d Diff

	if newB != nil {
		for _, cert := range newB.Certs {
			if oldB == nil || !oldB.Contains(Fingerprint(cert)) {
				d.Added = append(d.Added, change(cert))
			} else {
				d.Retained++
			}
		}
	}
	if oldB != nil {
		for _, cert := range oldB.Certs {
			if newB == nil || !newB.Contains(Fingerprint(cert)) {
				d.Removed = append(d.Removed, change(cert))
			}
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Subject < d.Added[j].Subject })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Subject < d.Removed[j].Subject })
	return d
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Summary renders a short markdown fragment for PR bodies.
func (d Diff) Summary() string {
	if d.Empty() {
		return "No root certificate changes."
	}
	var sb strings.Builder
	if len(d.Added) > 0 {
		fmt.Fprintf(&sb, "Added roots (%d):\n", len(d.Added))
		for _, c := range d.Added {
			fmt.Fprintf(&sb, "- %s (expires %s)\n", c.Subject, c.NotAfter)
		}
	}
	if len(d.Removed) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Removed roots (%d):\n", len(d.Removed))
		for _, c := range d.Removed {
			fmt.Fprintf(&sb, "- %s\n", c.Subject)
		}
	}
	return sb.String()
}

func change(cert *x509.Certificate) Change {
	subject := cert.Subject.CommonName
	if subject == "" {
		subject = cert.Subject.String()
	}
	return Change{
		Subject:     subject,
		Fingerprint: Fingerprint(cert),
		NotAfter:    cert.NotAfter.Format("2006-01-02"),
	}
}
