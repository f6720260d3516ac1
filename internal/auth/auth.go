// SPDX-License-Identifier: MIT

// Package auth holds token extraction and comparison shared by the API
// middleware and the CLI.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken retrieves the API token from the request, preferring the
// Authorization header over the legacy X-API-Token header.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}
	return ""
}

// AuthorizeToken compares the presented token against the configured one in
// constant time. Hashing first keeps the comparison constant time even when
// the lengths differ.
func AuthorizeToken(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
