// SPDX-License-Identifier: MIT

package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, ExtractToken(r))

	r.Header.Set("X-API-Token", "legacy")
	assert.Equal(t, "legacy", ExtractToken(r))

	// Authorization wins over the legacy header.
	r.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, "secret", ExtractToken(r))

	r.Header.Set("Authorization", "Basic dXNlcg==")
	assert.Equal(t, "legacy", ExtractToken(r))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("s3cret", "s3cret"))
	assert.False(t, AuthorizeToken("s3cret", "other"))
	assert.False(t, AuthorizeToken("", "s3cret"))
	assert.False(t, AuthorizeToken("s3cret", ""))
	assert.False(t, AuthorizeToken("", ""))
}
