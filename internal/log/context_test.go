// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCarriers(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithRunID(ctx, "run-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "run-1", RunIDFromContext(ctx))

	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, RunIDFromContext(nil)) //nolint:staticcheck // nil context is part of the contract
}

func TestWithContextEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRunID(context.Background(), "run-7")
	enriched := WithContext(ctx, base)
	enriched.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-7", entry[FieldRunID])
}
