// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderUnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "cabot",
		ExporterType: "udp",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-1", "failed", "push")
	assert.Contains(t, attrs, attribute.String(RunIDKey, "run-1"))
	assert.Contains(t, attrs, attribute.String(RunStageKey, "push"))

	attrs = RunAttributes("run-2", "updated", "")
	assert.Len(t, attrs, 2)
}

func TestGitAttributesSkipsEmpty(t *testing.T) {
	attrs := GitAttributes("cacert-updates", "", "mozilla-ca")
	assert.Len(t, attrs, 2)
}
