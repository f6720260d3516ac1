// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryRoundTrip(t *testing.T) {
	dir := t.TempDir()

	status := &Status{
		RunID:      "run-1",
		StartedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 1, 10, 1, 30, 0, time.UTC),
		Outcome:    OutcomeUpdated,
		Submodule:  "mozilla-ca",
		OldCommit:  "aaa",
		NewCommit:  "bbb",
		CertsTotal: 140,
		CertsAdded: 2,
		PRNumber:   12,
		PRURL:      "https://example.com/pr/12",
	}
	require.NoError(t, writeSummary(context.Background(), dir, status))

	got, err := ReadSummary(dir)
	require.NoError(t, err)
	assert.Equal(t, status, got)
}

func TestReadSummaryMissing(t *testing.T) {
	_, err := ReadSummary(t.TempDir())
	assert.Error(t, err)
}
