// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certbundle/cabot/internal/log"
	"github.com/google/renameio/v2"
)

// summaryFile is the stable name operators can point dashboards at.
const summaryFile = "last_run.json"

// writeSummary persists the run status atomically. renameio handles temp
// file creation, fsync, atomic rename, and cleanup on error, so a crash
// mid-write never leaves a torn summary behind.
func writeSummary(ctx context.Context, dataDir string, status *Status) error {
	logger := log.FromContext(ctx)

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, summaryFile)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending summary file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending summary file")
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace summary: %w", err)
	}
	return nil
}

// ReadSummary loads the last run summary, for the status CLI.
func ReadSummary(dataDir string) (*Status, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, summaryFile))
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	return &status, nil
}
