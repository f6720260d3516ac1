// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/certbundle/cabot/internal/jobs"
)

// runStatusCLI prints the last run summary from the data directory.
func runStatusCLI(args []string) int {
	fs := newFlagSet("status")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}

	status, err := jobs.ReadSummary(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status: no run recorded yet")
		return 1
	}

	fmt.Printf("run: %s\n", status.RunID)
	fmt.Printf("outcome: %s\n", status.Outcome)
	fmt.Printf("finished: %s\n", status.FinishedAt.Format(time.RFC3339))
	if status.OldCommit != "" {
		fmt.Printf("submodule: %s -> %s\n", status.OldCommit, status.NewCommit)
	}
	if status.CertsTotal > 0 {
		fmt.Printf("certificates: %d (+%d/-%d)\n", status.CertsTotal, status.CertsAdded, status.CertsRemoved)
	}
	if status.PRURL != "" {
		fmt.Printf("pull request: %s\n", status.PRURL)
	}
	if status.Error != "" {
		fmt.Printf("error: %s (stage: %s)\n", status.Error, status.Stage)
	}
	return 0
}
