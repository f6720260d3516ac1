// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// runHealthcheckCLI probes a locally running daemon. Intended for Docker
// HEALTHCHECK, so output is one line and the exit code is the verdict.
func runHealthcheckCLI(args []string) int {
	fs := newFlagSet("healthcheck")
	mode := fs.String("mode", "ready", "healthcheck mode: ready (default) or live")
	port := fs.Int("port", 8080, "API port to check")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/healthz"
	if *mode == "ready" {
		path = "/readyz"
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d%s", *port, path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed (network): %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed (status): %s\n", resp.Status)
		return 1
	}
	fmt.Printf("healthcheck ok (%s)\n", *mode)
	return 0
}
