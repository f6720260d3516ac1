// SPDX-License-Identifier: MIT

// Command daemon runs the cabot service: a manually dispatched job that
// pulls Mozilla CA certificate updates into a repository submodule, signs
// a commit, and opens a pull request.
//
// Subcommands:
//
//	(none)      run the daemon with the dispatch API
//	update      run one update synchronously and exit
//	verify      inspect a PEM bundle file
//	status      print the last run summary
//	healthcheck probe a running daemon (for container HEALTHCHECK)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/certbundle/cabot/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "update":
			os.Exit(runUpdateCLI(os.Args[2:]))
		case "verify":
			os.Exit(runVerifyCLI(os.Args[2:]))
		case "status":
			os.Exit(runStatusCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	os.Exit(runServe(*configPath))
}
