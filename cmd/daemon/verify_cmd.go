// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/certbundle/cabot/internal/bundle"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// runVerifyCLI parses a PEM bundle and reports its contents. Exit code 1
// flags an unusable bundle, 2 a usage error.
func runVerifyCLI(args []string) int {
	fs := newFlagSet("verify")
	window := fs.Duration("expiry-window", 90*24*time.Hour, "flag certificates expiring within this window")
	strict := fs.Bool("strict", false, "fail when the bundle contains expired certificates")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cabot verify [flags] <bundle.pem>")
		return 2
	}
	path := fs.Arg(0)

	b, err := bundle.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}
	info, err := b.Inspect(time.Now(), *window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}

	fmt.Printf("bundle: %s\n", path)
	fmt.Printf("certificates: %d\n", info.Certs)
	fmt.Printf("digest: %s\n", info.Digest)
	fmt.Printf("expired: %d\n", info.Expired)
	fmt.Printf("expiring within %s: %d\n", window.String(), info.ExpiringSoon)
	fmt.Printf("not yet valid: %d\n", info.NotYetValid)
	if !info.NotAfterMin.IsZero() {
		fmt.Printf("earliest expiry: %s\n", info.NotAfterMin.Format(time.RFC3339))
	}

	if *strict && info.Expired > 0 {
		fmt.Fprintf(os.Stderr, "verify: bundle contains %d expired certificates\n", info.Expired)
		return 1
	}
	return 0
}
