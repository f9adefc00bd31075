// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	commitcmd "github.com/spine-foundation/spine/cmd/spine/commit"
	enforcecmd "github.com/spine-foundation/spine/cmd/spine/enforce"
	fingerprintcmd "github.com/spine-foundation/spine/cmd/spine/fingerprint"
	registrycmd "github.com/spine-foundation/spine/cmd/spine/registry"
	verifycmd "github.com/spine-foundation/spine/cmd/spine/verify"
	"github.com/spine-foundation/spine/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Verification commands print their own FAIL evidence and
		// return an ExitError with the desired exit code. Don't print
		// a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(context.Background(), os.Args[1:])
}

// root builds the complete spine CLI command tree.
func root() *cli.Command {
	return &cli.Command{
		Name: "spine",
		Description: `Spine: immutable write/verify layer for truth spines.

Commit artifacts under write-once discipline, verify datasets against
their manifests, and enforce one-active-version exclusivity across the
truth store. Verification commands exit 0 on pass and 2 on any
failure, including failures to check.`,
		Subcommands: []*cli.Command{
			commitcmd.Command(),
			verifycmd.Command(),
			enforcecmd.Command(),
			fingerprintcmd.Command(),
			registrycmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("spine %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
