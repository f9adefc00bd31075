// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint implements the "spine fingerprint" CLI
// subcommands: compute content fingerprints and drive the local
// change-trigger state.
package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	"github.com/spine-foundation/spine/lib/config"
	"github.com/spine-foundation/spine/lib/fingerprint"
	"github.com/spine-foundation/spine/lib/trigger"
)

// Command returns the top-level "fingerprint" command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "fingerprint",
		Summary: "Compute content fingerprints and detect changes",
		Description: `Compute deterministic SHA-256 content fingerprints.

A file fingerprint is the streamed hash of its bytes. A directory
fingerprint covers every regular file under the root: sorted
(relative path, file hash) pairs, hashed as one document. The same
content always yields the same fingerprint regardless of timestamps,
permissions, or walk order. A missing root yields the sentinel
"absent".`,
		Subcommands: []*cli.Command{
			fileCommand(),
			dirCommand(),
			changedCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Fingerprint a dataset directory",
				Command:     "spine fingerprint dir /truth/md/2026-08-28/md_v2",
			},
			{
				Description: "Check (and record) whether an input root changed since last run",
				Command:     "spine fingerprint changed /ingest/md-drops --record",
			},
		},
	}
}

func fileCommand() *cli.Command {
	return &cli.Command{
		Name:    "file",
		Summary: "Print the SHA-256 fingerprint of a file",
		Usage:   "spine fingerprint file <path>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file path, got %d args", len(args))
			}
			sum, err := fingerprint.File(args[0])
			if err != nil {
				return err
			}
			fmt.Println(sum)
			return nil
		},
	}
}

func dirCommand() *cli.Command {
	return &cli.Command{
		Name:    "dir",
		Summary: "Print the deterministic fingerprint of a directory tree",
		Usage:   "spine fingerprint dir <root>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one root path, got %d args", len(args))
			}
			sum, err := fingerprint.Directory(args[0])
			if err != nil {
				return err
			}
			fmt.Println(sum)
			return nil
		},
	}
}

type changedParams struct {
	stateDir   string
	configPath string
	record     bool
}

func changedCommand() *cli.Command {
	var p changedParams

	return &cli.Command{
		Name:    "changed",
		Summary: "Report whether a root changed since the recorded fingerprint",
		Description: `Compare a root's current fingerprint against the one recorded in
the local trigger state. Exits 0 when unchanged, 1 when changed, so
schedulers can gate downstream work on the exit code.

With --record the new fingerprint is persisted, arming the next
comparison. The trigger state is local and non-authoritative: deleting
the state directory only causes the next check to report changed.`,
		Usage: "spine fingerprint changed <root> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("changed", pflag.ContinueOnError)
			flagSet.StringVar(&p.stateDir, "state-dir", "", "trigger state directory (default: state_dir from config)")
			flagSet.StringVar(&p.configPath, "config", "", "config file (default: $SPINE_CONFIG)")
			flagSet.BoolVar(&p.record, "record", false, "persist the current fingerprint after reporting")
			return flagSet
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			return runChanged(&p, args, logger)
		},
	}
}

func runChanged(p *changedParams, args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one root path, got %d args", len(args))
	}
	root := args[0]

	stateDir, err := resolveStateDir(p)
	if err != nil {
		return err
	}
	store, err := trigger.NewStore(stateDir)
	if err != nil {
		return err
	}

	result, err := store.Changed(root)
	if err != nil {
		return err
	}

	changed := result.Fingerprint != result.Previous
	if p.record && changed {
		if err := store.Save(root, result.Fingerprint); err != nil {
			return err
		}
		logger.Info("fingerprint recorded", "root", root, "fingerprint", result.Fingerprint)
	}

	if changed {
		fmt.Printf("changed root=%s previous=%s current=%s\n",
			root, orUnrecorded(result.Previous), result.Fingerprint)
		return &cli.ExitError{Code: 1}
	}
	fmt.Printf("unchanged root=%s fingerprint=%s\n", root, result.Fingerprint)
	return nil
}

func orUnrecorded(fp string) string {
	if fp == "" {
		return "unrecorded"
	}
	return fp
}

// resolveStateDir resolves the trigger state directory from the flag,
// the config file, or the built-in default.
func resolveStateDir(p *changedParams) (string, error) {
	if p.stateDir != "" {
		return p.stateDir, nil
	}

	var cfg *config.Config
	var err error
	switch {
	case p.configPath != "":
		cfg, err = config.LoadFile(p.configPath)
	case os.Getenv("SPINE_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return "", err
	}
	if cfg.StateDir == "" {
		return "", fmt.Errorf("no state directory: set --state-dir or state_dir in config")
	}
	return cfg.StateDir, nil
}
