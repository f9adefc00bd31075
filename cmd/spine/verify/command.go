// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify implements the "spine verify" CLI command: check a
// dataset against its manifest's declarations.
//
// Exit codes are fail-closed: 0 means every check passed; anything
// else, including a malformed manifest or an environment error that
// prevented checking, exits 2. Evidence lines go to stdout.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	"github.com/spine-foundation/spine/lib/config"
	"github.com/spine-foundation/spine/lib/manifest"
	"github.com/spine-foundation/spine/lib/record"
)

type params struct {
	root          string
	schemaPath    string
	orderingField string
	configPath    string
}

// Command returns the "verify" command.
func Command() *cli.Command {
	var p params

	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a dataset against its manifest",
		Description: `Verify a dataset directory against its manifest.

Checks manifest shape, per-file existence and SHA-256 equality,
path confinement under the dataset root, per-record schema validation
and strictly-increasing ordering (when a governed schema is
configured), and the recomputed global hash against the declared
value. All violations are collected and printed as FAIL evidence
lines; the first problem does not stop the scan.

The governed record schema is resolved from --schema/--ordering-field,
or from the config file's schemas entry for the manifest's
dataset_version. Without a schema, record-level checks are skipped.`,
		Usage: "spine verify <manifest> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.StringVar(&p.root, "root", "", "dataset root (default: the manifest's directory)")
			flagSet.StringVar(&p.schemaPath, "schema", "", "governed record schema file (JSON or JSONC)")
			flagSet.StringVar(&p.orderingField, "ordering-field", "", "record field that must be strictly increasing (required with --schema)")
			flagSet.StringVar(&p.configPath, "config", "", "config file (default: $SPINE_CONFIG)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Verify a dataset with the schema from the config file",
				Command:     "spine verify /truth/md/2026-08-28/md_v2/manifest.json --config spine.yaml",
			},
			{
				Description: "Verify with an explicit schema",
				Command:     "spine verify manifest.json --schema md_record.schema.json --ordering-field ts_utc",
			},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			return run(&p, args, logger)
		},
	}
}

func run(p *params, args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one manifest path, got %d args", len(args))
	}
	manifestPath := args[0]

	m, err := manifest.Load(manifestPath)
	if err != nil {
		fmt.Printf("FAIL: manifest path=%s error=%v\n", manifestPath, err)
		return &cli.ExitError{Code: 2}
	}

	root := p.root
	if root == "" {
		root = filepath.Dir(manifestPath)
	}

	schema, err := resolveSchema(p, m.DatasetVersion)
	if err != nil {
		fmt.Printf("FAIL: schema dataset_version=%s error=%v\n", m.DatasetVersion, err)
		return &cli.ExitError{Code: 2}
	}
	if schema == nil {
		logger.Warn("no governed schema configured; record-level checks skipped",
			"dataset_version", m.DatasetVersion)
	}

	report, err := manifest.Verify(m, root, manifest.VerifyOptions{Schema: schema})
	if err != nil {
		fmt.Printf("FAIL: verify root=%s error=%v\n", root, err)
		return &cli.ExitError{Code: 2}
	}

	for _, violation := range report.Violations {
		fmt.Println(violation.String())
	}

	if !report.OK() {
		fmt.Printf("FAIL: dataset_version=%s violations=%d files_checked=%d records_checked=%d\n",
			m.DatasetVersion, len(report.Violations), report.FilesChecked, report.RecordsChecked)
		return &cli.ExitError{Code: 2}
	}

	fmt.Printf("OK: verified dataset_version=%s files=%d records=%d global_hash=%s\n",
		m.DatasetVersion, report.FilesChecked, report.RecordsChecked, m.GlobalHash)
	return nil
}

// resolveSchema picks the governed record schema: explicit flags win,
// then the config file's entry for the dataset version. Returns nil
// (no record checks) when neither names one.
func resolveSchema(p *params, datasetVersion string) (*record.Schema, error) {
	if p.schemaPath != "" {
		if p.orderingField == "" {
			return nil, fmt.Errorf("--schema requires --ordering-field")
		}
		return record.Load(p.schemaPath, p.orderingField)
	}

	cfg, err := loadConfig(p.configPath)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	ref, ok := cfg.Schemas[datasetVersion]
	if !ok {
		return nil, nil
	}
	return record.Load(ref.File, ref.OrderingField)
}

// loadConfig loads the config file when one is named by flag or
// environment. No config at all is fine here (verify can run purely
// from flags), but a named config that fails to load is an error:
// silently ignoring it would skip checks the operator asked for.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("SPINE_CONFIG") == "" {
		return nil, nil
	}
	return config.Load()
}
