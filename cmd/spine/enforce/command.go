// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package enforce implements the "spine enforce" CLI command: check
// spine exclusivity across the truth root.
//
// Exit codes are fail-closed: 0 means every exclusive spine passed;
// any violation, an invalid registry, or a scan that could not be
// trusted exits 2.
package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	"github.com/spine-foundation/spine/lib/config"
	"github.com/spine-foundation/spine/lib/registry"
	"github.com/spine-foundation/spine/lib/spine"
)

type params struct {
	registryPath string
	root         string
	configPath   string
}

// Command returns the "enforce" command.
func Command() *cli.Command {
	var p params

	return &cli.Command{
		Name:    "enforce",
		Summary: "Enforce spine exclusivity across the truth root",
		Description: `Enforce the one-active-version rule for every exclusive spine.

For each exclusive spine in the registry, day directories under the
spine's path patterns are scanned. A day with artifacts from more than
one version is a split-brain violation. A day whose single present
version is not the registered active version is a wrong-active-version
violation, checked from the spine's cutover day onward. Split-brain is
checked on every day regardless of cutover. A spine with no cutover day
gets split-brain enforcement only. Violations are printed as FAIL
evidence lines.`,
		Usage: "spine enforce [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("enforce", pflag.ContinueOnError)
			flagSet.StringVar(&p.registryPath, "registry", "", "spine registry file (default: registry_file from config)")
			flagSet.StringVar(&p.root, "root", "", "truth root directory (default: truth_root from config)")
			flagSet.StringVar(&p.configPath, "config", "", "config file (default: $SPINE_CONFIG)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Enforce using paths from the config file",
				Command:     "spine enforce --config spine.yaml",
			},
			{
				Description: "Enforce with explicit registry and root",
				Command:     "spine enforce --registry spine_authority_registry.jsonc --root /truth",
			},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			return run(&p, args, logger)
		},
	}
}

func run(p *params, args []string, logger *slog.Logger) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	registryPath, root, err := resolvePaths(p)
	if err != nil {
		return err
	}

	reg, err := registry.ReadFile(registryPath)
	if err != nil {
		fmt.Printf("FAIL: registry path=%s error=%v\n", registryPath, err)
		return &cli.ExitError{Code: 2}
	}

	report, err := spine.Enforce(reg, root)
	if err != nil {
		fmt.Printf("FAIL: enforce root=%s error=%v\n", root, err)
		return &cli.ExitError{Code: 2}
	}

	for _, violation := range report.Violations {
		fmt.Println(violation.String())
	}

	if !report.OK() {
		fmt.Printf("FAIL: violations=%d spines_checked=%d days_checked=%d\n",
			len(report.Violations), report.SpinesChecked, report.DaysChecked)
		return &cli.ExitError{Code: 2}
	}

	logger.Info("enforcement passed",
		"spines_checked", report.SpinesChecked,
		"days_checked", report.DaysChecked,
	)
	fmt.Printf("OK: exclusivity spines_checked=%d days_checked=%d\n",
		report.SpinesChecked, report.DaysChecked)
	return nil
}

// resolvePaths resolves the registry file and truth root from flags,
// falling back to the config file. Both are required from one source
// or the other.
func resolvePaths(p *params) (registryPath, root string, err error) {
	registryPath = p.registryPath
	root = p.root
	if registryPath != "" && root != "" {
		return registryPath, root, nil
	}

	var cfg *config.Config
	switch {
	case p.configPath != "":
		cfg, err = config.LoadFile(p.configPath)
	case os.Getenv("SPINE_CONFIG") != "":
		cfg, err = config.Load()
	default:
		return "", "", fmt.Errorf("need --registry and --root, or a config file (--config / $SPINE_CONFIG)")
	}
	if err != nil {
		return "", "", err
	}

	if registryPath == "" {
		registryPath = cfg.RegistryFile
	}
	if root == "" {
		root = cfg.TruthRoot
	}
	if registryPath == "" {
		return "", "", fmt.Errorf("no registry file: set --registry or registry_file in config")
	}
	if root == "" {
		return "", "", fmt.Errorf("no truth root: set --root or truth_root in config")
	}
	return registryPath, root, nil
}
