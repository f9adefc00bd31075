// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the "spine registry" CLI subcommands
// for working with the spine authority registry document.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	"github.com/spine-foundation/spine/lib/registry"
)

// Command returns the top-level "registry" command with all subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "registry",
		Summary: "Inspect and validate the spine authority registry",
		Subcommands: []*cli.Command{
			validateCommand(),
			showCommand(),
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a registry document (fail-closed)",
		Description: `Validate a spine authority registry document without touching the
truth root.

Checks spine names for presence and uniqueness, that the active
version is declared, cutover day format, that exclusive spines carry
day path patterns with exactly one {DAY} placeholder each, and that
every pattern's version attribution is unambiguous. Each issue is
printed as a FAIL evidence line; any issue exits 2.`,
		Usage: "spine registry validate <registry-file>",
		Examples: []cli.Example{
			{
				Description: "Validate before rolling a registry change out",
				Command:     "spine registry validate spine_authority_registry.jsonc",
			},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			return runValidate(args, logger)
		},
	}
}

func runValidate(args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one registry path, got %d args", len(args))
	}
	path := args[0]

	reg, err := registry.ReadFile(path)
	if err != nil {
		var validation *registry.ValidationError
		if errors.As(err, &validation) {
			for _, issue := range validation.Issues {
				fmt.Printf("FAIL: registry %s\n", issue)
			}
			fmt.Printf("FAIL: path=%s issues=%d\n", path, len(validation.Issues))
			return &cli.ExitError{Code: 2}
		}
		fmt.Printf("FAIL: registry path=%s error=%v\n", path, err)
		return &cli.ExitError{Code: 2}
	}

	logger.Info("registry valid", "path", path, "spines", len(reg.Spines))
	fmt.Printf("OK: registry path=%s spines=%d\n", path, len(reg.Spines))
	return nil
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Print the resolved registry",
		Description: `Print the parsed, validated registry with version attribution
resolved for every pattern. Useful for confirming what the enforcer
will actually act on.`,
		Usage: "spine registry show <registry-file>",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			return runShow(args)
		},
	}
}

func runShow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one registry path, got %d args", len(args))
	}

	reg, err := registry.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: registry path=%s error=%v\n", args[0], err)
		return &cli.ExitError{Code: 2}
	}

	for _, spine := range reg.Spines {
		fmt.Printf("spine=%s active=%s versions=%v exclusive=%t", spine.Name, spine.Active, spine.Versions, spine.Exclusive)
		if spine.EnforceFromDayUTC != "" {
			fmt.Printf(" enforce_from=%s", spine.EnforceFromDayUTC)
		}
		fmt.Println()
		for _, ref := range spine.DayPathPatterns {
			fmt.Printf("  pattern=%s version=%s\n", ref.Pattern, ref.Version)
		}
	}
	return nil
}
