// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package commit implements the "spine commit" CLI command: write a
// payload to the truth store under write-once discipline.
//
// The payload comes from --input (or stdin) and is committed to the
// destination path with [immutable.Commit]. A rewrite attempt prints a
// FAIL evidence line with both hashes and exits 2; the stored artifact
// is never touched.
package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/spine-foundation/spine/cmd/spine/cli"
	"github.com/spine-foundation/spine/lib/canonical"
	"github.com/spine-foundation/spine/lib/immutable"
)

type params struct {
	inputPath     string
	canonicalJSON bool
}

// Command returns the "commit" command.
func Command() *cli.Command {
	var p params

	return &cli.Command{
		Name:    "commit",
		Summary: "Write a payload to the truth store (write-once)",
		Description: `Commit a payload to a truth store path under write-once discipline.

If the destination does not exist, the payload is written atomically
(temp file, fsync, rename, directory fsync). If it exists with
byte-identical content, the commit is an idempotent no-op. If it exists
with different content, the commit fails with exit code 2 and both
hashes as evidence; the stored artifact is never modified.

With --canonical-json the payload is parsed as JSON and re-encoded in
canonical form (sorted keys, compact separators, trailing newline)
before hashing and writing. Floating-point values are rejected.`,
		Usage: "spine commit <dest-path> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("commit", pflag.ContinueOnError)
			flagSet.StringVar(&p.inputPath, "input", "", "payload file (default: stdin)")
			flagSet.BoolVar(&p.canonicalJSON, "canonical-json", false, "re-encode the payload as canonical JSON before committing")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Commit a canonical JSON artifact",
				Command:     "spine commit /truth/nav/2026-08-28/nav_v3/eod.json --input eod.json --canonical-json",
			},
			{
				Description: "Commit raw bytes from stdin",
				Command:     "cat report.ndjson | spine commit /truth/md/2026-08-28/md_v2/quotes.ndjson",
			},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			return run(&p, args, logger)
		},
	}
}

func run(p *params, args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one destination path, got %d args", len(args))
	}
	destPath := args[0]

	data, err := readPayload(p.inputPath)
	if err != nil {
		return err
	}

	if p.canonicalJSON {
		data, err = reencodeCanonical(data)
		if err != nil {
			fmt.Printf("FAIL: canonical-encoding error=%v\n", err)
			return &cli.ExitError{Code: 2}
		}
	}

	result, err := immutable.Commit(destPath, data)
	if err != nil {
		var violation *immutable.ViolationError
		if errors.As(err, &violation) {
			fmt.Printf("FAIL: attempted-rewrite path=%s existing_sha256=%s candidate_sha256=%s\n",
				violation.Path, violation.ExistingSHA256, violation.CandidateSHA256)
			return &cli.ExitError{Code: 2}
		}
		fmt.Printf("FAIL: commit path=%s error=%v\n", destPath, err)
		return &cli.ExitError{Code: 2}
	}

	logger.Info("commit complete",
		"path", result.Path,
		"action", string(result.Action),
		"sha256", result.SHA256,
	)
	fmt.Printf("OK: %s path=%s sha256=%s bytes=%d\n",
		result.Action, result.Path, result.SHA256, result.BytesWritten)
	return nil
}

func readPayload(inputPath string) ([]byte, error) {
	if inputPath == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading payload %s: %w", inputPath, err)
	}
	return data, nil
}

// reencodeCanonical parses data as a single JSON document and encodes
// it canonically. Numbers are decoded as json.Number so exact decimal
// text survives the round trip.
func reencodeCanonical(data []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parsing payload JSON: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("payload contains more than one JSON document")
	}
	return canonical.Encode(payload)
}
