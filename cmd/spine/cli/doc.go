// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the spine unified CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/spine/main.go
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Commands whose non-zero exit is a verdict rather than an error (verify,
// enforce) return [ExitError] after printing their own evidence lines;
// main checks for the ExitCode interface and exits silently with that
// code.
package cli
