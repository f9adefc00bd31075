// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package immutable enforces the write-once rule for truth artifacts.
// The first writer of a path wins; a later commit of identical bytes
// is a harmless replay and succeeds as a no-op; a later commit of
// different bytes is an immutability violation and fails without
// touching the stored artifact. This is the single enforcement point
// that keeps the audit trail from being quietly regenerated with
// different inputs.
package immutable

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spine-foundation/spine/lib/atomicfile"
)

// Action reports what a commit did.
type Action string

const (
	// ActionWrote means the path was absent and the artifact was
	// durably written.
	ActionWrote Action = "wrote"

	// ActionSkippedIdentical means the path already held exactly the
	// candidate bytes; nothing was written.
	ActionSkippedIdentical Action = "skipped-identical"
)

// CommitResult describes a successful commit.
type CommitResult struct {
	Path         string
	SHA256       string
	BytesWritten int
	Action       Action
}

// ViolationError is returned when a commit would rewrite an existing
// artifact with different content. Both digests are carried so an
// investigation never needs to re-run the tool to recover them.
type ViolationError struct {
	Path            string
	ExistingSHA256  string
	CandidateSHA256 string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("immutability violation: attempted rewrite of %s: existing sha256=%s candidate sha256=%s",
		e.Path, e.ExistingSHA256, e.CandidateSHA256)
}

// Commit writes data to path under the write-once rule.
//
// Concurrent commits to the same path are made safe by content-hash
// comparison rather than locking: identical-content committers
// converge on one final state, and when contents differ exactly one
// rename wins; the loser is detected by the post-write verification
// read and surfaces a ViolationError instead of silently losing data.
func Commit(path string, data []byte) (*CommitResult, error) {
	candidate := hashBytes(data)

	info, err := os.Lstat(path)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("commit %s: target exists and is not a regular file", path)
		}
		existing, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("commit %s: reading existing artifact: %w", path, err)
		}
		existingSHA := hashBytes(existing)
		if existingSHA == candidate {
			return &CommitResult{Path: path, SHA256: candidate, Action: ActionSkippedIdentical}, nil
		}
		return nil, &ViolationError{Path: path, ExistingSHA256: existingSHA, CandidateSHA256: candidate}

	case errors.Is(err, fs.ErrNotExist):
		// First writer: fall through to the durable write.

	default:
		return nil, fmt.Errorf("commit %s: stat: %w", path, err)
	}

	if err := atomicfile.Write(path, data); err != nil {
		return nil, err
	}

	// Verify the stored content. Under a same-path race, both writers
	// pass the absence check and both renames succeed; re-reading
	// converts the rename-ordering loser's silent overwrite into a
	// surfaced violation.
	stored, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("commit %s: verifying stored artifact: %w", path, err)
	}
	if storedSHA := hashBytes(stored); storedSHA != candidate {
		return nil, &ViolationError{Path: path, ExistingSHA256: storedSHA, CandidateSHA256: candidate}
	}

	return &CommitResult{Path: path, SHA256: candidate, BytesWritten: len(data), Action: ActionWrote}, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
