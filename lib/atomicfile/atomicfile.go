// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile provides crash-safe durable writes. A file written
// through this package is either fully present at its target path with
// all bytes on storage, or not present at all: no reader ever observes
// a partial file, and a crash between syscalls never leaves the target
// in a torn state.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileMode is the permission set applied to every written file.
// Artifacts are world-readable evidence; they are never executable.
const FileMode = 0o644

// DirMode is the permission set for created parent directories.
const DirMode = 0o755

// WriteError wraps any failure during an atomic write with the target
// path, so diagnostics never require re-running the writer to learn
// which artifact was affected.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("atomic write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Write durably writes data to path. The sequence is: create parent
// directories; create a uniquely named temp file in the same directory
// (same filesystem, so the final rename is atomic); write all bytes;
// fsync the file; set permissions; rename onto path; fsync the
// directory so the rename itself survives a crash.
//
// The temp file is released on every exit path: consumed by the rename
// on success, deleted on failure.
func Write(path string, data []byte) error {
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, DirMode); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("creating parent directory: %w", err)}
	}

	tmpFile, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("creating temp file: %w", err)}
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return &WriteError{Path: path, Err: fmt.Errorf("writing temp file: %w", err)}
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return &WriteError{Path: path, Err: fmt.Errorf("syncing temp file: %w", err)}
	}
	if err := tmpFile.Chmod(FileMode); err != nil {
		tmpFile.Close()
		return &WriteError{Path: path, Err: fmt.Errorf("setting permissions: %w", err)}
	}
	if err := tmpFile.Close(); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("closing temp file: %w", err)}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("renaming temp file: %w", err)}
	}
	success = true

	if err := syncDirectory(directory); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// syncDirectory forces the directory entry for a completed rename to
// storage. Without this, a crash after the rename could roll the
// directory back to a state where the target never existed.
func syncDirectory(directory string) error {
	handle, err := os.Open(directory)
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer handle.Close()

	if err := handle.Sync(); err != nil {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}
