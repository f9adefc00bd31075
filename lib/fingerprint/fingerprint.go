// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes content hashes of files and directory
// subtrees. A fingerprint depends only on bytes and relative paths,
// never on timestamps, ownership, or filesystem iteration order, so
// it is a stable identity for "has anything under this root changed".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Absent is the sentinel returned by Directory for a root that does
// not exist. It is deliberately not a valid hex digest: "no tree" and
// "empty tree" are different states, and conflating them would make a
// deleted root look like an unchanged one.
const Absent = "absent"

// chunkSize is the read size for streaming file hashing.
const chunkSize = 1 << 20

// File returns the lowercase SHA-256 hex digest of the file's content,
// streamed in fixed-size chunks.
func File(path string) (string, error) {
	handle, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer handle.Close()

	hasher := sha256.New()
	buffer := make([]byte, chunkSize)
	for {
		n, err := handle.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Bytes returns the lowercase SHA-256 hex digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Directory returns a single digest summarizing every regular file
// under root: sorted (relative path, file hash) pairs concatenated as
// "path\nhash\n" and hashed. Any byte edit, file addition, or file
// removal under root changes the result. Returns Absent when root
// does not exist.
//
// The walk is a point-in-time snapshot of an external mutable
// resource; the result carries no freshness guarantee after return.
func Directory(root string) (string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("fingerprinting %s: not a directory", root)
	}

	type entry struct {
		relPath string
		hash    string
	}
	var entries []entry

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fileHash, err := File(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{relPath: filepath.ToSlash(relPath), hash: fileHash})
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", root, walkErr)
	}

	// WalkDir visits in per-directory lexical order, but the fingerprint
	// must not depend on traversal details: sort byte-wise on the final
	// slash-normalized relative paths.
	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })

	hasher := sha256.New()
	for _, e := range entries {
		hasher.Write([]byte(e.relPath))
		hasher.Write([]byte{'\n'})
		hasher.Write([]byte(e.hash))
		hasher.Write([]byte{'\n'})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
