// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the dataset manifest format and verifies a
// declared manifest against disk reality. A manifest is the signed-off
// table of contents for one truth-spine dataset: which files it holds,
// their SHA-256 digests, and an order-independent global hash tying
// the set together.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/spine-foundation/spine/lib/fingerprint"
)

// requiredFields are the top-level manifest fields that must be
// present. Any other top-level field is a grouping field (symbol,
// exchange, account, ...) and is retained verbatim.
var requiredFields = []string{"dataset_version", "date_range", "files", "global_hash", "created_utc"}

// hexDigestPattern matches a lowercase SHA-256 hex digest.
var hexDigestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Manifest is a parsed dataset manifest.
type Manifest struct {
	DatasetVersion string
	DateRange      DateRange
	Files          []FileEntry
	GlobalHash     string
	CreatedUTC     string

	// Grouping holds the dataset's grouping-key fields: every
	// top-level field that is not one of the required ones.
	Grouping map[string]any
}

// DateRange is the inclusive day range a dataset covers.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FileEntry declares one file of the dataset: a logical key unique
// within the manifest, a path relative to the dataset root, and the
// file's SHA-256 digest.
type FileEntry struct {
	Key    string `json:"key"`
	File   string `json:"file"`
	SHA256 string `json:"sha256"`
}

// MalformedError reports a structurally invalid manifest. Manifest
// shape problems are terminal: verification cannot proceed against a
// document whose meaning is ambiguous.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed manifest: " + e.Reason
}

// Parse decodes and structurally validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedError{Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return nil, &MalformedError{Reason: "missing required field " + field}
		}
	}

	var m Manifest
	if err := json.Unmarshal(raw["dataset_version"], &m.DatasetVersion); err != nil || m.DatasetVersion == "" {
		return nil, &MalformedError{Reason: "dataset_version must be a non-empty string"}
	}
	if err := json.Unmarshal(raw["date_range"], &m.DateRange); err != nil {
		return nil, &MalformedError{Reason: fmt.Sprintf("date_range: %v", err)}
	}
	if err := json.Unmarshal(raw["files"], &m.Files); err != nil {
		return nil, &MalformedError{Reason: fmt.Sprintf("files must be a list of file entries: %v", err)}
	}
	if err := json.Unmarshal(raw["global_hash"], &m.GlobalHash); err != nil || !hexDigestPattern.MatchString(m.GlobalHash) {
		return nil, &MalformedError{Reason: "global_hash must be a 64-character lowercase hex digest"}
	}
	if err := json.Unmarshal(raw["created_utc"], &m.CreatedUTC); err != nil || m.CreatedUTC == "" {
		return nil, &MalformedError{Reason: "created_utc must be a non-empty string"}
	}

	for index, entry := range m.Files {
		if entry.Key == "" {
			return nil, &MalformedError{Reason: fmt.Sprintf("files[%d]: missing logical key", index)}
		}
		if entry.File == "" {
			return nil, &MalformedError{Reason: fmt.Sprintf("files[%d] (key %s): missing file path", index, entry.Key)}
		}
		if !hexDigestPattern.MatchString(entry.SHA256) {
			return nil, &MalformedError{Reason: fmt.Sprintf("files[%d] (key %s): sha256 must be a 64-character lowercase hex digest", index, entry.Key)}
		}
	}

	m.Grouping = make(map[string]any)
	for field, value := range raw {
		if isRequiredField(field) {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, &MalformedError{Reason: fmt.Sprintf("grouping field %s: %v", field, err)}
		}
		m.Grouping[field] = decoded
	}

	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ComputeGlobalHash computes the order-independent dataset hash:
// SHA-256 over "key|sha256\n" lines for every file entry, sorted by
// logical key. The declared entry digests are used (per-file disk
// equality is checked separately), so the global hash binds the
// manifest's own declarations together.
func ComputeGlobalHash(files []FileEntry) string {
	entries := make([]FileEntry, len(files))
	copy(entries, files)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	var payload []byte
	for _, entry := range entries {
		payload = append(payload, entry.Key...)
		payload = append(payload, '|')
		payload = append(payload, entry.SHA256...)
		payload = append(payload, '\n')
	}
	return fingerprint.Bytes(payload)
}

func isRequiredField(name string) bool {
	for _, field := range requiredFields {
		if field == name {
			return true
		}
	}
	return false
}
