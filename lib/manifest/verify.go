// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spine-foundation/spine/lib/fingerprint"
	"github.com/spine-foundation/spine/lib/record"
)

// ViolationKind classifies a verification failure.
type ViolationKind string

const (
	// KindMalformed: the manifest's declarations conflict with each
	// other (duplicate logical keys).
	KindMalformed ViolationKind = "manifest-malformed"

	// KindPathEscape: a declared relative path resolves outside the
	// dataset root.
	KindPathEscape ViolationKind = "path-escape"

	// KindMissingFile: a declared file does not exist on disk.
	KindMissingFile ViolationKind = "missing-file"

	// KindIntegrity: a file's recomputed hash differs from its
	// declared hash.
	KindIntegrity ViolationKind = "integrity"

	// KindSchema: a record failed governed-schema validation or could
	// not be parsed.
	KindSchema ViolationKind = "schema"

	// KindOrdering: a record's ordering key repeats or regresses.
	KindOrdering ViolationKind = "ordering"

	// KindGlobalHash: the recomputed global hash disagrees with the
	// declared one (or with itself across two computations).
	KindGlobalHash ViolationKind = "global-hash"
)

// Violation is one piece of verification evidence. Expected and Actual
// carry hash or key values where the kind has them, so diagnostics
// never require a re-run.
type Violation struct {
	Kind     ViolationKind
	Key      string
	File     string
	Line     int
	Expected string
	Actual   string
	Message  string
}

// String renders the violation as a machine evidence line.
func (v Violation) String() string {
	var b strings.Builder
	b.WriteString("FAIL: ")
	b.WriteString(string(v.Kind))
	if v.Key != "" {
		fmt.Fprintf(&b, " key=%s", v.Key)
	}
	if v.File != "" {
		fmt.Fprintf(&b, " file=%s", v.File)
	}
	if v.Line > 0 {
		fmt.Fprintf(&b, " line=%d", v.Line)
	}
	if v.Expected != "" {
		fmt.Fprintf(&b, " expected=%s", v.Expected)
	}
	if v.Actual != "" {
		fmt.Fprintf(&b, " actual=%s", v.Actual)
	}
	if v.Message != "" {
		fmt.Fprintf(&b, " msg=%q", v.Message)
	}
	return b.String()
}

// Report is the complete evidence from one verification run. The
// verifier collects every violation rather than stopping at the first:
// the purpose is audit, not the shortest path to a verdict.
type Report struct {
	Violations     []Violation
	FilesChecked   int
	RecordsChecked int
}

// OK reports whether verification passed with no violations.
func (r *Report) OK() bool { return len(r.Violations) == 0 }

func (r *Report) add(v Violation) { r.Violations = append(r.Violations, v) }

// VerifyOptions configures record-level validation. When Schema is
// nil, per-record checks are skipped (the schema repository is an
// external collaborator); structural, hash, and global-hash checks
// always run.
type VerifyOptions struct {
	Schema *record.Schema
}

// Verify validates the manifest's declarations against the dataset
// root. The returned error is reserved for environment failures that
// prevent verification from proceeding; everything the dataset itself
// got wrong is reported as violations.
func Verify(m *Manifest, root string, opts VerifyOptions) (*Report, error) {
	if m == nil {
		return nil, errors.New("verify: nil manifest")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("verify: resolving root %s: %w", root, err)
	}

	report := &Report{}

	// Logical keys must be unique: two entries with the same key make
	// the manifest's own declarations ambiguous.
	seenKeys := make(map[string]bool)
	for _, entry := range m.Files {
		if seenKeys[entry.Key] {
			report.add(Violation{
				Kind:    KindMalformed,
				Key:     entry.Key,
				File:    entry.File,
				Message: "duplicate logical key",
			})
			continue
		}
		seenKeys[entry.Key] = true
	}

	for _, entry := range m.Files {
		verifyEntry(report, entry, absRoot, opts)
	}

	// Global hash: recomputed twice. Self-disagreement would mean the
	// computation itself is nondeterministic; checked explicitly
	// because the global hash is what downstream consumers trust.
	first := ComputeGlobalHash(m.Files)
	second := ComputeGlobalHash(m.Files)
	if first != second {
		report.add(Violation{
			Kind:     KindGlobalHash,
			Expected: first,
			Actual:   second,
			Message:  "global hash recomputation disagrees with itself",
		})
	}
	if first != m.GlobalHash {
		report.add(Violation{
			Kind:     KindGlobalHash,
			Expected: m.GlobalHash,
			Actual:   first,
			Message:  "recomputed global hash does not match declared value",
		})
	}

	return report, nil
}

func verifyEntry(report *Report, entry FileEntry, absRoot string, opts VerifyOptions) {
	resolved, ok := resolveWithinRoot(absRoot, entry.File)
	if !ok {
		report.add(Violation{
			Kind:    KindPathEscape,
			Key:     entry.Key,
			File:    entry.File,
			Message: "declared path resolves outside the dataset root",
		})
		return
	}

	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		report.add(Violation{
			Kind:    KindMissingFile,
			Key:     entry.Key,
			File:    entry.File,
			Message: "manifest references a file that does not exist",
		})
		return
	}
	if err != nil || !info.Mode().IsRegular() {
		report.add(Violation{
			Kind:    KindMissingFile,
			Key:     entry.Key,
			File:    entry.File,
			Message: fmt.Sprintf("declared file is not a readable regular file: %v", err),
		})
		return
	}
	report.FilesChecked++

	actual, err := fingerprint.File(resolved)
	if err != nil {
		report.add(Violation{
			Kind:    KindIntegrity,
			Key:     entry.Key,
			File:    entry.File,
			Message: fmt.Sprintf("hashing failed: %v", err),
		})
		return
	}
	if actual != entry.SHA256 {
		report.add(Violation{
			Kind:     KindIntegrity,
			Key:      entry.Key,
			File:     entry.File,
			Expected: entry.SHA256,
			Actual:   actual,
			Message:  "file content does not match declared sha256",
		})
		// Content already disagrees with the manifest: record-level
		// findings on these bytes would attribute the wrong dataset.
		return
	}

	if opts.Schema != nil {
		verifyRecords(report, entry, resolved, opts.Schema)
	}
}

// verifyRecords parses every line of a dataset file as one governed
// record. Schema validation reports only the first failing rule per
// file (deterministic output); ordering-key violations are reported
// per occurrence.
func verifyRecords(report *Report, entry FileEntry, path string, schema *record.Schema) {
	handle, err := os.Open(path)
	if err != nil {
		report.add(Violation{
			Kind:    KindSchema,
			Key:     entry.Key,
			File:    entry.File,
			Message: fmt.Sprintf("opening dataset file: %v", err),
		})
		return
	}
	defer handle.Close()

	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	schemaReported := false
	lastKey := ""
	lastKeyLine := 0
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var instance any
		if err := json.Unmarshal([]byte(text), &instance); err != nil {
			if !schemaReported {
				report.add(Violation{
					Kind:    KindSchema,
					Key:     entry.Key,
					File:    entry.File,
					Line:    line,
					Message: fmt.Sprintf("record is not valid JSON: %v", err),
				})
				schemaReported = true
			}
			continue
		}
		report.RecordsChecked++

		if !schemaReported {
			if err := schema.Validate(instance); err != nil {
				report.add(Violation{
					Kind:    KindSchema,
					Key:     entry.Key,
					File:    entry.File,
					Line:    line,
					Message: err.Error(),
				})
				schemaReported = true
			}
		}

		key, err := schema.OrderingKey(instance)
		if err != nil {
			report.add(Violation{
				Kind:    KindOrdering,
				Key:     entry.Key,
				File:    entry.File,
				Line:    line,
				Message: err.Error(),
			})
			continue
		}
		if lastKey != "" {
			switch {
			case key == lastKey:
				report.add(Violation{
					Kind:     KindOrdering,
					Key:      entry.Key,
					File:     entry.File,
					Line:     line,
					Expected: fmt.Sprintf("> %s", lastKey),
					Actual:   key,
					Message:  fmt.Sprintf("duplicate ordering key (first seen at line %d)", lastKeyLine),
				})
			case key < lastKey:
				report.add(Violation{
					Kind:     KindOrdering,
					Key:      entry.Key,
					File:     entry.File,
					Line:     line,
					Expected: fmt.Sprintf("> %s", lastKey),
					Actual:   key,
					Message:  "ordering key regressed",
				})
			}
		}
		lastKey = key
		lastKeyLine = line
	}

	if err := scanner.Err(); err != nil {
		report.add(Violation{
			Kind:    KindSchema,
			Key:     entry.Key,
			File:    entry.File,
			Message: fmt.Sprintf("reading dataset file: %v", err),
		})
	}
}

// resolveWithinRoot joins a declared relative path to the dataset root
// and reports whether the result stays inside it. Absolute declared
// paths and ".." escapes are both rejected.
func resolveWithinRoot(absRoot, declared string) (string, bool) {
	if filepath.IsAbs(declared) {
		return "", false
	}
	joined := filepath.Join(absRoot, filepath.FromSlash(declared))
	rel, err := filepath.Rel(absRoot, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
