// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spine-foundation/spine/lib/fingerprint"
	"github.com/spine-foundation/spine/lib/record"
)

const testSchemaDoc = `{
	// Governed record schema for test quotes.
	"type": "object",
	"required": ["ts_utc", "px"],
	"properties": {
		"ts_utc": {"type": "string"},
		"px": {"type": "string"}
	}
}`

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	schema, err := record.Parse([]byte(testSchemaDoc), "ts_utc")
	if err != nil {
		t.Fatalf("record.Parse: %v", err)
	}
	return schema
}

// buildDataset writes the named files under a fresh root and returns
// the root plus a manifest whose digests and global hash match disk.
func buildDataset(t *testing.T, files map[string]string) (string, *Manifest) {
	t.Helper()
	root := t.TempDir()

	var entries []FileEntry
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
		entries = append(entries, FileEntry{
			Key:    strings.TrimSuffix(name, ".ndjson"),
			File:   name,
			SHA256: fingerprint.Bytes([]byte(content)),
		})
	}

	m := &Manifest{
		DatasetVersion: "md_v2",
		DateRange:      DateRange{Start: "2026-08-01", End: "2026-08-28"},
		Files:          entries,
		CreatedUTC:     "2026-08-28T17:05:00Z",
	}
	m.GlobalHash = ComputeGlobalHash(m.Files)
	return root, m
}

func violationKinds(report *Report) []ViolationKind {
	kinds := make([]ViolationKind, 0, len(report.Violations))
	for _, v := range report.Violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

func TestVerifyCleanDataset(t *testing.T) {
	root, m := buildDataset(t, map[string]string{
		"quotes.ndjson": `{"ts_utc":"2026-08-28T09:00:00Z","px":"1.0912"}` + "\n" +
			`{"ts_utc":"2026-08-28T09:00:01Z","px":"1.0913"}` + "\n",
		"trades.ndjson": `{"ts_utc":"2026-08-28T09:00:02Z","px":"1.0910"}` + "\n",
	})

	report, err := Verify(m, root, VerifyOptions{Schema: testSchema(t)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("violations on a clean dataset: %v", report.Violations)
	}
	if report.FilesChecked != 2 {
		t.Errorf("FilesChecked = %d, want 2", report.FilesChecked)
	}
	if report.RecordsChecked != 3 {
		t.Errorf("RecordsChecked = %d, want 3", report.RecordsChecked)
	}
}

func TestVerifyDetectsByteFlip(t *testing.T) {
	root, m := buildDataset(t, map[string]string{
		"quotes.ndjson": `{"ts_utc":"2026-08-28T09:00:00Z","px":"1.0912"}` + "\n",
	})

	// Flip one byte after the manifest was sealed.
	tampered := `{"ts_utc":"2026-08-28T09:00:00Z","px":"1.0913"}` + "\n"
	if err := os.WriteFile(filepath.Join(root, "quotes.ndjson"), []byte(tampered), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	report, err := Verify(m, root, VerifyOptions{Schema: testSchema(t)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var integrity *Violation
	for i := range report.Violations {
		if report.Violations[i].Kind == KindIntegrity {
			integrity = &report.Violations[i]
		}
	}
	if integrity == nil {
		t.Fatalf("no integrity violation, got %v", violationKinds(report))
	}
	if integrity.Expected != m.Files[0].SHA256 {
		t.Errorf("Expected = %s, want declared digest", integrity.Expected)
	}
	if integrity.Actual != fingerprint.Bytes([]byte(tampered)) {
		t.Errorf("Actual = %s, want digest of tampered bytes", integrity.Actual)
	}

	// Record checks on tampered bytes would attribute the wrong data.
	if report.RecordsChecked != 0 {
		t.Errorf("RecordsChecked = %d, want 0 for a file failing hash equality", report.RecordsChecked)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	root, m := buildDataset(t, map[string]string{
		"quotes.ndjson": `{"ts_utc":"a","px":"1"}` + "\n",
	})
	if err := os.Remove(filepath.Join(root, "quotes.ndjson")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	report, err := Verify(m, root, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Violations) == 0 || report.Violations[0].Kind != KindMissingFile {
		t.Errorf("violations = %v, want a missing-file violation", report.Violations)
	}
}

func TestVerifyPathEscape(t *testing.T) {
	root, m := buildDataset(t, nil)
	m.Files = []FileEntry{
		{Key: "escape", File: "../outside.ndjson", SHA256: strings.Repeat("a", 64)},
		{Key: "absolute", File: "/etc/passwd", SHA256: strings.Repeat("a", 64)},
	}
	m.GlobalHash = ComputeGlobalHash(m.Files)

	report, err := Verify(m, root, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	escapes := 0
	for _, v := range report.Violations {
		if v.Kind == KindPathEscape {
			escapes++
		}
	}
	if escapes != 2 {
		t.Errorf("path-escape violations = %d, want 2 (got %v)", escapes, violationKinds(report))
	}
}

func TestVerifyDuplicateLogicalKey(t *testing.T) {
	root, m := buildDataset(t, map[string]string{
		"quotes.ndjson": "{}\n",
	})
	m.Files = append(m.Files, m.Files[0])
	m.GlobalHash = ComputeGlobalHash(m.Files)

	report, err := Verify(m, root, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	found := false
	for _, v := range report.Violations {
		if v.Kind == KindMalformed && strings.Contains(v.Message, "duplicate logical key") {
			found = true
		}
	}
	if !found {
		t.Errorf("no duplicate-key violation in %v", report.Violations)
	}
}

func TestVerifyGlobalHashMismatch(t *testing.T) {
	root, m := buildDataset(t, map[string]string{
		"quotes.ndjson": `{"ts_utc":"a","px":"1"}` + "\n",
	})
	m.GlobalHash = strings.Repeat("d", 64)

	report, err := Verify(m, root, VerifyOptions{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var global *Violation
	for i := range report.Violations {
		if report.Violations[i].Kind == KindGlobalHash {
			global = &report.Violations[i]
		}
	}
	if global == nil {
		t.Fatalf("no global-hash violation, got %v", violationKinds(report))
	}
	if global.Expected != m.GlobalHash || global.Actual != ComputeGlobalHash(m.Files) {
		t.Errorf("global-hash violation carries %s/%s, want declared vs recomputed", global.Expected, global.Actual)
	}
}

func TestVerifyOrderingViolations(t *testing.T) {
	content := `{"ts_utc":"2026-08-28T09:00:00Z","px":"1"}` + "\n" +
		`{"ts_utc":"2026-08-28T09:00:00Z","px":"2"}` + "\n" + // duplicate key
		`{"ts_utc":"2026-08-28T08:59:59Z","px":"3"}` + "\n" // regression
	root, m := buildDataset(t, map[string]string{"quotes.ndjson": content})

	report, err := Verify(m, root, VerifyOptions{Schema: testSchema(t)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	var ordering []Violation
	for _, v := range report.Violations {
		if v.Kind == KindOrdering {
			ordering = append(ordering, v)
		}
	}
	if len(ordering) != 2 {
		t.Fatalf("ordering violations = %d, want 2 (got %v)", len(ordering), report.Violations)
	}

	if ordering[0].Line != 2 || !strings.Contains(ordering[0].Message, "duplicate ordering key") {
		t.Errorf("first ordering violation = %+v, want duplicate at line 2", ordering[0])
	}
	if !strings.Contains(ordering[0].Message, "first seen at line 1") {
		t.Errorf("duplicate violation %q does not cite the first occurrence", ordering[0].Message)
	}
	if ordering[1].Line != 3 || !strings.Contains(ordering[1].Message, "regressed") {
		t.Errorf("second ordering violation = %+v, want regression at line 3", ordering[1])
	}
}

func TestVerifySchemaFirstFailureOnly(t *testing.T) {
	// Three records all missing the required px field; only the first
	// failing rule per file is reported, ordering still checked.
	content := `{"ts_utc":"2026-08-28T09:00:00Z"}` + "\n" +
		`{"ts_utc":"2026-08-28T09:00:01Z"}` + "\n" +
		`{"ts_utc":"2026-08-28T09:00:02Z"}` + "\n"
	root, m := buildDataset(t, map[string]string{"quotes.ndjson": content})

	report, err := Verify(m, root, VerifyOptions{Schema: testSchema(t)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	schemaViolations := 0
	for _, v := range report.Violations {
		if v.Kind == KindSchema {
			schemaViolations++
		}
	}
	if schemaViolations != 1 {
		t.Errorf("schema violations = %d, want 1 (first failing rule only); all: %v",
			schemaViolations, report.Violations)
	}
}

func TestVerifySkipsBlankLines(t *testing.T) {
	content := `{"ts_utc":"2026-08-28T09:00:00Z","px":"1"}` + "\n\n" +
		`{"ts_utc":"2026-08-28T09:00:01Z","px":"2"}` + "\n"
	root, m := buildDataset(t, map[string]string{"quotes.ndjson": content})

	report, err := Verify(m, root, VerifyOptions{Schema: testSchema(t)})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK() {
		t.Errorf("blank line produced violations: %v", report.Violations)
	}
	if report.RecordsChecked != 2 {
		t.Errorf("RecordsChecked = %d, want 2", report.RecordsChecked)
	}
}

func TestViolationString(t *testing.T) {
	v := Violation{
		Kind:     KindIntegrity,
		Key:      "quotes",
		File:     "quotes.ndjson",
		Expected: "aa",
		Actual:   "bb",
		Message:  "file content does not match declared sha256",
	}
	line := v.String()
	if !strings.HasPrefix(line, "FAIL: integrity") {
		t.Errorf("String() = %q, want FAIL: integrity prefix", line)
	}
	for _, fragment := range []string{"key=quotes", "file=quotes.ndjson", "expected=aa", "actual=bb"} {
		if !strings.Contains(line, fragment) {
			t.Errorf("String() = %q, missing %q", line, fragment)
		}
	}
}
