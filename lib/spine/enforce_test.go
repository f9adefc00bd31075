// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package spine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spine-foundation/spine/lib/registry"
)

// touch creates an artifact file (and its parents) under root.
func touch(t *testing.T, root string, relPath string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// accountingRegistry returns a registry with one exclusive spine:
// versions v1 and v2, active v2, cutover on cutoverDay (or no cutover
// when empty).
func accountingRegistry(t *testing.T, cutoverDay string) *registry.Registry {
	t.Helper()
	reg := &registry.Registry{
		Spines: []registry.Spine{{
			Name:              "accounting",
			Active:            "v2",
			Versions:          []string{"v1", "v2"},
			Exclusive:         true,
			EnforceFromDayUTC: cutoverDay,
			DayPathPatterns: []registry.PatternRef{
				{Pattern: "truth/accounting_v1/nav/{DAY}/nav.json", Version: "v1"},
				{Pattern: "truth/accounting_v2/nav/{DAY}/nav.json", Version: "v2"},
			},
		}},
	}
	if issues := reg.Validate(); len(issues) > 0 {
		t.Fatalf("test registry invalid: %v", issues)
	}
	return reg
}

func TestEnforceCleanRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v2/nav/2026-07-01/nav.json")
	touch(t, root, "truth/accounting_v2/nav/2026-07-02/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if !report.OK() {
		t.Fatalf("violations on a clean root: %v", report.Violations)
	}
	if report.SpinesChecked != 1 {
		t.Errorf("SpinesChecked = %d, want 1", report.SpinesChecked)
	}
	if report.DaysChecked != 2 {
		t.Errorf("DaysChecked = %d, want 2", report.DaysChecked)
	}
}

func TestEnforceSplitBrain(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-07-01/nav.json")
	touch(t, root, "truth/accounting_v2/nav/2026-07-01/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly one", report.Violations)
	}

	v := report.Violations[0]
	if v.Kind != KindSplitBrain {
		t.Errorf("Kind = %q, want %q", v.Kind, KindSplitBrain)
	}
	if v.Spine != "accounting" || v.Day != "2026-07-01" {
		t.Errorf("violation = %+v", v)
	}
	if len(v.Present) != 2 {
		t.Errorf("Present = %v, want both versions", v.Present)
	}
	if v.Counts["v1"] != 1 || v.Counts["v2"] != 1 {
		t.Errorf("Counts = %v", v.Counts)
	}
}

func TestEnforceSplitBrainBeforeCutover(t *testing.T) {
	// Split-brain is corruption on any day ever populated; the cutover
	// only scopes the active-version rule.
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-01-15/nav.json")
	touch(t, root, "truth/accounting_v2/nav/2026-01-15/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0].Kind != KindSplitBrain {
		t.Errorf("violations = %v, want one split-brain before cutover", report.Violations)
	}
}

func TestEnforceWrongActiveVersion(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-07-01/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("violations = %v, want exactly one", report.Violations)
	}
	v := report.Violations[0]
	if v.Kind != KindWrongActiveVersion {
		t.Errorf("Kind = %q, want %q", v.Kind, KindWrongActiveVersion)
	}
	if v.Active != "v2" || len(v.Present) != 1 || v.Present[0] != "v1" {
		t.Errorf("violation = %+v", v)
	}
}

func TestEnforceWrongVersionBeforeCutoverPasses(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-01-15/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if !report.OK() {
		t.Errorf("pre-cutover non-active day flagged: %v", report.Violations)
	}
}

func TestEnforceCutoverDayItselfEnforced(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-06-01/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if report.OK() {
		t.Error("cutover day itself must be subject to the active-version rule")
	}
}

func TestEnforceNoCutoverDisablesActiveVersionRule(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-07-01/nav.json")

	report, err := Enforce(accountingRegistry(t, ""), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if !report.OK() {
		t.Errorf("with no cutover only split-brain applies, got %v", report.Violations)
	}

	// Split-brain still fires.
	touch(t, root, "truth/accounting_v2/nav/2026-07-01/nav.json")
	report, err = Enforce(accountingRegistry(t, ""), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0].Kind != KindSplitBrain {
		t.Errorf("violations = %v, want one split-brain", report.Violations)
	}
}

func TestEnforceSkipsNonExclusiveSpines(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/md_v1/2026-07-01/quotes.ndjson")
	touch(t, root, "truth/md_v2/2026-07-01/quotes.ndjson")

	reg := &registry.Registry{
		Spines: []registry.Spine{{
			Name:      "market_data",
			Active:    "md_v2",
			Versions:  []string{"md_v1", "md_v2"},
			Exclusive: false,
			DayPathPatterns: []registry.PatternRef{
				{Pattern: "truth/md_v1/{DAY}/quotes.ndjson", Version: "md_v1"},
				{Pattern: "truth/md_v2/{DAY}/quotes.ndjson", Version: "md_v2"},
			},
		}},
	}

	report, err := Enforce(reg, root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if report.SpinesChecked != 0 || !report.OK() {
		t.Errorf("non-exclusive spine was enforced: %+v", report)
	}
}

func TestEnforceIgnoresNonDayDirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/latest/nav.json")
	touch(t, root, "truth/accounting_v1/nav/2026-7-1/nav.json")
	touch(t, root, "truth/accounting_v2/nav/2026-07-01/nav.json")

	report, err := Enforce(accountingRegistry(t, "2026-06-01"), root)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if report.DaysChecked != 1 {
		t.Errorf("DaysChecked = %d, want 1 (non-day directories ignored)", report.DaysChecked)
	}
	if !report.OK() {
		t.Errorf("violations = %v", report.Violations)
	}
}

func TestEnforceEmptyRootPasses(t *testing.T) {
	report, err := Enforce(accountingRegistry(t, "2026-06-01"), t.TempDir())
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if !report.OK() || report.DaysChecked != 0 {
		t.Errorf("empty root: %+v", report)
	}
}

func TestEnforcePatternEscapeIsFatal(t *testing.T) {
	reg := &registry.Registry{
		Spines: []registry.Spine{{
			Name:      "accounting",
			Active:    "v1",
			Versions:  []string{"v1"},
			Exclusive: true,
			DayPathPatterns: []registry.PatternRef{
				{Pattern: "../outside/{DAY}/nav.json", Version: "v1"},
			},
		}},
	}

	if _, err := Enforce(reg, t.TempDir()); err == nil {
		t.Fatal("Enforce accepted a pattern escaping the truth root")
	}
}

func TestEnforceUnreadableArtifactPathIsFatal(t *testing.T) {
	// The artifact path descends through a regular file, so stat fails
	// with ENOTDIR rather than ENOENT. That is a broken root, not an
	// absent artifact: the scan must abort instead of passing.
	root := t.TempDir()
	touch(t, root, "truth/accounting_v1/nav/2026-07-01/sub")

	reg := &registry.Registry{
		Spines: []registry.Spine{{
			Name:      "accounting",
			Active:    "v1",
			Versions:  []string{"v1"},
			Exclusive: true,
			DayPathPatterns: []registry.PatternRef{
				{Pattern: "truth/accounting_v1/nav/{DAY}/sub/nav.json", Version: "v1"},
			},
		}},
	}
	if issues := reg.Validate(); len(issues) > 0 {
		t.Fatalf("test registry invalid: %v", issues)
	}

	if _, err := Enforce(reg, root); err == nil {
		t.Fatal("Enforce treated an unreadable artifact path as absent")
	}
}
