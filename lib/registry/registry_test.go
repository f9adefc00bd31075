// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validRegistryDoc = `{
	// Spine authority registry. Governance-controlled; do not edit in place.
	"spines": [
		{
			"spine": "accounting",
			"active": "v2",
			"versions": ["v1", "v2"],
			"exclusive": true,
			"enforce_from_day_utc": "2026-06-01",
			"day_path_patterns": [
				{"pattern": "truth/accounting_v1/nav/{DAY}/nav.json", "version": "v1"},
				{"pattern": "truth/accounting_v2/nav/{DAY}/nav.json", "version": "v2"},
			],
		},
		{
			"spine": "market_data",
			"active": "md_v2",
			"versions": ["md_v1", "md_v2"],
			"exclusive": false,
		},
	],
}`

func TestParseValidRegistry(t *testing.T) {
	reg, err := Parse([]byte(validRegistryDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(reg.Spines) != 2 {
		t.Fatalf("len(Spines) = %d, want 2", len(reg.Spines))
	}

	accounting := reg.SpineByName("accounting")
	if accounting == nil {
		t.Fatal("SpineByName(accounting) = nil")
	}
	if accounting.Active != "v2" || !accounting.Exclusive {
		t.Errorf("accounting = %+v", accounting)
	}
	if accounting.EnforceFromDayUTC != "2026-06-01" {
		t.Errorf("EnforceFromDayUTC = %q", accounting.EnforceFromDayUTC)
	}
	if len(accounting.DayPathPatterns) != 2 || accounting.DayPathPatterns[0].Version != "v1" {
		t.Errorf("DayPathPatterns = %+v", accounting.DayPathPatterns)
	}

	if reg.SpineByName("does-not-exist") != nil {
		t.Error("SpineByName returned a spine for an unknown name")
	}
}

func TestParseInfersBareStringPattern(t *testing.T) {
	doc := `{"spines": [{
		"spine": "risk",
		"active": "v3",
		"versions": ["v2", "v3"],
		"exclusive": true,
		"day_path_patterns": [
			"truth/risk_v2/{DAY}/exposure.json",
			"truth/risk_v3/{DAY}/exposure.json"
		]
	}]}`

	reg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	patterns := reg.Spines[0].DayPathPatterns
	if patterns[0].Version != "v2" || patterns[1].Version != "v3" {
		t.Errorf("inferred versions = %q, %q, want v2, v3", patterns[0].Version, patterns[1].Version)
	}
}

func TestParseValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		doc   string
		issue string
	}{
		{
			"missing name",
			`{"spines": [{"active": "v1", "versions": ["v1"], "exclusive": false}]}`,
			"spine name is required",
		},
		{
			"duplicate name",
			`{"spines": [
				{"spine": "a", "active": "v1", "versions": ["v1"]},
				{"spine": "a", "active": "v1", "versions": ["v1"]}
			]}`,
			"duplicate spine name",
		},
		{
			"active not declared",
			`{"spines": [{"spine": "a", "active": "v9", "versions": ["v1"]}]}`,
			`active version "v9" not in versions`,
		},
		{
			"bad cutover day",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1"], "enforce_from_day_utc": "June 1st"}]}`,
			"not a YYYY-MM-DD day",
		},
		{
			"exclusive without patterns",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1"], "exclusive": true}]}`,
			"no day_path_patterns",
		},
		{
			"no day token",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1"], "exclusive": true,
				"day_path_patterns": [{"pattern": "truth/a_v1/static.json", "version": "v1"}]}]}`,
			"exactly one {DAY} token",
		},
		{
			"declared version unknown",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1"], "exclusive": true,
				"day_path_patterns": [{"pattern": "truth/a/{DAY}/x.json", "version": "v8"}]}]}`,
			`declared version "v8" not in versions`,
		},
		{
			"bare pattern without version token",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1"], "exclusive": true,
				"day_path_patterns": ["truth/a/{DAY}/x.json"]}]}`,
			"no version attribution",
		},
		{
			"bare pattern with ambiguous tokens",
			`{"spines": [{"spine": "a", "active": "v1", "versions": ["v1", "v1x"], "exclusive": true,
				"day_path_patterns": ["truth/a_v1/sub_v1x/{DAY}/x.json"]}]}`,
			"ambiguous version attribution",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("Parse error = %v, want *ValidationError", err)
			}
			found := false
			for _, issue := range validation.Issues {
				if strings.Contains(issue, tc.issue) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v do not mention %q", validation.Issues, tc.issue)
			}
		})
	}
}

func TestParseCollectsAllIssues(t *testing.T) {
	doc := `{"spines": [
		{"spine": "", "active": "", "versions": []},
		{"spine": "b", "active": "v9", "versions": ["v1"]}
	]}`

	_, err := Parse([]byte(doc))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Parse error = %v, want *ValidationError", err)
	}
	if len(validation.Issues) < 3 {
		t.Errorf("Issues = %v, want every problem reported, not just the first", validation.Issues)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spine_authority_registry.jsonc")
	if err := os.WriteFile(path, []byte(validRegistryDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(reg.Spines) != 2 {
		t.Errorf("len(Spines) = %d, want 2", len(reg.Spines))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonc")); err == nil {
		t.Error("ReadFile succeeded on a missing file")
	}
}

func TestValidDay(t *testing.T) {
	for day, want := range map[string]bool{
		"2026-08-28": true,
		"2026-8-28":  false,
		"20260828":   false,
		"2026-08-28T00:00:00Z": false,
		"":          false,
		"yyyy-mm-dd": false,
	} {
		if got := ValidDay(day); got != want {
			t.Errorf("ValidDay(%q) = %t, want %t", day, got, want)
		}
	}
}
