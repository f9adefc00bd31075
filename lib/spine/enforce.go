// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package spine enforces per-day version exclusivity for truth spines.
// For every exclusive spine, at most one schema version may have
// artifacts on any given day; the presence of two versions on the same
// day is a split-brain: two incompatible implementations both
// claiming authority over the same logical data.
//
// Enforcement reads the filesystem as a point-in-time snapshot. The
// result carries no freshness guarantee: a pass means "no violation
// was present at scan time", nothing more.
package spine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spine-foundation/spine/lib/registry"
)

// ViolationKind classifies an exclusivity failure.
type ViolationKind string

const (
	// KindSplitBrain: more than one version has artifacts for the
	// same (spine, day). The central exclusivity guarantee is broken.
	KindSplitBrain ViolationKind = "split-brain"

	// KindWrongActiveVersion: exactly one version is present for the
	// day, but it is not the registry's active version.
	KindWrongActiveVersion ViolationKind = "wrong-active-version"
)

// Violation is one (spine, day) exclusivity failure with the full
// per-version presence counts, so the evidence alone identifies every
// offending artifact location class.
type Violation struct {
	Kind    ViolationKind
	Spine   string
	Day     string
	Active  string
	Present []string
	Counts  map[string]int
}

// String renders the violation as a machine evidence line.
func (v Violation) String() string {
	return fmt.Sprintf("FAIL: %s spine=%s day=%s active=%s present=%v counts=%v",
		v.Kind, v.Spine, v.Day, v.Active, v.Present, v.Counts)
}

// Report is the complete evidence from one enforcement run.
type Report struct {
	Violations    []Violation
	SpinesChecked int
	DaysChecked   int
}

// OK reports whether enforcement passed with no violations.
func (r *Report) OK() bool { return len(r.Violations) == 0 }

// Enforce checks every exclusive spine in the registry against the
// truth root. Violations are collected exhaustively; the returned
// error is reserved for fatal configuration problems (a pattern
// resolving outside the root, an unreadable directory); those mean
// the scan itself cannot be trusted, not that a spine is in violation.
func Enforce(reg *registry.Registry, root string) (*Report, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("enforce: resolving root %s: %w", root, err)
	}

	report := &Report{}

	for index := range reg.Spines {
		spine := &reg.Spines[index]
		if !spine.Exclusive {
			continue
		}
		report.SpinesChecked++

		// day -> version -> artifact count.
		perDay := make(map[string]map[string]int)

		for _, ref := range spine.DayPathPatterns {
			days, err := discoverDays(absRoot, ref.Pattern)
			if err != nil {
				return nil, fmt.Errorf("enforce: spine %s: %w", spine.Name, err)
			}
			for _, day := range days {
				counts, ok := perDay[day]
				if !ok {
					counts = make(map[string]int, len(spine.Versions))
					for _, version := range spine.Versions {
						counts[version] = 0
					}
					perDay[day] = counts
				}
				counts[ref.Version]++
			}
		}

		days := make([]string, 0, len(perDay))
		for day := range perDay {
			days = append(days, day)
		}
		sort.Strings(days)

		for _, day := range days {
			report.DaysChecked++
			judgeDay(report, spine, day, perDay[day])
		}
	}

	return report, nil
}

// judgeDay applies the per-day policy: zero versions present passes
// (the day is simply not yet populated); exactly one present passes
// only if it is the active version; more than one present is a
// split-brain regardless of which versions are involved.
//
// The cutover day exempts earlier days from the active-version rule
// only. Split-brain is checked for every day ever populated: two
// versions claiming the same historical day is corruption no cutover
// can excuse. With no cutover configured, the active-version rule is
// disabled entirely and only split-brain is enforced.
func judgeDay(report *Report, spine *registry.Spine, day string, counts map[string]int) {
	var present []string
	for version, count := range counts {
		if count > 0 {
			present = append(present, version)
		}
	}
	sort.Strings(present)

	switch {
	case len(present) == 0:
		return

	case len(present) > 1:
		report.Violations = append(report.Violations, Violation{
			Kind:    KindSplitBrain,
			Spine:   spine.Name,
			Day:     day,
			Active:  spine.Active,
			Present: present,
			Counts:  counts,
		})

	case present[0] != spine.Active:
		if spine.EnforceFromDayUTC == "" || day < spine.EnforceFromDayUTC {
			return
		}
		report.Violations = append(report.Violations, Violation{
			Kind:    KindWrongActiveVersion,
			Spine:   spine.Name,
			Day:     day,
			Active:  spine.Active,
			Present: present,
			Counts:  counts,
		})
	}
}

// discoverDays splits the pattern around the day placeholder, lists
// day-shaped subdirectories of the resolved prefix, and returns each
// day whose resolved suffix path exists. Any resolution outside the
// permitted root is a fatal configuration error, never a skip: a
// registry that points outside the truth root is authorizing scans of
// data it does not govern.
func discoverDays(absRoot, pattern string) ([]string, error) {
	prefix, suffix, found := strings.Cut(pattern, registry.DayPlaceholder)
	if !found {
		return nil, fmt.Errorf("pattern %q has no %s token", pattern, registry.DayPlaceholder)
	}

	prefixPath, ok := resolveWithinRoot(absRoot, prefix)
	if !ok {
		return nil, fmt.Errorf("pattern %q resolves outside root %s", pattern, absRoot)
	}

	entries, err := os.ReadDir(prefixPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s for pattern %q: %w", prefixPath, pattern, err)
	}

	var days []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day := entry.Name()
		if !registry.ValidDay(day) {
			continue
		}

		full, ok := resolveWithinRoot(absRoot, prefix+day+suffix)
		if !ok {
			return nil, fmt.Errorf("pattern %q day %s resolves outside root %s", pattern, day, absRoot)
		}
		switch _, err := os.Stat(full); {
		case err == nil:
			days = append(days, day)
		case errors.Is(err, fs.ErrNotExist):
			// Day directory exists but this pattern's artifact does not.
		default:
			// Unreadable is not absent. Treating it as absent would let
			// a permission error hide a populated version.
			return nil, fmt.Errorf("checking %s for pattern %q: %w", full, pattern, err)
		}
	}
	return days, nil
}

// resolveWithinRoot joins a root-relative pattern fragment to the
// truth root and reports whether the result stays inside it.
func resolveWithinRoot(absRoot, fragment string) (string, bool) {
	cleaned := strings.TrimPrefix(filepath.FromSlash(fragment), string(filepath.Separator))
	if filepath.IsAbs(fragment) {
		return "", false
	}
	joined := filepath.Join(absRoot, cleaned)
	rel, err := filepath.Rel(absRoot, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
