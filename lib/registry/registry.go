// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry parses and validates the spine authority registry:
// the governance-authored, read-only document declaring every truth
// spine, its schema versions, which version is active, and the
// day-indexed path patterns where each version's artifacts live.
//
// The registry is authored as JSONC (JSON with comments and trailing
// commas) so governance can document policy decisions inline.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// DayPlaceholder is the token in a day path pattern that stands for
// the YYYY-MM-DD day directory.
const DayPlaceholder = "{DAY}"

// dayPattern is the strict day shape accepted everywhere a UTC day
// appears: registry cutover days, discovered day directories, CLI
// flags.
var dayPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

// ValidDay reports whether s is a strict YYYY-MM-DD day string.
func ValidDay(s string) bool { return dayPattern.MatchString(s) }

// Registry is the parsed spine authority document.
type Registry struct {
	Spines []Spine `json:"spines"`
}

// Spine declares one truth spine and its version policy.
type Spine struct {
	// Name is the spine's logical name (e.g. "accounting").
	Name string `json:"spine"`

	// Active is the version that is authoritative for newly enforced
	// days. Must be a member of Versions.
	Active string `json:"active"`

	// Versions is the full set of schema versions that have ever
	// produced artifacts for this spine.
	Versions []string `json:"versions"`

	// Exclusive marks the spine for per-day exclusivity enforcement:
	// at most one version may have artifacts on any given day.
	Exclusive bool `json:"exclusive"`

	// EnforceFromDayUTC, when set, is the cutover day: the
	// active-version rule applies to this day and later. Days before
	// the cutover (and all days when no cutover is configured) are
	// exempt from the active-version rule but never from the
	// split-brain rule.
	EnforceFromDayUTC string `json:"enforce_from_day_utc,omitempty"`

	// DayPathPatterns are the day-indexed locations of this spine's
	// artifacts, each attributed to exactly one declared version.
	DayPathPatterns []PatternRef `json:"day_path_patterns"`
}

// PatternRef binds a day path pattern to the schema version that
// produces artifacts at that location. The explicit version mapping
// replaces the older convention of embedding a version token in the
// pattern text; a bare string pattern is still accepted, but only when
// exactly one declared version token appears in it.
type PatternRef struct {
	// Pattern is a root-relative path containing exactly one
	// DayPlaceholder token, e.g.
	// "truth/accounting_v2/nav/{DAY}/nav.v2.json".
	Pattern string `json:"pattern"`

	// Version is the schema version this pattern's artifacts belong
	// to. Filled by inference for bare string patterns.
	Version string `json:"version,omitempty"`
}

// UnmarshalJSON accepts either an object {pattern, version} or a bare
// pattern string.
func (p *PatternRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var pattern string
		if err := json.Unmarshal(data, &pattern); err != nil {
			return err
		}
		p.Pattern = pattern
		p.Version = ""
		return nil
	}

	type patternRef PatternRef
	var decoded patternRef
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = PatternRef(decoded)
	return nil
}

// ValidationError reports every authoring issue found in a registry
// document. The issues are human-readable and independently actionable;
// callers that surface evidence line by line unwrap this with
// [errors.As].
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid registry: " + strings.Join(e.Issues, "; ")
}

// Parse strips JSONC comments from data, decodes the registry, and
// validates it. Validation is fail-closed: any issue makes the whole
// document unusable, because an ambiguous registry cannot authorize
// enforcement decisions.
func Parse(data []byte) (*Registry, error) {
	stripped := jsonc.ToJSON(data)

	var reg Registry
	if err := json.Unmarshal(stripped, &reg); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}

	if issues := reg.Validate(); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return &reg, nil
}

// ReadFile reads and parses a registry document from disk.
func ReadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Validate checks the registry for authoring bugs and resolves version
// attribution for bare string patterns. Returns human-readable issue
// descriptions; an empty list means the registry is valid.
func (r *Registry) Validate() []string {
	var issues []string
	seenNames := make(map[string]bool)

	for index := range r.Spines {
		spine := &r.Spines[index]
		prefix := fmt.Sprintf("spines[%d]", index)
		if spine.Name != "" {
			prefix = fmt.Sprintf("spine %q", spine.Name)
		}

		if spine.Name == "" {
			issues = append(issues, prefix+": spine name is required")
		} else if seenNames[spine.Name] {
			issues = append(issues, prefix+": duplicate spine name")
		}
		seenNames[spine.Name] = true

		if len(spine.Versions) == 0 {
			issues = append(issues, prefix+": versions list is required")
		}
		if spine.Active == "" {
			issues = append(issues, prefix+": active version is required")
		} else if !spine.hasVersion(spine.Active) {
			issues = append(issues, fmt.Sprintf("%s: active version %q not in versions %v", prefix, spine.Active, spine.Versions))
		}

		if spine.EnforceFromDayUTC != "" && !ValidDay(spine.EnforceFromDayUTC) {
			issues = append(issues, fmt.Sprintf("%s: enforce_from_day_utc %q is not a YYYY-MM-DD day", prefix, spine.EnforceFromDayUTC))
		}

		if spine.Exclusive && len(spine.DayPathPatterns) == 0 {
			issues = append(issues, prefix+": exclusive spine has no day_path_patterns")
		}

		for patternIndex := range spine.DayPathPatterns {
			ref := &spine.DayPathPatterns[patternIndex]
			refPrefix := fmt.Sprintf("%s pattern %q", prefix, ref.Pattern)

			if strings.TrimSpace(ref.Pattern) == "" {
				issues = append(issues, fmt.Sprintf("%s patterns[%d]: empty pattern", prefix, patternIndex))
				continue
			}
			if strings.Count(ref.Pattern, DayPlaceholder) != 1 {
				issues = append(issues, fmt.Sprintf("%s: must contain exactly one %s token", refPrefix, DayPlaceholder))
			}

			switch {
			case ref.Version != "":
				if !spine.hasVersion(ref.Version) {
					issues = append(issues, fmt.Sprintf("%s: declared version %q not in versions %v", refPrefix, ref.Version, spine.Versions))
				}
			default:
				inferred, err := inferVersion(ref.Pattern, spine.Versions)
				if err != nil {
					issues = append(issues, fmt.Sprintf("%s: %v", refPrefix, err))
					continue
				}
				ref.Version = inferred
			}
		}
	}

	return issues
}

// SpineByName returns the named spine, or nil.
func (r *Registry) SpineByName(name string) *Spine {
	for index := range r.Spines {
		if r.Spines[index].Name == name {
			return &r.Spines[index]
		}
	}
	return nil
}

func (s *Spine) hasVersion(version string) bool {
	for _, v := range s.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// inferVersion attributes a bare string pattern to a version by its
// embedded "_<version>/" token. Zero matches or more than one match
// is a registry authoring bug: attribution must never be guessed.
func inferVersion(pattern string, versions []string) (string, error) {
	var matches []string
	for _, version := range versions {
		if strings.Contains(pattern, "_"+version+"/") {
			matches = append(matches, version)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no version attribution: pattern has no version field and no _<version>/ token")
	default:
		return "", fmt.Errorf("ambiguous version attribution: pattern matches tokens for %v", matches)
	}
}
