// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package record validates governed dataset records. Each dataset file
// is newline-delimited JSON, one schema-governed object per line, with
// a designated ordering-key field that must be strictly increasing
// within a file.
//
// Schemas come from the governance-controlled schema repository, not
// from this module. They are authored as JSON Schema (draft 2020-12),
// optionally with JSONC comments for human documentation.
package record

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/jsonc"
)

// Schema is a compiled governed record schema plus the name of the
// ordering-key field its records are sequenced by.
type Schema struct {
	name          string
	resolved      *jsonschema.Resolved
	orderingField string
}

// Load reads and compiles a governed schema file. The file may contain
// JSONC comments and trailing commas. orderingField names the record
// field that must be strictly increasing per dataset file.
func Load(path string, orderingField string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	schema, err := Parse(data, orderingField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	schema.name = path
	return schema, nil
}

// Parse compiles a governed schema from JSONC bytes.
func Parse(data []byte, orderingField string) (*Schema, error) {
	if orderingField == "" {
		return nil, fmt.Errorf("parsing schema: ordering field name is required")
	}

	stripped := jsonc.ToJSON(data)

	var schema jsonschema.Schema
	if err := json.Unmarshal(stripped, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}

	return &Schema{resolved: resolved, orderingField: orderingField}, nil
}

// Name returns the schema's source path, or "" for schemas parsed from
// bytes.
func (s *Schema) Name() string { return s.name }

// OrderingField returns the name of the strictly-increasing record
// field.
func (s *Schema) OrderingField() string { return s.orderingField }

// Validate checks one decoded record against the schema. The returned
// error describes the first failing rule.
func (s *Schema) Validate(instance any) error {
	return s.resolved.Validate(instance)
}

// OrderingKey extracts the ordering-key value from a decoded record.
// The key must be present and a string: ordering keys are date or
// timestamp text whose lexical order matches temporal order.
func (s *Schema) OrderingKey(instance any) (string, error) {
	object, ok := instance.(map[string]any)
	if !ok {
		return "", fmt.Errorf("record is not a JSON object")
	}
	value, ok := object[s.orderingField]
	if !ok {
		return "", fmt.Errorf("record is missing ordering key field %q", s.orderingField)
	}
	key, ok := value.(string)
	if !ok || key == "" {
		return "", fmt.Errorf("ordering key field %q is not a non-empty string", s.orderingField)
	}
	return key, nil
}
