// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"fmt"
)

// SealHash returns a copy of obj with field set to the SHA-256 hex
// digest of the canonical encoding of obj with that field forced to
// null. Forcing the field to null (rather than removing it) avoids
// self-referential hashing ambiguity: the sealed artifact and the
// hashed form differ in exactly one value, never in shape.
func SealHash(obj map[string]any, field string) (map[string]any, string, error) {
	working := make(map[string]any, len(obj)+1)
	for key, value := range obj {
		working[key] = value
	}
	working[field] = nil

	digest, err := Hash(working)
	if err != nil {
		return nil, "", fmt.Errorf("sealing %s: %w", field, err)
	}

	sealed := make(map[string]any, len(obj)+1)
	for key, value := range obj {
		sealed[key] = value
	}
	sealed[field] = digest
	return sealed, digest, nil
}

// VerifySealedHash checks that obj's field holds the hash SealHash
// would have produced. A mismatch means the artifact was altered after
// sealing, or sealed incorrectly.
func VerifySealedHash(obj map[string]any, field string) error {
	declared, ok := obj[field].(string)
	if !ok || declared == "" {
		return fmt.Errorf("sealed hash field %s is missing or not a string", field)
	}

	working := make(map[string]any, len(obj))
	for key, value := range obj {
		working[key] = value
	}
	working[field] = nil

	computed, err := Hash(working)
	if err != nil {
		return fmt.Errorf("verifying sealed hash %s: %w", field, err)
	}
	if computed != declared {
		return fmt.Errorf("sealed hash mismatch for %s: declared %s, computed %s", field, declared, computed)
	}
	return nil
}
