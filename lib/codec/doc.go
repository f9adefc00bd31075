// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// The module uses two serialization formats with a clear boundary:
//
//   - Canonical JSON for audit artifacts: sealed records, manifests, and
//     everything else whose SHA-256 digest is ever compared or pinned
//     (see lib/canonical).
//   - CBOR for local operational state that carries no audit authority,
//     such as trigger fingerprint state files.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec
