// Copyright 2026 The Spine Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger decides whether downstream work needs to re-run for
// a watched directory, by comparing its current fingerprint to the
// last one recorded after a successful run. State lives in a local,
// non-authoritative store: deleting it is always safe and merely
// causes the next check to report "changed".
//
// The core contract is that a new fingerprint is persisted only after
// the triggered work succeeds. Persisting earlier would mean one
// failed run permanently suppresses the trigger, silently dropping
// downstream work.
package trigger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/spine-foundation/spine/lib/atomicfile"
	"github.com/spine-foundation/spine/lib/codec"
	"github.com/spine-foundation/spine/lib/fingerprint"
)

// stateDomainKey is the 32-byte BLAKE3 key for deriving state file
// names from watched root paths. The ASCII encoding of the domain
// name, zero-padded: readable in hex dumps without weakening the hash.
var stateDomainKey = [32]byte{
	's', 'p', 'i', 'n', 'e', '.', 't', 'r', 'i', 'g', 'g', 'e', 'r', '.',
	's', 't', 'a', 't', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// State is one recorded observation of a watched root.
type State struct {
	// Root is the watched directory, stored for human inspection of
	// the state dir (the file name is a hash of it).
	Root string `cbor:"root"`

	// Fingerprint is the directory fingerprint recorded after the
	// last successful downstream run.
	Fingerprint string `cbor:"fingerprint"`

	// UpdatedUTC is when the fingerprint was recorded.
	UpdatedUTC string `cbor:"updated_utc"`
}

// Store persists last-seen fingerprints in a local state directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Load returns the recorded state for root, or nil when none exists.
func (s *Store) Load(root string) (*State, error) {
	data, err := os.ReadFile(s.statePath(root))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading trigger state for %s: %w", root, err)
	}

	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding trigger state for %s: %w", root, err)
	}
	return &state, nil
}

// Save records fp as the last-seen fingerprint for root.
func (s *Store) Save(root, fp string) error {
	state := State{
		Root:        root,
		Fingerprint: fp,
		UpdatedUTC:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := codec.Marshal(&state)
	if err != nil {
		return fmt.Errorf("encoding trigger state for %s: %w", root, err)
	}
	if err := atomicfile.Write(s.statePath(root), data); err != nil {
		return fmt.Errorf("saving trigger state for %s: %w", root, err)
	}
	return nil
}

// Result describes one trigger decision.
type Result struct {
	Root        string
	Fingerprint string
	Previous    string
	Ran         bool
}

// Changed reports whether the root's current fingerprint differs from
// the recorded one, without running anything or touching state.
func (s *Store) Changed(root string) (*Result, error) {
	current, err := fingerprint.Directory(root)
	if err != nil {
		return nil, err
	}
	previous, err := s.previousFingerprint(root)
	if err != nil {
		return nil, err
	}
	return &Result{Root: root, Fingerprint: current, Previous: previous}, nil
}

// RunIfChanged recomputes the root's fingerprint and, when it differs
// from the recorded one, runs fn. The new fingerprint is persisted
// only after fn returns nil; on failure the recorded state is left
// untouched so the next cycle re-triggers.
func (s *Store) RunIfChanged(root string, fn func() error) (*Result, error) {
	result, err := s.Changed(root)
	if err != nil {
		return nil, err
	}
	if result.Fingerprint == result.Previous {
		return result, nil
	}

	if err := fn(); err != nil {
		return result, err
	}

	if err := s.Save(root, result.Fingerprint); err != nil {
		return result, err
	}
	result.Ran = true
	return result, nil
}

func (s *Store) previousFingerprint(root string) (string, error) {
	state, err := s.Load(root)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.Fingerprint, nil
}

// statePath derives the state file name from a domain-keyed hash of
// the cleaned absolute root path, so watched roots never collide and
// path separators never leak into file names.
func (s *Store) statePath(root string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}

	hasher, err := blake3.NewKeyed(stateDomainKey[:])
	if err != nil {
		panic("trigger: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(absRoot))
	sum := hasher.Sum(nil)

	return filepath.Join(s.dir, fmt.Sprintf("%x.state.cbor", sum[:12]))
}
