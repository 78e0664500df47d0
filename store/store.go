/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package store provides the key-addressed persistence abstraction
// for DataGroup snapshots, plus an in-memory implementation.  A
// durable implementation is in the bolt subpackage.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind says what a Key addresses.
type Kind int

const (
	// KindIdentity addresses the single per-identity state of a
	// plain accumulator group.
	KindIdentity Kind = iota

	// KindDimension addresses one window of a windowed group,
	// disambiguated by sub-keys (such as a session id).
	KindDimension

	// KindTimestamp addresses time-partitioned state.
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindDimension:
		return "dimension"
	case KindTimestamp:
		return "timestamp"
	}
	return "unknown"
}

// Key addresses one persisted snapshot.
//
// Keys are value types: two keys are equal iff all fields match.  The
// sub-key sequence uniquely disambiguates concurrent window instances
// of the same group for the same identity.
type Key struct {
	Kind     Kind
	Identity string
	Group    string
	SubKeys  []string

	// At is only set for KindTimestamp keys.
	At time.Time
}

// Equal reports whether two keys address the same snapshot.
func (k Key) Equal(o Key) bool {
	if k.Kind != o.Kind || k.Identity != o.Identity || k.Group != o.Group {
		return false
	}
	if len(k.SubKeys) != len(o.SubKeys) {
		return false
	}
	for i, s := range k.SubKeys {
		if s != o.SubKeys[i] {
			return false
		}
	}
	return k.At.Equal(o.At)
}

// Less orders keys lexicographically by (Group, SubKeys, At), which
// is the Scan order within one identity.
func (k Key) Less(o Key) bool {
	if k.Group != o.Group {
		return k.Group < o.Group
	}
	n := len(k.SubKeys)
	if len(o.SubKeys) < n {
		n = len(o.SubKeys)
	}
	for i := 0; i < n; i++ {
		if k.SubKeys[i] != o.SubKeys[i] {
			return k.SubKeys[i] < o.SubKeys[i]
		}
	}
	if len(k.SubKeys) != len(o.SubKeys) {
		return len(k.SubKeys) < len(o.SubKeys)
	}
	return k.At.Before(o.At)
}

// String renders the key as identity/kind/group[/subkeys...][@time].
func (k Key) String() string {
	parts := append([]string{k.Identity, k.Kind.String(), k.Group}, k.SubKeys...)
	s := strings.Join(parts, "/")
	if !k.At.IsZero() {
		s += "@" + k.At.UTC().Format(time.RFC3339)
	}
	return s
}

// Snapshot is a persisted mapping from field name to value, plus
// lifecycle metadata under underscore-prefixed names.
type Snapshot map[string]interface{}

// Copy deep-copies the snapshot so a persisted snapshot never shares
// storage with live field values.
func (s Snapshot) Copy() Snapshot {
	if s == nil {
		return nil
	}
	acc := make(Snapshot, len(s))
	for k, v := range s {
		acc[k] = copyValue(v)
	}
	return acc
}

func copyValue(x interface{}) interface{} {
	switch v := x.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, e := range v {
			s[i] = copyValue(e)
		}
		return s
	}
	return x
}

// Entry is one Scan result.
type Entry struct {
	Key      Key
	Snapshot Snapshot
}

// Store is pluggable keyed persistence for snapshots.
//
// Implementations must be safe for concurrent keyed access across
// disjoint identities.  All operations are synchronous; there are no
// retries here.
type Store interface {
	// Get returns the snapshot for the key, or nil if absent.  A
	// missing key is not an error.
	Get(k Key) (Snapshot, error)

	// Set upserts the snapshot for the key.
	Set(k Key, snap Snapshot) error

	// Scan returns every entry for the identity and group,
	// ordered by Key.Less.
	Scan(identity, group string) ([]Entry, error)

	// Evict removes the snapshot for the key.  Evicting an
	// absent key is not an error.
	Evict(k Key) error
}

// Mem is an in-memory Store.
type Mem struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMem makes an empty in-memory Store.
func NewMem() *Mem {
	return &Mem{
		entries: make(map[string]Entry),
	}
}

func (m *Mem) Get(k Key) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, have := m.entries[k.String()]
	if !have {
		return nil, nil
	}
	return e.Snapshot.Copy(), nil
}

func (m *Mem) Set(k Key, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[k.String()] = Entry{Key: k, Snapshot: snap.Copy()}
	return nil
}

func (m *Mem) Scan(identity, group string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := make([]Entry, 0, 8)
	for _, e := range m.entries {
		if e.Key.Identity != identity || e.Key.Group != group {
			continue
		}
		acc = append(acc, Entry{Key: e.Key, Snapshot: e.Snapshot.Copy()})
	}
	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Key.Less(acc[j].Key)
	})
	return acc, nil
}

func (m *Mem) Evict(k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, k.String())
	return nil
}
