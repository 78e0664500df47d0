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

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/millrace/millrace/store"
)

// Session is the windowed DataGroup kind.
//
// Window membership is decided per record, before field evaluation:
//
// With a key expression, the record's key is the window's sub-key; a
// record whose key differs from the open window's closes it and
// opens a new one.
//
// Without one, windows are gap-based: a record arriving more than
// Expiry after the window's last record closes it, and the new
// window gets a synthesized sub-key ("<group>-<n>").  A gap exactly
// equal to Expiry stays in the open window.
//
// At most one window is open at a time.  Closing the old window
// (persisting its snapshot) and opening the next happen within one
// record's Absorb.  Fields reset only when a window opens, never
// mid-window.
type Session struct {
	group

	open   bool
	subKey string
	start  time.Time
	end    time.Time
	seq    int
	seeded bool
}

func newSession(gs *GroupSpec, identity string, ec *EvalContext, st store.Store) (DataGroup, error) {
	s := &Session{
		group: group{
			spec:     gs,
			identity: identity,
			ec:       ec,
			store:    st,
		},
	}
	s.resetDefaults()
	return s, nil
}

// Key addresses the current window's snapshot.  Meaningless until a
// window has opened.
func (s *Session) Key() store.Key {
	return s.windowKey(s.subKey)
}

func (s *Session) windowKey(sub string) store.Key {
	return store.Key{
		Kind:     store.KindDimension,
		Identity: s.identity,
		Group:    s.spec.Name,
		SubKeys:  []string{sub},
	}
}

// Window reports the open window's sub-key and bounds.
func (s *Session) Window() (subKey string, start, end time.Time, open bool) {
	return s.subKey, s.start, s.end, s.open
}

func (s *Session) Absorb(ctx context.Context, rec *Record) error {
	ok, err := s.pass(ctx, rec)
	if err != nil || !ok {
		return err
	}

	var candidate string
	if s.spec.key != nil {
		v, err := s.spec.key.Eval(ctx, s.ec, nil)
		if err != nil {
			// A broken window key is fatal for this
			// record's routing to this group.
			return s.tag(err)
		}
		candidate = fmt.Sprintf("%v", v)
	}

	switch {
	case !s.open:
		if candidate == "" {
			if candidate, err = s.nextSubKey(); err != nil {
				return err
			}
		}
		s.openWindow(candidate, rec.Time)
	case s.rollsOver(candidate, rec.Time):
		if err := s.closeWindow(); err != nil {
			return err
		}
		if candidate == "" {
			if candidate, err = s.nextSubKey(); err != nil {
				return err
			}
		}
		s.openWindow(candidate, rec.Time)
	}

	s.end = rec.Time
	s.closed = false

	return s.evalFields(ctx, rec)
}

// rollsOver decides whether the record at the given time belongs to a
// new window.  With a key expression the key decides; otherwise the
// gap rule applies, with an inclusive boundary: a gap equal to the
// expiry never starts a spurious extra window.
func (s *Session) rollsOver(candidate string, at time.Time) bool {
	if s.spec.key != nil {
		return candidate != s.subKey
	}
	return s.spec.expiry < at.Sub(s.end)
}

// openWindow resets fields to defaults in place and anchors the new
// window at the record's time.
func (s *Session) openWindow(subKey string, at time.Time) {
	s.resetDefaults()
	s.subKey = subKey
	s.start = at
	s.end = at
	s.open = true
}

// closeWindow persists the window's snapshot and removes it from open
// tracking.  A Store failure aborts the step: the window stays open
// rather than being dropped unpersisted.
func (s *Session) closeWindow() error {
	if !s.open {
		return nil
	}
	if err := s.store.Set(s.Key(), s.Snapshot()); err != nil {
		return err
	}
	s.open = false
	return nil
}

// nextSubKey synthesizes a sub-key for gap-based windows.  The
// counter is seeded from the Store so a restarted run doesn't reuse
// sub-keys already persisted for this identity and group.
func (s *Session) nextSubKey() (string, error) {
	if !s.seeded {
		entries, err := s.store.Scan(s.identity, s.spec.Name)
		if err != nil {
			return "", err
		}
		s.seq = len(entries)
		s.seeded = true
	}
	s.seq++
	return fmt.Sprintf("%s-%d", s.spec.Name, s.seq), nil
}

func (s *Session) Snapshot() store.Snapshot {
	snap := store.Snapshot{
		"_identity":   s.identity,
		"_start_time": s.start.UTC().Format(time.RFC3339),
		"_end_time":   s.end.UTC().Format(time.RFC3339),
	}
	for k, v := range s.vals() {
		snap[k] = copyValue(v)
	}
	return snap
}

func (s *Session) Finalize(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if err := s.closeWindow(); err != nil {
		return err
	}
	s.closed = true
	return nil
}
