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
	"errors"
	"testing"
	"time"

	"github.com/millrace/millrace/store"
)

func sessionInterp() *testInterp {
	return newTestInterp().
		def("session.events + 1", func(env map[string]interface{}) (interface{}, error) {
			return num(env, "session", "events") + 1, nil
		}).
		def("session.levels.concat([source.level])", func(env map[string]interface{}) (interface{}, error) {
			sess, _ := env["session"].(map[string]interface{})
			levels, _ := sess["levels"].([]interface{})
			src, _ := env["source"].(map[string]interface{})
			acc := make([]interface{}, 0, len(levels)+1)
			acc = append(acc, levels...)
			acc = append(acc, src["level"])
			return acc, nil
		}).
		def("source.sid", func(env map[string]interface{}) (interface{}, error) {
			src, _ := env["source"].(map[string]interface{})
			sid, have := src["sid"]
			if !have {
				return nil, errors.New("no sid")
			}
			return sid, nil
		})
}

func sessionSpec(t *testing.T, key, expiry string) *Spec {
	spec := &Spec{
		Name:    "test",
		Version: "1.0",
		Groups: []*GroupSpec{
			{
				Name:   "session",
				Type:   TypeSession,
				Key:    key,
				Expiry: expiry,
				Fields: []*FieldSpec{
					{Name: "events", Type: TypeInteger, Expression: "session.events + 1"},
					{Name: "levels", Type: TypeList, Expression: "session.levels.concat([source.level])"},
				},
			},
		},
	}
	if err := spec.Compile(context.Background(), nil, sessionInterp()); err != nil {
		t.Fatal(err)
	}
	return spec
}

func route(t *testing.T, trans *Transformer, at string, data map[string]interface{}) {
	t.Helper()
	if err := trans.Route(context.Background(), rec(trans.Identity(), at, data)); err != nil {
		t.Fatal(err)
	}
}

func sessionOf(t *testing.T, trans *Transformer) *Session {
	t.Helper()
	g, err := trans.Group("session")
	if err != nil {
		t.Fatal(err)
	}
	s, is := g.(*Session)
	if !is {
		t.Fatalf("got %T", g)
	}
	return s
}

func TestSessionGapRollover(t *testing.T) {
	ctx := context.Background()
	spec := sessionSpec(t, "", "1h")

	st := store.NewMem()
	trans, err := NewTransformer(spec, "homer", st)
	if err != nil {
		t.Fatal(err)
	}

	// Two records 107s apart share a window; a record a day later
	// starts the next one.
	route(t, trans, "2016-02-10T00:00:00Z", map[string]interface{}{"level": int64(2)})
	route(t, trans, "2016-02-10T00:01:47Z", map[string]interface{}{"level": int64(3)})
	route(t, trans, "2016-02-11T00:00:00Z", map[string]interface{}{"level": int64(5)})

	s := sessionOf(t, trans)
	subKey, start, end, open := s.Window()
	if !open {
		t.Fatal("no open window")
	}
	if subKey != "session-2" {
		t.Fatalf("got sub-key %q", subKey)
	}
	if !start.Equal(end) {
		t.Fatalf("got window %v..%v", start, end)
	}

	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Scan("homer", "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}

	first, second := entries[0], entries[1]
	if got := first.Key.SubKeys[0]; got != "session-1" {
		t.Fatalf("got %q", got)
	}
	if got := second.Key.SubKeys[0]; got != "session-2" {
		t.Fatalf("got %q", got)
	}

	if first.Snapshot["events"] != int64(2) {
		t.Fatalf("got %#v", first.Snapshot["events"])
	}
	if first.Snapshot["_start_time"] != "2016-02-10T00:00:00Z" {
		t.Fatalf("got %#v", first.Snapshot["_start_time"])
	}
	if first.Snapshot["_end_time"] != "2016-02-10T00:01:47Z" {
		t.Fatalf("got %#v", first.Snapshot["_end_time"])
	}

	if second.Snapshot["events"] != int64(1) {
		t.Fatalf("got %#v", second.Snapshot["events"])
	}
	if levels := second.Snapshot["levels"].([]interface{}); len(levels) != 1 || levels[0] != int64(5) {
		t.Fatalf("got %#v", levels)
	}
}

func TestSessionGapBoundaryInclusive(t *testing.T) {
	ctx := context.Background()
	spec := sessionSpec(t, "", "1h")

	st := store.NewMem()
	trans, err := NewTransformer(spec, "homer", st)
	if err != nil {
		t.Fatal(err)
	}

	// The second record arrives exactly one expiry after the
	// first.  It stays in the window.
	route(t, trans, "2016-02-10T00:00:00Z", map[string]interface{}{"level": int64(1)})
	route(t, trans, "2016-02-10T01:00:00Z", map[string]interface{}{"level": int64(2)})

	// One second past the gap from the window's new end: rollover.
	route(t, trans, "2016-02-10T02:00:01Z", map[string]interface{}{"level": int64(3)})

	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Scan("homer", "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Snapshot["events"] != int64(2) {
		t.Fatalf("got %#v", entries[0].Snapshot["events"])
	}
	if entries[1].Snapshot["events"] != int64(1) {
		t.Fatalf("got %#v", entries[1].Snapshot["events"])
	}
}

func TestSessionKeyRollover(t *testing.T) {
	ctx := context.Background()
	spec := sessionSpec(t, "source.sid", "")

	st := store.NewMem()
	trans, err := NewTransformer(spec, "homer", st)
	if err != nil {
		t.Fatal(err)
	}

	route(t, trans, "2016-02-10T00:00:00Z", map[string]interface{}{"sid": "a", "level": int64(1)})
	route(t, trans, "2016-02-10T00:00:01Z", map[string]interface{}{"sid": "a", "level": int64(2)})
	route(t, trans, "2016-02-10T00:00:02Z", map[string]interface{}{"sid": "b", "level": int64(3)})

	s := sessionOf(t, trans)
	if subKey, _, _, open := s.Window(); !open || subKey != "b" {
		t.Fatalf("got %q (%v)", subKey, open)
	}

	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Scan("homer", "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if got := entries[0].Key.SubKeys[0]; got != "a" {
		t.Fatalf("got %q", got)
	}
	if entries[0].Snapshot["events"] != int64(2) {
		t.Fatalf("got %#v", entries[0].Snapshot["events"])
	}
	if got := entries[1].Key.SubKeys[0]; got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestSessionKeyFaultSkipsRecord(t *testing.T) {
	spec := sessionSpec(t, "source.sid", "")

	trans, err := NewTransformer(spec, "homer", store.NewMem())
	if err != nil {
		t.Fatal(err)
	}

	route(t, trans, "2016-02-10T00:00:00Z", map[string]interface{}{"sid": "a", "level": int64(1)})

	// No sid: the key expression faults and the record is skipped.
	badRec := rec("homer", "2016-02-10T00:00:01Z", map[string]interface{}{"level": int64(2)})
	routeErr := trans.Route(context.Background(), badRec)
	var ee *EvaluationError
	if !errors.As(routeErr, &ee) {
		t.Fatalf("got %v", routeErr)
	}

	s := sessionOf(t, trans)
	subKey, _, end, open := s.Window()
	if !open || subKey != "a" {
		t.Fatalf("got %q (%v)", subKey, open)
	}
	if want, _ := time.Parse(time.RFC3339, "2016-02-10T00:00:00Z"); !end.Equal(want) {
		t.Fatalf("skipped record moved the window end to %v", end)
	}
	g, _ := trans.Group("session")
	if got := g.Scope().Bindings()["events"]; got != int64(1) {
		t.Fatalf("got %#v", got)
	}
}

func TestSessionSubKeySeeding(t *testing.T) {
	ctx := context.Background()
	spec := sessionSpec(t, "", "1h")

	// Windows from an earlier run are already in the store.
	st := store.NewMem()
	prior := store.Key{
		Kind:     store.KindDimension,
		Identity: "homer",
		Group:    "session",
		SubKeys:  []string{"session-1"},
	}
	if err := st.Set(prior, store.Snapshot{"_identity": "homer", "events": int64(3)}); err != nil {
		t.Fatal(err)
	}

	trans, err := NewTransformer(spec, "homer", st)
	if err != nil {
		t.Fatal(err)
	}

	route(t, trans, "2016-02-12T00:00:00Z", map[string]interface{}{"level": int64(1)})

	s := sessionOf(t, trans)
	if subKey, _, _, _ := s.Window(); subKey != "session-2" {
		t.Fatalf("got %q", subKey)
	}

	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Scan("homer", "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Snapshot["events"] != int64(3) {
		t.Fatal("prior window clobbered")
	}
}

func TestSessionFinalizeIdempotent(t *testing.T) {
	ctx := context.Background()
	spec := sessionSpec(t, "", "1h")

	st := store.NewMem()
	trans, err := NewTransformer(spec, "homer", st)
	if err != nil {
		t.Fatal(err)
	}

	route(t, trans, "2016-02-10T00:00:00Z", map[string]interface{}{"level": int64(1)})

	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}
	if err = trans.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := st.Scan("homer", "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}

	s := sessionOf(t, trans)
	if _, _, _, open := s.Window(); open {
		t.Fatal("window still open after finalize")
	}
}
