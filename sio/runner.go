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

package sio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/millrace/millrace/core"
	"github.com/millrace/millrace/store"
	"github.com/millrace/millrace/util"
)

// Runner drives one compiled spec over a batch of records.
//
// Records are partitioned by identity.  Identities run in parallel,
// each on its own goroutine with its own Transformer; within one
// identity, records are routed sequentially in event-time order.
type Runner struct {
	Spec  *core.Spec
	Store store.Store

	// Workers bounds the number of identities processed at once.
	// Zero means DefaultWorkers.
	Workers int
}

// DefaultWorkers is used when Runner.Workers is zero.
var DefaultWorkers = 8

// NewRunner makes a Runner for the given compiled spec and store.
func NewRunner(spec *core.Spec, st store.Store) *Runner {
	return &Runner{
		Spec:  spec,
		Store: st,
	}
}

// Result reports what a Run did.
type Result struct {
	// Transformers maps each identity to its (finalized)
	// Transformer.
	Transformers map[string]*core.Transformer

	// EvalErrors collects per-identity evaluation faults.  These
	// didn't stop the identity's stream; they're reported for
	// diagnosis.
	EvalErrors map[string][]error
}

// Identities returns the processed identities, sorted.
func (r *Result) Identities() []string {
	ids := make([]string, 0, len(r.Transformers))
	for id := range r.Transformers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run partitions the records by identity, sorts each partition by
// event time, and processes every partition to completion (including
// Finalize).
//
// Evaluation faults are collected in the Result.  Fatal faults (spec
// problems, store failures) abort their identity and are joined into
// the returned error; other identities still run.
func (r *Runner) Run(ctx context.Context, recs []*core.Record) (*Result, error) {
	parts := make(map[string][]*core.Record)
	order := make([]string, 0, 16)
	for _, rec := range recs {
		if _, have := parts[rec.Identity]; !have {
			order = append(order, rec.Identity)
		}
		parts[rec.Identity] = append(parts[rec.Identity], rec)
	}

	for _, part := range parts {
		part := part
		sort.SliceStable(part, func(i, j int) bool {
			return part[i].Time.Before(part[j].Time)
		})
	}

	workers := r.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, workers)
		fatal  []error
		result = &Result{
			Transformers: make(map[string]*core.Transformer, len(parts)),
			EvalErrors:   make(map[string][]error),
		}
	)

	for _, identity := range order {
		identity := identity
		part := parts[identity]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			t, evalErrs, err := r.runIdentity(ctx, identity, part)

			mu.Lock()
			defer mu.Unlock()
			if t != nil {
				result.Transformers[identity] = t
			}
			if 0 < len(evalErrs) {
				result.EvalErrors[identity] = evalErrs
			}
			if err != nil {
				fatal = append(fatal, fmt.Errorf("identity %s: %w", identity, err))
			}
		}()
	}

	wg.Wait()

	return result, errors.Join(fatal...)
}

func (r *Runner) runIdentity(ctx context.Context, identity string, recs []*core.Record) (*core.Transformer, []error, error) {
	util.Logf("sio.Runner identity %s: %d records", identity, len(recs))

	t, err := core.NewTransformer(r.Spec, identity, r.Store)
	if err != nil {
		return nil, nil, err
	}

	var evalErrs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return t, evalErrs, err
		}
		if err := t.Route(ctx, rec); err != nil {
			var ee *core.EvaluationError
			if errors.As(err, &ee) {
				util.Logf("sio.Runner identity %s fault on %s: %v", identity, JS(rec.Data), err)
				evalErrs = append(evalErrs, err)
				continue
			}
			// Still finalize what we have: rollover
			// snapshots already persisted stay consistent,
			// and finalize is the only path that persists
			// the rest.
			ferr := t.Finalize(ctx)
			return t, evalErrs, errors.Join(err, ferr)
		}
	}

	return t, evalErrs, t.Finalize(ctx)
}

// Snapshots returns every persisted snapshot for the identity, one
// entry slice per group, keyed by group name.
func (r *Runner) Snapshots(identity string) (map[string][]store.Entry, error) {
	acc := make(map[string][]store.Entry, len(r.Spec.Groups))
	for _, g := range r.Spec.Groups {
		entries, err := r.Store.Scan(identity, g.Name)
		if err != nil {
			return nil, err
		}
		acc[g.Name] = entries
	}
	return acc, nil
}

// WriteSnapshots writes the identities' persisted snapshots as pretty
// JSON, ordered by identity, then group declaration order, then key.
func (r *Runner) WriteSnapshots(w io.Writer, identities []string) error {
	type exported struct {
		Key      string         `json:"key"`
		Snapshot store.Snapshot `json:"snapshot"`
	}

	acc := make(map[string]map[string][]exported, len(identities))
	for _, identity := range identities {
		byGroup, err := r.Snapshots(identity)
		if err != nil {
			return err
		}
		groups := make(map[string][]exported, len(byGroup))
		for name, entries := range byGroup {
			xs := make([]exported, 0, len(entries))
			for _, e := range entries {
				xs = append(xs, exported{
					Key:      e.Key.String(),
					Snapshot: e.Snapshot,
				})
			}
			groups[name] = xs
		}
		acc[identity] = groups
	}

	_, err := io.WriteString(w, JSON(acc)+"\n")
	return err
}

// Evict removes every persisted snapshot for the identity.  Intended
// for after export; nothing calls it implicitly.
func (r *Runner) Evict(identity string) error {
	byGroup, err := r.Snapshots(identity)
	if err != nil {
		return err
	}
	for _, entries := range byGroup {
		for _, e := range entries {
			if err := r.Store.Evict(e.Key); err != nil {
				return err
			}
		}
	}
	return nil
}
