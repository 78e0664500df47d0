package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/millrace/millrace/store"
)

// DataGroup is a named, schema-configured accumulator of derived
// field values for one identity.
//
// A DataGroup owns its local scope.  Its current field values are
// that scope's bindings, which the owning Transformer publishes
// globally under the group's name.
type DataGroup interface {
	// Name is the group's declared name.
	Name() string

	// Absorb routes one record through the group: guard, window
	// bookkeeping (for windowed kinds), then field evaluation in
	// declared order.
	//
	// An EvaluationError from a guard or window-key expression
	// skips the record for this group only.  Field-level
	// EvaluationErrors leave the field at its prior value and are
	// joined into the returned error; any other error (such as a
	// Store failure during rollover) is fatal for the step.
	Absorb(ctx context.Context, rec *Record) error

	// Finalize persists the group's final snapshot and closes it.
	// Idempotent: a second call is a no-op.
	Finalize(ctx context.Context) error

	// Snapshot is the group's current persistable state.
	Snapshot() store.Snapshot

	// Scope is the group's local scope.  Its bindings are the
	// group's current field values.
	Scope() *Scope
}

// group holds what every DataGroup kind shares.
type group struct {
	spec     *GroupSpec
	identity string
	ec       *EvalContext
	store    store.Store
	closed   bool
}

func (g *group) Name() string {
	return g.spec.Name
}

func (g *group) Scope() *Scope {
	return g.ec.Local
}

// vals is the live field-value map.  Its identity must never change:
// the Transformer binds this exact map into the global scope.
func (g *group) vals() map[string]interface{} {
	return g.ec.Local.Bindings()
}

// resetDefaults reinitializes every field in place, preserving the
// map identity published to the global scope.
func (g *group) resetDefaults() {
	vals := g.vals()
	for k := range vals {
		delete(vals, k)
	}
	for _, f := range g.spec.Fields {
		vals[f.Name] = f.DefaultValue()
	}
}

// pass evaluates the guard, if any.  A guard fault or a non-boolean
// guard value is an EvaluationError, fatal for this record's routing
// to this group only.
func (g *group) pass(ctx context.Context, rec *Record) (bool, error) {
	if g.spec.when == nil {
		return true, nil
	}
	v, err := g.spec.when.Eval(ctx, g.ec, nil)
	if err != nil {
		return false, g.tag(err)
	}
	b, is := v.(bool)
	if !is {
		return false, &EvaluationError{
			Expression: g.spec.When,
			Identity:   g.identity,
			Err:        fmt.Errorf("guard value %#v (%T) is not a boolean", v, v),
		}
	}
	return b, nil
}

// evalFields evaluates every field expression in declared order and
// binds the results locally.  A failing field keeps its prior value;
// the faults are joined and returned after all fields have run.
func (g *group) evalFields(ctx context.Context, rec *Record) error {
	var errs []error
	vals := g.vals()
	for _, f := range g.spec.Fields {
		v, err := f.expr.Eval(ctx, g.ec, nil)
		if err == nil {
			if v, err = castValue(f.Type, v); err != nil {
				err = &EvaluationError{Expression: f.Expression, Err: err}
			}
		}
		if err != nil {
			errs = append(errs, g.tag(err))
			continue
		}
		vals[f.Name] = v
	}
	return errors.Join(errs...)
}

// tag stamps an EvaluationError with this group's identity.
func (g *group) tag(err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) && ee.Identity == "" {
		ee.Identity = g.identity
	}
	return err
}

// restore loads persisted field values for the given key, if any.
// Unknown or ill-typed snapshot entries are skipped; declared fields
// keep their defaults.
func (g *group) restore(key store.Key) error {
	snap, err := g.store.Get(key)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	vals := g.vals()
	for _, f := range g.spec.Fields {
		raw, have := snap[f.Name]
		if !have {
			continue
		}
		if v, err := castValue(f.Type, raw); err == nil {
			vals[f.Name] = v
		}
	}
	return nil
}

// Accumulator is the simple DataGroup kind: one state per identity,
// folded over every routed record, persisted under an identity key.
type Accumulator struct {
	group
}

func newAccumulator(gs *GroupSpec, identity string, ec *EvalContext, st store.Store) (DataGroup, error) {
	a := &Accumulator{
		group: group{
			spec:     gs,
			identity: identity,
			ec:       ec,
			store:    st,
		},
	}
	a.resetDefaults()

	// Pick up state persisted by an earlier (partial) run.
	if err := a.restore(a.Key()); err != nil {
		return nil, err
	}

	return a, nil
}

// Key addresses this accumulator's snapshot in the Store.
func (a *Accumulator) Key() store.Key {
	return store.Key{
		Kind:     store.KindIdentity,
		Identity: a.identity,
		Group:    a.spec.Name,
	}
}

func (a *Accumulator) Absorb(ctx context.Context, rec *Record) error {
	ok, err := a.pass(ctx, rec)
	if err != nil || !ok {
		return err
	}
	return a.evalFields(ctx, rec)
}

func (a *Accumulator) Snapshot() store.Snapshot {
	snap := store.Snapshot{"_identity": a.identity}
	for k, v := range a.vals() {
		snap[k] = copyValue(v)
	}
	return snap
}

func (a *Accumulator) Finalize(ctx context.Context) error {
	if a.closed {
		return nil
	}
	if err := a.store.Set(a.Key(), a.Snapshot()); err != nil {
		return err
	}
	a.closed = true
	return nil
}
