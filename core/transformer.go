package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/millrace/millrace/store"
)

// Transformer owns the full DataGroup set for one identity.
//
// Groups are built in declaration order and share one global scope
// seeded with the identity and the spec's imports.  Each group's
// field values are published globally under the group's name, so
// later groups (and external consumers) can reference earlier ones.
//
// A Transformer is not safe for concurrent use; process one
// identity's records on one goroutine.
type Transformer struct {
	spec     *Spec
	identity string
	root     *Scope
	groups   []DataGroup
	byName   map[string]DataGroup
}

// NewTransformer builds the runtime groups for one identity against
// the given Store.
func NewTransformer(spec *Spec, identity string, st store.Store) (*Transformer, error) {
	if !spec.compiled {
		return nil, &SpecNotCompiled{spec}
	}

	root := NewScope()
	root.Bind("identity", identity)

	if 0 < len(spec.funcs) {
		imports := NewScope()
		for name, f := range spec.funcs {
			imports.Bind(name, f)
		}
		root.Merge(imports)
	}

	t := &Transformer{
		spec:     spec,
		identity: identity,
		root:     root,
		groups:   make([]DataGroup, 0, len(spec.Groups)),
		byName:   make(map[string]DataGroup, len(spec.Groups)),
	}

	for _, gs := range spec.Groups {
		ec := &EvalContext{Global: root, Local: NewScope()}
		g, err := gs.maker(gs, identity, ec, st)
		if err != nil {
			return nil, err
		}
		t.groups = append(t.groups, g)
		t.byName[gs.Name] = g

		// The group's live field-value map, by name.
		root.Bind(gs.Name, g.Scope().Bindings())
	}

	return t, nil
}

// Identity is the identity this Transformer serves.
func (t *Transformer) Identity() string {
	return t.identity
}

// Scope is the shared global scope.
func (t *Transformer) Scope() *Scope {
	return t.root
}

// Route forwards one record to every group in declaration order.
//
// The record and its event time are injected into the shared scope
// first, so every group's expressions see "source" and "time".
//
// Field-level evaluation faults don't stop the record: they are
// joined into the returned error after every group has seen the
// record.  A Store failure aborts immediately.
func (t *Transformer) Route(ctx context.Context, rec *Record) error {
	if rec.Identity != "" && rec.Identity != t.identity {
		return fmt.Errorf("record for identity %q routed to transformer for %q",
			rec.Identity, t.identity)
	}

	t.root.Bind("source", rec.Data)
	t.root.Bind("time", rec.Time.UnixMilli())

	var errs []error
	for _, g := range t.groups {
		if err := g.Absorb(ctx, rec); err != nil {
			var ee *EvaluationError
			if errors.As(err, &ee) {
				errs = append(errs, err)
				continue
			}
			return err
		}
	}
	return errors.Join(errs...)
}

// Finalize finalizes every group in declaration order.  Finalize is
// the only path that guarantees all state reaches the Store.  Every
// group is attempted even if an earlier one fails; the failures are
// joined.  Idempotent per group.
func (t *Transformer) Finalize(ctx context.Context) error {
	var errs []error
	for _, g := range t.groups {
		if err := g.Finalize(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Group returns the named DataGroup.
func (t *Transformer) Group(name string) (DataGroup, error) {
	g, have := t.byName[name]
	if !have {
		return nil, &MissingAttributeError{Name: name, Owner: t.spec.Name}
	}
	return g, nil
}

// GroupAt returns the i'th DataGroup in declaration order.
func (t *Transformer) GroupAt(i int) (DataGroup, error) {
	if i < 0 || len(t.groups) <= i {
		return nil, &MissingAttributeError{Name: strconv.Itoa(i), Owner: t.spec.Name}
	}
	return t.groups[i], nil
}

// Groups returns the DataGroups in declaration order.
func (t *Transformer) Groups() []DataGroup {
	gs := make([]DataGroup, len(t.groups))
	copy(gs, t.groups)
	return gs
}
