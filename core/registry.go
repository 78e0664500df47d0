package core

import "github.com/millrace/millrace/store"

// GroupMaker constructs a runtime DataGroup of one registered kind
// for one identity.
type GroupMaker func(gs *GroupSpec, identity string, ec *EvalContext, st store.Store) (DataGroup, error)

// Registry maps declared type names to group constructors and
// declared module names to whitelisted function tables.
//
// The registry replaces runtime code loading: a spec can only name
// what was registered before compilation.  Resolution happens once,
// at compile time, never per record.
type Registry struct {
	groups  map[string]GroupMaker
	modules map[string]map[string]interface{}
}

// NewRegistry makes a Registry with the built-in group kinds
// ("accumulator" and "session") already registered.
func NewRegistry() *Registry {
	r := &Registry{
		groups:  make(map[string]GroupMaker),
		modules: make(map[string]map[string]interface{}),
	}
	r.RegisterGroup(TypeAccumulator, newAccumulator)
	r.RegisterGroup(TypeSession, newSession)
	return r
}

// DefaultRegistry is used by Spec.Compile when given a nil registry.
var DefaultRegistry = NewRegistry()

// Built-in group kinds.
const (
	TypeAccumulator = "accumulator"
	TypeSession     = "session"
)

// RegisterGroup registers a constructor for a group type name.
func (r *Registry) RegisterGroup(name string, maker GroupMaker) {
	r.groups[name] = maker
}

// RegisterModule registers a named table of functions that specs can
// import into their expression environment.
func (r *Registry) RegisterModule(name string, funcs map[string]interface{}) {
	r.modules[name] = funcs
}

// Group resolves a declared group type name to its constructor.
func (r *Registry) Group(name string) (GroupMaker, error) {
	maker, have := r.groups[name]
	if !have {
		return nil, &UnknownTypeError{Type: name}
	}
	return maker, nil
}

// Import resolves an import declaration to name→function bindings.
//
// With identifiers, each identifier is bound bare.  Without, the
// whole module is bound under the module's name.
func (r *Registry) Import(imp *ImportSpec) (map[string]interface{}, error) {
	funcs, have := r.modules[imp.Module]
	if !have {
		return nil, &UnknownModuleError{Module: imp.Module}
	}

	if len(imp.Identifiers) == 0 {
		return map[string]interface{}{imp.Module: funcs}, nil
	}

	acc := make(map[string]interface{}, len(imp.Identifiers))
	for _, id := range imp.Identifiers {
		f, have := funcs[id]
		if !have {
			return nil, &UnknownIdentifierError{Module: imp.Module, Identifier: id}
		}
		acc[id] = f
	}
	return acc, nil
}
