package core

// Scope is a mutable set of named values used during expression
// evaluation.
//
// A Scope can have other scopes merged into it.  Merged scopes are
// consulted by reference, not copied, so a binding added to a merged
// scope after the merge is still resolvable here.
type Scope struct {
	vals   map[string]interface{}
	merged []*Scope
}

// NewScope makes an empty Scope.
func NewScope() *Scope {
	return &Scope{
		vals: make(map[string]interface{}),
	}
}

// Bind creates or overwrites a binding in this scope only.
func (s *Scope) Bind(name string, value interface{}) {
	s.vals[name] = value
}

// Resolve looks up a name in this scope's own bindings and then in
// merged scopes in merge order.  Own bindings shadow merged ones.
func (s *Scope) Resolve(name string) (interface{}, bool) {
	if v, have := s.vals[name]; have {
		return v, true
	}
	for _, m := range s.merged {
		if v, have := m.Resolve(name); have {
			return v, true
		}
	}
	return nil, false
}

// Merge exposes other's bindings through this scope without copying
// them.  Merging the same scope twice or merging a scope into itself
// does nothing.  Merges must not form a cycle.
func (s *Scope) Merge(other *Scope) {
	if other == nil || other == s {
		return
	}
	for _, m := range s.merged {
		if m == other {
			return
		}
	}
	s.merged = append(s.merged, other)
}

// Bindings returns the scope's own (unmerged) bindings.  The returned
// map is live, not a copy: later Binds show up in it.
func (s *Scope) Bindings() map[string]interface{} {
	return s.vals
}

// flatten writes every resolvable name into env with the same
// shadowing as Resolve: own bindings beat merged ones, and an earlier
// merge beats a later one.
func (s *Scope) flatten(env map[string]interface{}) {
	for i := len(s.merged) - 1; 0 <= i; i-- {
		s.merged[i].flatten(env)
	}
	for k, v := range s.vals {
		env[k] = v
	}
}

// EvalContext chains a local scope to a shared global scope.
//
// Each Transformer owns one global scope; each DataGroup gets its own
// local scope chained to it.  There is no process-wide context.
type EvalContext struct {
	Global *Scope
	Local  *Scope
}

// NewEvalContext makes an EvalContext with fresh global and local
// scopes.
func NewEvalContext() *EvalContext {
	return &EvalContext{
		Global: NewScope(),
		Local:  NewScope(),
	}
}

// Child returns a context that shares this context's global scope but
// has a fresh local scope.
func (c *EvalContext) Child() *EvalContext {
	return &EvalContext{
		Global: c.Global,
		Local:  NewScope(),
	}
}

// Resolve looks up a name locally and then globally.
func (c *EvalContext) Resolve(name string) (interface{}, error) {
	if c.Local != nil {
		if v, have := c.Local.Resolve(name); have {
			return v, nil
		}
	}
	if c.Global != nil {
		if v, have := c.Global.Resolve(name); have {
			return v, nil
		}
	}
	return nil, &UndefinedNameError{Name: name}
}

// BindLocal writes into the local scope only.
func (c *EvalContext) BindLocal(name string, value interface{}) {
	c.Local.Bind(name, value)
}

// BindGlobal writes into the root scope, visible to every context
// that shares it.
func (c *EvalContext) BindGlobal(name string, value interface{}) {
	c.Global.Bind(name, value)
}

// Env flattens the context into a map for a single evaluation.  Local
// bindings shadow global ones, and extra (if any) shadows both.
func (c *EvalContext) Env(extra map[string]interface{}) map[string]interface{} {
	env := make(map[string]interface{}, 16)
	if c.Global != nil {
		c.Global.flatten(env)
	}
	if c.Local != nil {
		c.Local.flatten(env)
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}
