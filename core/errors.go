package core

// These errors are user errors, not internal errors: they report
// problems with a specification, an expression, or a lookup.

// SpecNotCompiled occurs when a Spec is used (say via NewTransformer)
// before it has been Compile()ed.
type SpecNotCompiled struct {
	Spec *Spec
}

func (e *SpecNotCompiled) Error() string {
	return `spec "` + e.Spec.Name + `" not compiled`
}

// UnknownTypeError occurs when a spec declares a group or field type
// that isn't registered.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return `type "` + e.Type + `" is not registered`
}

// UnknownModuleError occurs when a spec imports a module that was
// never registered.  Arbitrary code loading is not supported; see
// Registry.RegisterModule.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return `module "` + e.Module + `" is not registered`
}

// UnknownIdentifierError occurs when a spec imports an identifier
// that its (registered) module doesn't provide.
type UnknownIdentifierError struct {
	Module     string
	Identifier string
}

func (e *UnknownIdentifierError) Error() string {
	return `module "` + e.Module + `" does not provide "` + e.Identifier + `"`
}

// UndefinedNameError occurs when a context lookup finds the name in
// neither the local scope nor any scope it can reach.
type UndefinedNameError struct {
	Name string
}

func (e *UndefinedNameError) Error() string {
	return `name "` + e.Name + `" is not defined`
}

// MissingAttributeError occurs when a Transformer is asked for a
// DataGroup that its spec doesn't declare.
type MissingAttributeError struct {
	Name  string
	Owner string
}

func (e *MissingAttributeError) Error() string {
	return `"` + e.Name + `" not defined in "` + e.Owner + `"`
}

// DuplicateNameError occurs at compile time when two nested specs
// share a name within the same parent.
type DuplicateNameError struct {
	Name  string
	Owner string
}

func (e *DuplicateNameError) Error() string {
	return `duplicate name "` + e.Name + `" in "` + e.Owner + `"`
}

// MissingConfigError occurs at compile time when a spec lacks a
// required attribute.
type MissingConfigError struct {
	Attr  string
	Owner string
}

func (e *MissingConfigError) Error() string {
	return `missing required attribute "` + e.Attr + `" in "` + e.Owner + `"`
}

// EvaluationError wraps a fault raised while evaluating a declared
// expression.  The offending expression (and the identity, when the
// evaluation ran inside a DataGroup) ride along for diagnosis.
type EvaluationError struct {
	Expression string
	Identity   string
	Err        error
}

func (e *EvaluationError) Error() string {
	s := `evaluation of "` + e.Expression + `" failed`
	if e.Identity != "" {
		s += ` for identity "` + e.Identity + `"`
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
