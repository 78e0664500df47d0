package core

import (
	"context"
	"time"
)

// Spec is a specification used to build a Transformer.
//
// A specification gives the structure of the computation.  This data
// does not include any state (such as an identity's current field
// values).
//
// A Spec must be Compiled before use.
type Spec struct {
	// Name is the generic name for this transformer.  Something
	// like "game-stats".
	Name string `json:"name,omitempty" yaml:",omitempty"`

	// Version is the version of this spec.  Something like "1.0".
	// Required.
	Version string `json:"version" yaml:"version"`

	// Doc is general documentation about how this specification
	// works.
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Imports declares whitelisted function tables to expose to
	// expressions.  See Registry.RegisterModule.
	Imports []*ImportSpec `json:"import,omitempty" yaml:"import,omitempty"`

	// Stores names store configurations.  The core doesn't
	// resolve these; a runner does.
	Stores []*StoreSpec `json:"stores,omitempty" yaml:",omitempty"`

	// Groups is the ordered set of DataGroup specs.  Declaration
	// order is evaluation order.
	Groups []*GroupSpec `json:"groups" yaml:"groups"`

	// funcs is the resolved import table, bound into every
	// Transformer's global scope.
	funcs map[string]interface{}

	compiled bool
}

// ImportSpec exposes registered functions to expressions.
type ImportSpec struct {
	Module      string   `json:"module" yaml:"module"`
	Identifiers []string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
}

// StoreSpec is a named store configuration.  Type names a backend
// ("mem", "bolt", ...) that the hosting runner knows how to build.
type StoreSpec struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// GroupSpec describes one DataGroup: its kind, its guard, its window
// rule (for session kinds), and its fields.
type GroupSpec struct {
	Name string `json:"name" yaml:"name"`

	// Type is a registered group kind; see Registry.
	Type string `json:"type" yaml:"type"`

	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Store optionally names one of the spec's Stores.
	Store string `json:"store,omitempty" yaml:",omitempty"`

	// When is an optional guard expression.  When it evaluates to
	// false, the group skips the record.
	When string `json:"when,omitempty" yaml:",omitempty"`

	// Key is an optional window-key expression for session
	// groups, e.g. one that reads a session id from the record.
	// A record whose key differs from the open window's key
	// closes that window and opens a new one.
	Key string `json:"key,omitempty" yaml:",omitempty"`

	// Expiry is the maximum gap between records of one window,
	// for session groups without a Key expression.  A gap
	// strictly greater than Expiry starts a new window; a gap
	// exactly equal to it does not.  Parsed as a Go duration.
	Expiry string `json:"expiry,omitempty" yaml:",omitempty"`

	// Fields is the ordered set of field specs.  Later fields may
	// reference earlier ones.
	Fields []*FieldSpec `json:"fields" yaml:"fields"`

	when   *Expr
	key    *Expr
	expiry time.Duration
	maker  GroupMaker
}

// FieldSpec describes one derived field.
type FieldSpec struct {
	Name string `json:"name" yaml:"name"`

	// Type is one of the closed set of field types; see values.go.
	Type string `json:"type" yaml:"type"`

	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Expression computes the field's next value.
	Expression string `json:"expression" yaml:"expression"`

	// Default seeds the field when a group (or window) opens.  If
	// nil, the type's zero value is used.
	Default interface{} `json:"default,omitempty" yaml:",omitempty"`

	expr *Expr
	def  interface{}
}

// DefaultValue returns the field's seed value (a fresh copy for maps
// and sequences).
func (f *FieldSpec) DefaultValue() interface{} {
	return copyValue(f.def)
}

// ExpiryDuration returns the parsed expiry duration (zero if none
// declared).
func (g *GroupSpec) ExpiryDuration() time.Duration {
	return g.expiry
}

// Compile validates the spec and compiles every declared expression
// with the given interpreter.
//
// The registry defaults to DefaultRegistry.  Configuration problems
// (unknown types, duplicate names, missing required attributes) are
// reported here, never deferred to record-processing time.
func (s *Spec) Compile(ctx context.Context, reg *Registry, interp Interpreter) error {
	if reg == nil {
		reg = DefaultRegistry
	}

	if s.Version == "" {
		return &MissingConfigError{Attr: "version", Owner: s.Name}
	}

	s.funcs = make(map[string]interface{})
	for _, imp := range s.Imports {
		funcs, err := reg.Import(imp)
		if err != nil {
			return err
		}
		for name, f := range funcs {
			s.funcs[name] = f
		}
	}

	names := make(map[string]bool, len(s.Groups))
	for _, g := range s.Groups {
		if g.Name == "" {
			return &MissingConfigError{Attr: "name", Owner: s.Name}
		}
		if names[g.Name] {
			return &DuplicateNameError{Name: g.Name, Owner: s.Name}
		}
		names[g.Name] = true

		if err := g.compile(reg, interp); err != nil {
			return err
		}
	}

	s.compiled = true

	return nil
}

func (g *GroupSpec) compile(reg *Registry, interp Interpreter) error {
	maker, err := reg.Group(g.Type)
	if err != nil {
		return err
	}
	g.maker = maker

	if g.When != "" {
		if g.when, err = CompileExpr(interp, g.When); err != nil {
			return err
		}
	}

	if g.Key != "" {
		if g.key, err = CompileExpr(interp, g.Key); err != nil {
			return err
		}
	}

	if g.Expiry != "" {
		if g.expiry, err = time.ParseDuration(g.Expiry); err != nil {
			return err
		}
	}

	if g.Type == TypeSession && g.Key == "" && g.Expiry == "" {
		return &MissingConfigError{Attr: "key or expiry", Owner: g.Name}
	}

	if len(g.Fields) == 0 {
		return &MissingConfigError{Attr: "fields", Owner: g.Name}
	}

	names := make(map[string]bool, len(g.Fields))
	for _, f := range g.Fields {
		if f.Name == "" {
			return &MissingConfigError{Attr: "name", Owner: g.Name}
		}
		if names[f.Name] {
			return &DuplicateNameError{Name: f.Name, Owner: g.Name}
		}
		names[f.Name] = true

		if f.Expression == "" {
			return &MissingConfigError{Attr: "expression", Owner: g.Name + "." + f.Name}
		}
		if f.Type == "" {
			f.Type = TypeString
		}
		if !knownFieldType(f.Type) {
			return &UnknownTypeError{Type: f.Type}
		}

		if f.expr, err = CompileExpr(interp, f.Expression); err != nil {
			return err
		}

		if f.Default == nil {
			f.def = zeroValue(f.Type)
		} else {
			if f.def, err = castValue(f.Type, f.Default); err != nil {
				return err
			}
		}
	}

	return nil
}
