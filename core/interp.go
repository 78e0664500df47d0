package core

import "context"

// Interpreter can compile and evaluate the expressions declared in a
// specification.
//
// An expression is evaluated against an environment derived from an
// EvalContext, so authors can reference injected record fields and
// sibling/ancestor computed values without knowing the object graph.
type Interpreter interface {
	// Compile can make something that helps when Eval()ing the
	// expression later.  Compilation happens once, at spec
	// compile time, never per record.
	Compile(src string) (interface{}, error)

	// Eval evaluates the compiled expression with the given
	// names in scope.
	Eval(ctx context.Context, compiled interface{}, env map[string]interface{}) (interface{}, error)
}

// Expr pairs an expression's source with its compiled form and the
// interpreter that produced it.
type Expr struct {
	Source string

	interp   Interpreter
	compiled interface{}
}

// CompileExpr compiles src with the given interpreter.  A compilation
// fault is reported as an EvaluationError wrapping the cause.
func CompileExpr(interp Interpreter, src string) (*Expr, error) {
	compiled, err := interp.Compile(src)
	if err != nil {
		return nil, &EvaluationError{Expression: src, Err: err}
	}
	return &Expr{
		Source:   src,
		interp:   interp,
		compiled: compiled,
	}, nil
}

// Eval evaluates the expression against the context, with extra
// transient bindings scoped to this call only.  Any runtime fault is
// wrapped in an EvaluationError; the process is never terminated.
func (e *Expr) Eval(ctx context.Context, ec *EvalContext, extra map[string]interface{}) (interface{}, error) {
	v, err := e.interp.Eval(ctx, e.compiled, ec.Env(extra))
	if err != nil {
		return nil, &EvaluationError{Expression: e.Source, Err: err}
	}
	return v, nil
}
