package core

import (
	"context"
	"fmt"
)

// testInterp is an Interpreter for tests: each known "expression" is
// a Go function over the evaluation environment.
type testInterp struct {
	funcs map[string]func(env map[string]interface{}) (interface{}, error)
}

func newTestInterp() *testInterp {
	return &testInterp{
		funcs: make(map[string]func(env map[string]interface{}) (interface{}, error)),
	}
}

func (i *testInterp) def(src string, f func(env map[string]interface{}) (interface{}, error)) *testInterp {
	i.funcs[src] = f
	return i
}

func (i *testInterp) Compile(src string) (interface{}, error) {
	f, have := i.funcs[src]
	if !have {
		return nil, fmt.Errorf("can't compile %q", src)
	}
	return f, nil
}

func (i *testInterp) Eval(ctx context.Context, compiled interface{}, env map[string]interface{}) (interface{}, error) {
	f, is := compiled.(func(env map[string]interface{}) (interface{}, error))
	if !is {
		return nil, fmt.Errorf("bad compilation %T", compiled)
	}
	return f(env)
}

// num reads a numeric env value as an int64.
func num(env map[string]interface{}, path ...string) int64 {
	var x interface{} = env
	for _, p := range path {
		m, is := x.(map[string]interface{})
		if !is {
			return 0
		}
		x = m[p]
	}
	switch v := x.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
