// Package goja implements core.Interpreter using Goja, a Go
// implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Eval if the evaluation is
	// interrupted (by context cancelation).
	Interrupted = errors.New(InterruptedMessage)
)

// Interpreter compiles and evaluates a spec's expressions.
//
// An expression is a single ECMAScript expression, not a program: it
// is compiled wrapped in parentheses, and its value is the
// evaluation result.
//
// The following utilities are available to every expression:
//
//	gensym(): generate a random unique string.
//	esc(s): URL query-escape the given string.
//	cronNext(expr): the next time matching the cron expression,
//	  as RFC3339.
//	millis(x): parse an RFC3339 string to epoch milliseconds
//	  (numbers pass through).
//
// For testing only (requires the Testing flag):
//
//	sleep(ms): sleep for the given number of milliseconds.
type Interpreter struct {
	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func wrapSrc(src string) string {
	return "(" + strings.TrimSpace(src) + ")"
}

// Compile calls goja.Compile on the parenthesized expression.
func (i *Interpreter) Compile(src string) (interface{}, error) {
	obj, err := goja.Compile("", wrapSrc(src), true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + src)
	}
	return obj, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func exportString(o *goja.Runtime, x interface{}) string {
	switch vv := x.(type) {
	case goja.Value:
		x = vv.Export()
	}
	s, is := x.(string)
	if !is {
		protest(o, "not a string")
	}
	return s
}

// Eval implements the core.Interpreter method of the same name.
//
// Every name in env is bound as a global in a fresh runtime, so an
// expression references record fields and computed values directly
// (e.g. 'source.level', 'session.events + 1').
func (i *Interpreter) Eval(ctx context.Context, compiled interface{}, env map[string]interface{}) (interface{}, error) {
	p, is := compiled.(*goja.Program)
	if !is {
		return nil, fmt.Errorf("goja bad compilation: %T %#v", compiled, compiled)
	}

	o := goja.New()

	for name, v := range env {
		o.Set(name, v)
	}

	o.Set("gensym", func() interface{} {
		return uuid.NewString()
	})

	o.Set("esc", func(x interface{}) interface{} {
		return url.QueryEscape(exportString(o, x))
	})

	o.Set("cronNext", func(x interface{}) interface{} {
		c, err := cronexpr.Parse(exportString(o, x))
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	})

	o.Set("millis", func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		switch vv := x.(type) {
		case int64:
			return vv
		case float64:
			return int64(vv)
		case string:
			t, err := time.Parse(time.RFC3339, vv)
			if err != nil {
				protest(o, err.Error())
			}
			return t.UnixMilli()
		}
		protest(o, fmt.Sprintf("can't get millis of %T", x))
		return nil
	})

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If this Eval method calls cancel() after RunProgram
		// returns, then we'll never see this
		// InterruptedMessage, which is actually the behavior
		// we want.  In this case, we weren't actually
		// interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	return v.Export(), nil
}
