package goja

import (
	"context"
	"testing"
	"time"
)

func eval(t *testing.T, src string, env map[string]interface{}) interface{} {
	t.Helper()

	i := NewInterpreter()
	compiled, err := i.Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	v, err := i.Eval(context.Background(), compiled, env)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestEval(t *testing.T) {
	t.Run("arithmetic", func(t *testing.T) {
		if v := eval(t, "1 + 2", nil); v != int64(3) {
			t.Fatalf("got %#v (%T)", v, v)
		}
	})

	t.Run("env reference", func(t *testing.T) {
		env := map[string]interface{}{
			"session": map[string]interface{}{"events": int64(2)},
		}
		if v := eval(t, "session.events + 1", env); v != int64(3) {
			t.Fatalf("got %#v (%T)", v, v)
		}
	})

	t.Run("nested source access", func(t *testing.T) {
		env := map[string]interface{}{
			"source": map[string]interface{}{"level": 7.0, "play": true},
		}
		if v := eval(t, "source.play && 5 < source.level", env); v != true {
			t.Fatalf("got %#v", v)
		}
	})

	t.Run("object literal", func(t *testing.T) {
		v := eval(t, "{a: 1}", nil)
		m, is := v.(map[string]interface{})
		if !is {
			t.Fatalf("got %#v (%T)", v, v)
		}
		if m["a"] != int64(1) {
			t.Fatalf("got %#v", m)
		}
	})

	t.Run("undefined name", func(t *testing.T) {
		i := NewInterpreter()
		compiled, err := i.Compile("nope.nothing")
		if err != nil {
			t.Fatal(err)
		}
		if _, err = i.Eval(context.Background(), compiled, nil); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestCompileError(t *testing.T) {
	i := NewInterpreter()
	if _, err := i.Compile("1 +"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestBuiltins(t *testing.T) {
	t.Run("millis", func(t *testing.T) {
		v := eval(t, `millis("2016-02-10T00:00:00Z")`, nil)
		want, _ := time.Parse(time.RFC3339, "2016-02-10T00:00:00Z")
		if v != want.UnixMilli() {
			t.Fatalf("got %#v", v)
		}

		// Numbers pass through.
		if v := eval(t, "millis(42)", nil); v != int64(42) {
			t.Fatalf("got %#v", v)
		}
	})

	t.Run("esc", func(t *testing.T) {
		if v := eval(t, `esc("a b")`, nil); v != "a+b" {
			t.Fatalf("got %#v", v)
		}
	})

	t.Run("gensym", func(t *testing.T) {
		a := eval(t, "gensym()", nil)
		b := eval(t, "gensym()", nil)
		if a == b {
			t.Fatalf("got %v twice", a)
		}
	})

	t.Run("cronNext", func(t *testing.T) {
		v := eval(t, `cronNext("0 0 * * *")`, nil)
		s, is := v.(string)
		if !is {
			t.Fatalf("got %#v (%T)", v, v)
		}
		then, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			t.Fatal(err)
		}
		if !then.After(time.Now().Add(-time.Minute)) {
			t.Fatalf("got %v", then)
		}
	})
}

func TestEvalInterrupt(t *testing.T) {
	i := NewInterpreter()
	i.Testing = true

	compiled, err := i.Compile("sleep(100) || true")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err = i.Eval(ctx, compiled, nil); err != Interrupted {
		t.Fatalf("got %v", err)
	}
}
