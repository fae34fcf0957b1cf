//go:build !v8

package qjs

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/cryguy/qjs/internal/cache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestEval(t *testing.T) {
	n, ok, err := Eval[int]("1 + 2")
	if err != nil || !ok || n != 3 {
		t.Fatalf("Eval[int](1 + 2) = (%d, %v, %v), want (3, true, nil)", n, ok, err)
	}
	s, ok, err := Eval[string]("'foo' + 'bar'")
	if err != nil || !ok || s != "foobar" {
		t.Errorf("Eval[string] = (%q, %v, %v)", s, ok, err)
	}
	_, ok, err = Eval[int]("undefined")
	if err != nil || ok {
		t.Errorf("Eval[int](undefined) = (%v, %v), want (false, nil)", ok, err)
	}
	b, _, err := Eval[*big.Int]("123456789012345678901234567890n")
	if err != nil || b.String() != "123456789012345678901234567890" {
		t.Errorf("Eval[*big.Int] = (%v, %v)", b, err)
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		src     string
		kind    ErrorKind
		name    string
		message string
	}{
		{"foobar", KindReferenceError, "ReferenceError", "is not defined"},
		{"throw new Error('Whoops!')", KindError, "Error", "Whoops!"},
		{"throw new RangeError('far')", KindRangeError, "RangeError", "far"},
		{"class MyErr extends Error { constructor(m) { super(m); this.name = 'MyErr'; } }; throw new MyErr('mine')", KindCustom, "MyErr", "mine"},
		{"throw 42", KindThrow, "Throw", "42"},
		{"1 +", KindSyntaxError, "SyntaxError", ""},
	}
	for _, tt := range tests {
		_, _, err := Eval[int](tt.src)
		var jsErr *JSError
		if !errors.As(err, &jsErr) {
			t.Errorf("%s: err = %v, want *JSError", tt.src, err)
			continue
		}
		if jsErr.Kind != tt.kind || jsErr.Name != tt.name {
			t.Errorf("%s: got %s/%s, want %s/%s", tt.src, jsErr.Kind, jsErr.Name, tt.kind, tt.name)
		}
		if !strings.Contains(jsErr.Message, tt.message) {
			t.Errorf("%s: message = %q, want it to contain %q", tt.src, jsErr.Message, tt.message)
		}
	}

	_, _, err := Eval[int]("foobar")
	if msg := err.Error(); !strings.HasPrefix(msg, "ReferenceError: ") || !strings.Contains(msg, "foobar") {
		t.Errorf("Error() = %q", msg)
	}
	var jsErr *JSError
	errors.As(err, &jsErr)
	if !strings.Contains(jsErr.Stack, "<evalScript>") {
		t.Errorf("stack %q does not name <evalScript>", jsErr.Stack)
	}
}

func TestRuntime_StatePersists(t *testing.T) {
	rt := newRuntime(t, Config{})
	if _, err := rt.Eval("var total = 1; let step = 2;"); err != nil {
		t.Fatal(err)
	}
	n, _, err := EvalAs[int](rt, "total += step; total")
	if err != nil || n != 3 {
		t.Errorf("total = (%d, %v), want 3", n, err)
	}
}

func TestRuntime_Options(t *testing.T) {
	rt := newRuntime(t, Config{})
	_, err := rt.Eval("undeclared = 1", WithStrict())
	var jsErr *JSError
	if !errors.As(err, &jsErr) || jsErr.Kind != KindReferenceError {
		t.Errorf("strict assignment: err = %v, want ReferenceError", err)
	}
	_, err = rt.Eval("null.x", WithFilename("custom.js"))
	if !errors.As(err, &jsErr) || !strings.Contains(jsErr.Stack, "custom.js") {
		t.Errorf("stack %v does not name custom.js", err)
	}
}

func TestRuntime_HostFunctions(t *testing.T) {
	rt := newRuntime(t, Config{})
	if err := rt.SetGlobal("add", func(a, b float64) float64 { return a + b }); err != nil {
		t.Fatal(err)
	}
	if err := rt.SetGlobal("divide", func(a, b int) (int, error) {
		if b == 0 {
			return 0, NewJSError("RangeError", "division by zero")
		}
		return a / b, nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := rt.SetGlobal("config", map[string]any{"name": "qjs", "tags": []string{"a", "b"}}); err != nil {
		t.Fatal(err)
	}

	got, _, err := EvalAs[string](rt, "add(1.5, 2) + ' ' + divide(9, 2) + ' ' + config.name + config.tags.length")
	if err != nil || got != "3.5 4 qjs2" {
		t.Errorf("got (%q, %v)", got, err)
	}
	_, _, err = EvalAs[int](rt, "divide(1, 0)")
	var jsErr *JSError
	if !errors.As(err, &jsErr) || jsErr.Kind != KindRangeError || jsErr.Message != "division by zero" {
		t.Errorf("divide(1, 0): err = %v", err)
	}

	caught, _, _ := EvalAs[bool](rt, "try { divide(1, 0); false } catch (e) { e instanceof RangeError }")
	if !caught {
		t.Error("host error not catchable as RangeError")
	}
}

func TestRuntime_ValuesOutliveCalls(t *testing.T) {
	rt := newRuntime(t, Config{})
	obj, err := rt.Eval("({items: [1, 2, 3], when: new Date(86400000)})")
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Free()
	items, err := obj.Get("items")
	if err != nil {
		t.Fatal(err)
	}
	var xs []int
	if _, err := items.Decode(&xs); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, xs); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	when, _ := obj.Get("when")
	ts, _, _ := ValueAs[time.Time](when)
	if !ts.Equal(time.Unix(86400, 0)) {
		t.Errorf("when = %v", ts)
	}

	rt.Close()
	if _, err := obj.Get("items"); !errors.Is(err, ErrClosed) {
		t.Errorf("after Close: err = %v, want ErrClosed", err)
	}
}

func TestRuntime_ExecutionTimeout(t *testing.T) {
	rt := newRuntime(t, Config{ExecutionTimeout: 50})
	start := time.Now()
	_, err := rt.Eval("for (;;) {}")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout took too long")
	}
	if !rt.Broken() {
		t.Error("runtime not marked broken")
	}
}

func TestRuntime_TimeoutCoversPropertyAccess(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Value) error
	}{
		{"Get", func(v *Value) error { _, err := v.Get("spin"); return err }},
		{"Has", func(v *Value) error { _, err := v.Has("trap"); return err }},
		{"ToString", func(v *Value) error { _, err := v.ToString(); return err }},
		{"Decode", func(v *Value) error { var m map[string]any; _, err := v.Decode(&m); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t, Config{ExecutionTimeout: 50})
			obj, err := rt.Eval(`new Proxy({
				get spin() { for (;;) {} },
				toString() { for (;;) {} },
				toJSON() { for (;;) {} },
			}, {
				has() { for (;;) {} },
			})`)
			if err != nil {
				t.Fatal(err)
			}
			if err := tt.run(obj); !errors.Is(err, ErrTimeout) {
				t.Fatalf("err = %v, want ErrTimeout", err)
			}
			if !rt.Broken() {
				t.Error("runtime not marked broken")
			}
		})
	}
}

func TestRuntime_EvalContextCancel(t *testing.T) {
	rt := newRuntime(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rt.EvalContext(ctx, "while (true) {}")
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrInterrupted wrapping DeadlineExceeded", err)
	}

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	fresh := newRuntime(t, Config{})
	if _, err := fresh.EvalContext(done, "1"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled before start: err = %v", err)
	}
	if fresh.Broken() {
		t.Error("runtime broken by a call that never started")
	}
}

func TestRuntime_Modules(t *testing.T) {
	rt := newRuntime(t, Config{ModuleLoader: func(spec, _ string) (string, error) {
		if spec == "virtual:math" {
			return "export const square = (x) => x * x;", nil
		}
		return "", errors.New("unknown module " + spec)
	}})
	ns, err := rt.Eval("import { square } from 'virtual:math'; export default square(7);", WithModule())
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	def, _ := ns.Get("default")
	if got, _, _ := ValueAs[int](def); got != 49 {
		t.Errorf("default export = %d, want 49", got)
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "dep.mjs"), []byte("export const name = 'dep';"), 0o644)
	entry := filepath.Join(dir, "main.mjs")
	os.WriteFile(entry, []byte("import { name } from './dep.mjs'; export const greeting = 'hi ' + name;"), 0o644)
	mod, err := rt.EvalFile(entry)
	if err != nil {
		t.Fatalf("EvalFile: %v", err)
	}
	greeting, _ := mod.Get("greeting")
	if s, _, _ := ValueAs[string](greeting); s != "hi dep" {
		t.Errorf("greeting = %q", s)
	}

	script := filepath.Join(dir, "plain.js")
	os.WriteFile(script, []byte("var fromFile = 5; fromFile * 2"), 0o644)
	v, err := rt.EvalFile(script)
	if err != nil {
		t.Fatalf("EvalFile(plain): %v", err)
	}
	if n, _, _ := ValueAs[int](v); n != 10 {
		t.Errorf("plain script = %d, want 10", n)
	}
}

func TestRuntime_CompileAndCache(t *testing.T) {
	a := newRuntime(t, Config{})
	script, err := a.Compile("var compiled = 'yes'; 6 * 7", WithFilename("compiled.js"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(script.Bytecode()) == 0 {
		t.Fatal("empty bytecode")
	}
	b := newRuntime(t, Config{})
	v, err := b.RunScript(LoadScript(script.Bytecode()))
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if n, _, _ := ValueAs[int](v); n != 42 {
		t.Errorf("RunScript = %d, want 42", n)
	}

	store := cache.NewMemoryStore(8)
	c := newRuntime(t, Config{BytecodeCache: store})
	for i := 0; i < 2; i++ {
		v, err := c.EvalCached("var runs = (runs || 0) + 1; 21 * 2")
		if err != nil {
			t.Fatalf("EvalCached run %d: %v", i, err)
		}
		if n, _, _ := ValueAs[int](v); n != 42 {
			t.Errorf("EvalCached run %d = %d", i, n)
		}
	}
	if n, _, _ := EvalAs[int](c, "runs"); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d scripts, want 1", store.Len())
	}

	if _, err := a.Compile("let = ;"); err == nil {
		t.Error("Compile accepted a syntax error")
	}
}

func TestRuntime_EvalCachedRecoversFromBadEntry(t *testing.T) {
	store := cache.NewMemoryStore(8)
	rt := newRuntime(t, Config{BytecodeCache: store})
	const src = "1 + 2"
	key := rt.cacheKey(src, buildOptions(nil))
	if err := store.Put(key, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	v, err := rt.EvalCached(src)
	if err != nil {
		t.Fatalf("EvalCached: %v", err)
	}
	if n, _, _ := ValueAs[int](v); n != 3 {
		t.Errorf("EvalCached = %d, want 3", n)
	}
	code, ok, _ := store.Get(key)
	if !ok || bytes.Equal(code, []byte{1, 2, 3, 4}) {
		t.Error("bad entry was not replaced with fresh bytecode")
	}

	if _, err := rt.RunScript(LoadScript([]byte{9, 9})); !errors.Is(err, ErrBadBytecode) {
		t.Errorf("RunScript(garbage) err = %v, want ErrBadBytecode", err)
	}
}

func TestRuntime_StdHelpersAndTimers(t *testing.T) {
	var out bytes.Buffer
	rt := newRuntime(t, Config{StdHelpers: true, Stdout: &out, ScriptArgs: []string{"x"}})
	p, err := rt.Eval(`new Promise(function(resolve) {
		setTimeout(function() { print('tick', scriptArgs[0]); resolve('done'); }, 10);
	})`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if s, _, _ := ValueAs[string](v); s != "done" {
		t.Errorf("resolved %q", s)
	}
	if out.String() != "tick x\n" {
		t.Errorf("stdout = %q", out.String())
	}

	if _, err := rt.Eval("var fired = 0; setTimeout(function() { fired++; }, 1); setTimeout(function() { fired++; }, 5);"); err != nil {
		t.Fatal(err)
	}
	if err := rt.RunLoop(context.Background()); err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if n, _, _ := EvalAs[int](rt, "fired"); n != 2 {
		t.Errorf("fired = %d, want 2", n)
	}
}

func TestRuntime_MemoryUsage(t *testing.T) {
	rt := newRuntime(t, Config{MemoryLimitMB: 32})
	if _, err := rt.Eval("var big = []; for (var i = 0; i < 1000; i++) big.push({i: i});"); err != nil {
		t.Fatal(err)
	}
	mu, err := rt.MemoryUsage()
	if err != nil {
		t.Fatalf("MemoryUsage: %v", err)
	}
	if mu.MemoryUsed <= 0 || mu.ObjectCount < 1000 {
		t.Errorf("usage = %+v", mu)
	}
	rt.RunGC()
}

func TestLongVersion(t *testing.T) {
	if v := LongVersion(); !strings.HasPrefix(v, Version+" (") || !strings.Contains(v, "quickjs") {
		t.Errorf("LongVersion() = %q", v)
	}
}
