//go:build !v8

package quickjs

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cryguy/qjs/internal/core"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(core.Config{MemoryLimitMB: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func evalInto(t *testing.T, rt *Runtime, src string) error {
	t.Helper()
	return rt.EvalScript(src, core.EvalOptions{Filename: "<evalScript>"}, "__r")
}

func TestEvalScript_CompletionValue(t *testing.T) {
	rt := newTestRuntime(t)
	if err := evalInto(t, rt, "1 + 2"); err != nil {
		t.Fatalf("EvalScript: %v", err)
	}
	got, err := rt.EvalInt("globalThis.__r")
	if err != nil {
		t.Fatalf("EvalInt: %v", err)
	}
	if got != 3 {
		t.Errorf("completion = %d, want 3", got)
	}
}

func TestEvalScript_LexicalScopePersists(t *testing.T) {
	rt := newTestRuntime(t)
	if err := evalInto(t, rt, "let counter = 41;"); err != nil {
		t.Fatalf("EvalScript: %v", err)
	}
	if err := evalInto(t, rt, "counter + 1"); err != nil {
		t.Fatalf("EvalScript: %v", err)
	}
	got, _ := rt.EvalInt("globalThis.__r")
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestEvalScript_Exception(t *testing.T) {
	rt := newTestRuntime(t)
	err := evalInto(t, rt, "foobar")
	if !errors.Is(err, core.ErrThrown) {
		t.Fatalf("err = %v, want ErrThrown", err)
	}
	exc := core.TakeException(rt)
	var jsErr *core.JSError
	if !errors.As(exc, &jsErr) {
		t.Fatalf("TakeException = %T %v", exc, exc)
	}
	if jsErr.Kind != core.KindReferenceError {
		t.Errorf("kind = %v, want ReferenceError", jsErr.Kind)
	}
	if !strings.Contains(jsErr.Message, "is not defined") {
		t.Errorf("message = %q", jsErr.Message)
	}
	if !strings.Contains(jsErr.Stack, "<evalScript>") {
		t.Errorf("stack %q does not mention the filename", jsErr.Stack)
	}
}

func TestEvalScript_Filename(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.EvalScript("throw new Error('boom')", core.EvalOptions{Filename: "lib/boom.js"}, "__r")
	if !errors.Is(err, core.ErrThrown) {
		t.Fatalf("err = %v", err)
	}
	var jsErr *core.JSError
	if !errors.As(core.TakeException(rt), &jsErr) {
		t.Fatal("expected JSError")
	}
	if !strings.Contains(jsErr.Stack, "lib/boom.js") {
		t.Errorf("stack = %q, want filename", jsErr.Stack)
	}
}

func TestEvalScript_Strict(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.EvalScript("undeclaredVar = 1", core.EvalOptions{Filename: "s.js", Strict: true}, "__r")
	if !errors.Is(err, core.ErrThrown) {
		t.Fatalf("strict assignment should throw, got %v", err)
	}
	var jsErr *core.JSError
	if !errors.As(core.TakeException(rt), &jsErr) || jsErr.Kind != core.KindReferenceError {
		t.Errorf("want ReferenceError, got %v", jsErr)
	}

	if err := rt.EvalScript("sloppyVar = 1", core.EvalOptions{Filename: "s.js"}, "__r"); err != nil {
		t.Errorf("sloppy assignment: %v", err)
	}
}

func TestRunMicrotasks(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Eval("globalThis.done = false; Promise.resolve(1).then(function() { globalThis.done = true; });"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !rt.IsJobPending() {
		t.Error("expected pending job")
	}
	n, err := rt.RunMicrotasks()
	if err != nil {
		t.Fatalf("RunMicrotasks: %v", err)
	}
	if n < 1 {
		t.Errorf("ran %d jobs, want >= 1", n)
	}
	done, _ := rt.EvalBool("globalThis.done")
	if !done {
		t.Error("promise reaction did not run")
	}
	if rt.IsJobPending() {
		t.Error("queue should be empty")
	}
}

func TestRegisterFunc_ErrorThrowsTypeError(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("failing", func(s string) (string, error) {
		if s == "bad" {
			return "", fmt.Errorf("rejected %s", s)
		}
		return "ok:" + s, nil
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	got, err := rt.EvalString("failing('x')")
	if err != nil || got != "ok:x" {
		t.Errorf("failing('x') = %q, %v", got, err)
	}
	got, err = rt.EvalString("try { failing('bad'); 'no' } catch (e) { e instanceof TypeError ? e.message : 'wrong' }")
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if !strings.Contains(got, "rejected bad") {
		t.Errorf("message = %q", got)
	}
}

func TestBinaryTransfer(t *testing.T) {
	rt := newTestRuntime(t)
	data := make([]byte, 300000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if err := rt.WriteBinaryToJS("__bin", data); err != nil {
		t.Fatalf("WriteBinaryToJS: %v", err)
	}
	n, _ := rt.EvalInt("globalThis.__bin.byteLength")
	if n != len(data) {
		t.Fatalf("byteLength = %d, want %d", n, len(data))
	}
	got, err := rt.ReadBinaryFromJS("__bin")
	if err != nil {
		t.Fatalf("ReadBinaryFromJS: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip mismatch")
	}
	gone, _ := rt.EvalBool("!('__bin' in globalThis)")
	if !gone {
		t.Error("global not deleted after read")
	}
}

func TestBinaryTransfer_Fallback(t *testing.T) {
	rt := newTestRuntime(t)
	rt.useFallback = true
	if err := rt.initFallbackTransfer(); err != nil {
		t.Fatalf("initFallbackTransfer: %v", err)
	}
	data := []byte{0, 1, 2, 0xfe, 0xff, 'q', 'j', 's'}
	if err := rt.WriteBinaryToJS("__fb", data); err != nil {
		t.Fatalf("WriteBinaryToJS: %v", err)
	}
	got, err := rt.ReadBinaryFromJS("__fb")
	if err != nil {
		t.Fatalf("ReadBinaryFromJS: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %v, want %v", got, data)
	}
}

func TestCompileAndEvalBytecode(t *testing.T) {
	rt := newTestRuntime(t)
	code, err := rt.Compile("var base = 40; base + 2", core.EvalOptions{Filename: "compiled.js"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(code) == 0 {
		t.Fatal("empty bytecode")
	}

	other := newTestRuntime(t)
	if err := other.EvalBytecode(code, "__r"); err != nil {
		t.Fatalf("EvalBytecode: %v", err)
	}
	got, _ := other.EvalInt("globalThis.__r")
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}

	if _, err := rt.Compile("var = ;", core.EvalOptions{Filename: "bad.js"}); !errors.Is(err, core.ErrThrown) {
		t.Errorf("syntax error: got %v, want ErrThrown", err)
	}
	if err := other.EvalBytecode([]byte{1, 2, 3}, "__r"); !errors.Is(err, core.ErrBadBytecode) {
		t.Errorf("garbage bytecode: got %v, want ErrBadBytecode", err)
	}
	if err := other.EvalBytecode(nil, "__r"); !errors.Is(err, core.ErrBadBytecode) {
		t.Errorf("empty bytecode: got %v, want ErrBadBytecode", err)
	}
}

func TestMemoryUsage(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Eval("globalThis.blob = []; for (var i = 0; i < 1000; i++) blob.push({i: i});"); err != nil {
		t.Fatal(err)
	}
	before := rt.MemoryUsage()
	if before.ObjectCount < 1000 {
		t.Errorf("ObjectCount = %d, want >= 1000", before.ObjectCount)
	}
	if before.MallocLimit <= 0 {
		t.Errorf("MallocLimit = %d, want the configured limit", before.MallocLimit)
	}
	_ = rt.Eval("globalThis.blob = null;")
	rt.RunGC()
	after := rt.MemoryUsage()
	if after.ObjectCount >= before.ObjectCount {
		t.Errorf("ObjectCount after GC = %d, before = %d", after.ObjectCount, before.ObjectCount)
	}
}

func TestClose_Idempotent(t *testing.T) {
	rt, err := New(core.Config{})
	if err != nil {
		t.Fatal(err)
	}
	rt.Close()
	rt.Close()
}
