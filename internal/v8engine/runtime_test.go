//go:build v8

package v8engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cryguy/qjs/internal/core"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(core.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestEvalScript(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.EvalScript("1 + 2", core.EvalOptions{Filename: "a.js"}, "__r"); err != nil {
		t.Fatalf("EvalScript: %v", err)
	}
	got, _ := rt.EvalInt("globalThis.__r")
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestEvalScript_Exception(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.EvalScript("foobar", core.EvalOptions{Filename: "a.js"}, "__r")
	if !errors.Is(err, core.ErrThrown) {
		t.Fatalf("err = %v, want ErrThrown", err)
	}
	var jsErr *core.JSError
	if !errors.As(core.TakeException(rt), &jsErr) {
		t.Fatal("expected JSError")
	}
	if jsErr.Kind != core.KindReferenceError || jsErr.Message != "foobar is not defined" {
		t.Errorf("got %+v", jsErr)
	}
}

func TestBinaryTransfer(t *testing.T) {
	rt := newTestRuntime(t)
	data := []byte("hello v8")
	if err := rt.WriteBinaryToJS("__b", data); err != nil {
		t.Fatal(err)
	}
	got, err := rt.ReadBinaryFromJS("__b")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q", got)
	}
}
