//go:build !v8

package stdlib

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
	"github.com/cryguy/qjs/internal/quickjs"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	rt     *quickjs.Runtime
	el     *eventloop.EventLoop
	stdout bytes.Buffer
	stderr bytes.Buffer
	logs   *observer.ObservedLogs
}

func setup(t *testing.T, args ...string) *fixture {
	t.Helper()
	rt, err := quickjs.New(core.Config{})
	if err != nil {
		t.Fatalf("quickjs.New: %v", err)
	}
	t.Cleanup(rt.Close)
	f := &fixture{rt: rt, el: eventloop.New()}
	obs, logs := observer.New(zap.DebugLevel)
	f.logs = logs
	err = Setup(rt, f.el, Options{
		Stdout:     &f.stdout,
		Stderr:     &f.stderr,
		ScriptArgs: args,
		Logger:     zap.New(obs),
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return f
}

func TestPrint(t *testing.T) {
	f := setup(t)
	if err := f.rt.Eval(`print(1, 'a', {}, null, [1, 2])`); err != nil {
		t.Fatal(err)
	}
	if got, want := f.stdout.String(), "1 a [object Object] null 1,2\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if f.logs.Len() != 0 {
		t.Errorf("print produced %d log entries", f.logs.Len())
	}
}

func TestConsole(t *testing.T) {
	f := setup(t)
	err := f.rt.Eval(`
		console.log('hello', {a: 1});
		console.warn('careful');
		console.error(new TypeError('bad'));
		console.count(); console.count();
		console.assert(1 === 2, 'math');
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := f.stdout.String(), "hello {\"a\":1}\ndefault: 1\ndefault: 2\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	stderr := f.stderr.String()
	for _, want := range []string{"careful\n", "TypeError: bad", "Assertion failed: math\n"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr %q missing %q", stderr, want)
		}
	}
	entries := f.logs.FilterField(zap.String("level", "warn")).All()
	if len(entries) != 1 || entries[0].ContextMap()["message"] != "careful" {
		t.Errorf("warn log entries = %+v", entries)
	}
}

func TestHelpersAreNotEnumerable(t *testing.T) {
	f := setup(t)
	keys, err := f.rt.EvalString(`['print', 'console', 'scriptArgs', 'setTimeout', '__timerCallbacks']
		.filter(function(k) { return Object.keys(globalThis).indexOf(k) >= 0; }).join(',')`)
	if err != nil {
		t.Fatal(err)
	}
	if keys != "" {
		t.Errorf("enumerable helpers = %q, want none", keys)
	}
	gone, _ := f.rt.EvalString(`typeof __qjs_print + typeof __timerRegister`)
	if gone != "undefinedundefined" {
		t.Errorf("internal hooks still visible: %q", gone)
	}
}

func TestScriptArgs(t *testing.T) {
	f := setup(t, "prog.js", "--flag")
	got, err := f.rt.EvalString(`scriptArgs.join(' ') + ' ' + Object.isFrozen(scriptArgs)`)
	if err != nil {
		t.Fatal(err)
	}
	if got != "prog.js --flag true" {
		t.Errorf("scriptArgs = %q", got)
	}
}

func TestTimers(t *testing.T) {
	f := setup(t)
	err := f.rt.Eval(`
		globalThis.out = [];
		setTimeout(function(a, b) { out.push('t' + a + b); }, 5, 1, 2);
		var cancelled = setTimeout(function() { out.push('never'); }, 1);
		clearTimeout(cancelled);
		var n = 0;
		var iv = setInterval(function() { out.push('i'); if (++n === 2) clearInterval(iv); }, 1);
	`)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.el.Drain(f.rt, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	got, _ := f.rt.EvalString(`out.slice().sort().join(',')`)
	if got != "i,i,t12" {
		t.Errorf("timer output = %q, want i,i,t12", got)
	}
	if f.el.HasPending() {
		t.Error("timers still pending after clearInterval")
	}

	if err := f.rt.Eval(`try { setTimeout('code'); } catch (e) { globalThis.msg = e.name; }`); err != nil {
		t.Fatal(err)
	}
	if msg, _ := f.rt.EvalString(`msg`); msg != "TypeError" {
		t.Errorf("string callback threw %q, want TypeError", msg)
	}
}
