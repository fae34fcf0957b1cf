package stdlib

import (
	"fmt"
	"io"
	"sync"

	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
	"go.uber.org/zap"
)

// consoleJS builds print and console on top of __qjs_print. console
// renders objects with JSON.stringify where possible; print uses String.
const consoleJS = `
(function() {
	var out = globalThis.__qjs_print;
	delete globalThis.__qjs_print;

	function fmt(a) {
		if (typeof a === 'string') return a;
		if (a instanceof Error) return a.stack ? String(a) + '\n' + a.stack : String(a);
		if (typeof a === 'object' && a !== null) {
			try {
				var s = JSON.stringify(a);
				if (s !== undefined) return s;
			} catch (e) {}
		}
		return String(a);
	}
	function line(args) {
		var parts = [];
		for (var i = 0; i < args.length; i++) parts.push(fmt(args[i]));
		return parts.join(' ');
	}
	function hidden(name, fn) {
		Object.defineProperty(globalThis, name, { value: fn, writable: true, configurable: true });
	}

	hidden('print', function() {
		out('print', Array.prototype.map.call(arguments, String).join(' '));
	});

	var con = {};
	['log', 'info', 'debug', 'warn', 'error', 'trace'].forEach(function(lvl) {
		con[lvl] = function() { out(lvl, line(arguments)); };
	});
	var counters = {};
	con.count = function(label) {
		var l = label === undefined ? 'default' : String(label);
		counters[l] = (counters[l] || 0) + 1;
		out('log', l + ': ' + counters[l]);
	};
	con.assert = function(cond) {
		if (cond) return;
		var rest = Array.prototype.slice.call(arguments, 1);
		out('error', rest.length ? 'Assertion failed: ' + line(rest) : 'Assertion failed');
	};
	hidden('console', con);
})();
`

// printer serialises writes from print and console.
type printer struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	log    *zap.Logger
}

func (p *printer) print(level, message string) {
	w := p.stdout
	switch level {
	case "warn", "error", "trace":
		w = p.stderr
	}
	p.mu.Lock()
	fmt.Fprintln(w, message)
	p.mu.Unlock()
	if level != "print" {
		p.log.Debug("console", zap.String("level", level), zap.String("message", message))
	}
}

func setupConsole(rt core.JSRuntime, _ *eventloop.EventLoop, opts Options) error {
	p := &printer{stdout: opts.Stdout, stderr: opts.Stderr, log: opts.Logger.Named("console")}
	if err := rt.RegisterFunc("__qjs_print", p.print); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
