package stdlib

import (
	"time"

	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
)

// timersJS keeps callbacks in globalThis.__timerCallbacks, where the event
// loop looks them up by id.
const timersJS = `
(function() {
	var register = globalThis.__timerRegister;
	var clear = globalThis.__timerClear;
	delete globalThis.__timerRegister;
	delete globalThis.__timerClear;

	Object.defineProperty(globalThis, '__timerCallbacks', { value: {}, writable: true, configurable: true });

	function schedule(fn, delay, args, interval) {
		if (typeof fn !== 'function') throw new TypeError('timer callback is not a function');
		var ms = +delay;
		if (!(ms > 0)) ms = 0;
		var id = register(Math.floor(ms), interval);
		var entry = { fn: fn, args: Array.prototype.slice.call(args, 2) };
		if (interval) entry.interval = true;
		globalThis.__timerCallbacks[id] = entry;
		return id;
	}
	function cancel(id) {
		if (typeof id !== 'number') return;
		clear(id);
		delete globalThis.__timerCallbacks[id];
	}
	var defs = {
		setTimeout: function(fn, delay) { return schedule(fn, delay, arguments, false); },
		setInterval: function(fn, delay) { return schedule(fn, delay, arguments, true); },
		clearTimeout: cancel,
		clearInterval: cancel
	};
	Object.keys(defs).forEach(function(k) {
		Object.defineProperty(globalThis, k, { value: defs[k], writable: true, configurable: true });
	});
})();
`

func setupTimers(rt core.JSRuntime, el *eventloop.EventLoop, _ Options) error {
	if err := rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) int {
		return el.RegisterTimer(time.Duration(delayMs)*time.Millisecond, isInterval)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__timerClear", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return err
	}
	return rt.Eval(timersJS)
}
