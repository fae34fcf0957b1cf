package bridge

// helpersJS installs globalThis.__qjs, the JS half of the value bridge.
// Values crossing into Go are parked in a handle table and referenced by
// integer id. Every entry point used from Go goes through g, which turns a
// throw into a "!" result with the value left in globalThis.__qjs_exc.
const helpersJS = `
(function() {
	'use strict';
	var invoke = globalThis.__qjs_invoke;
	var release = globalThis.__qjs_release;
	delete globalThis.__qjs_invoke;
	delete globalThis.__qjs_release;

	var h = new Map();
	var next = 0;
	var UD = Symbol('qjs.userdata');
	var jobErrors = [];
	var registry = typeof FinalizationRegistry === 'function'
		? new FinalizationRegistry(function(token) { release(token); })
		: null;
	var hasSAB = typeof SharedArrayBuffer === 'function';

	function put(v) { var id = ++next; h.set(id, v); return id; }
	function get(id) {
		if (!h.has(id)) throw new ReferenceError('stale value handle ' + id);
		return h.get(id);
	}
	function take(id) { var v = get(id); h.delete(id); return v; }

	function kind(v) {
		if (v === undefined) return 'undefined';
		if (v === null) return 'null';
		var t = typeof v;
		if (t !== 'object' && t !== 'function') return t;
		if (t === 'function') return 'function';
		if (Array.isArray(v)) return 'array';
		if (v instanceof Error) return 'error';
		if (v instanceof Date) return 'date';
		if (v instanceof Promise) return 'promise';
		if (v instanceof ArrayBuffer || (hasSAB && v instanceof SharedArrayBuffer)) return 'arraybuffer';
		if (ArrayBuffer.isView(v)) return 'typedarray';
		return 'object';
	}

	function mkerr(name, message, stack) {
		var C = globalThis[name];
		var e = (typeof C === 'function' && (C === Error || C.prototype instanceof Error))
			? new C(message) : new Error(message);
		if (e.name !== name) {
			Object.defineProperty(e, 'name', { value: name, writable: true, configurable: true });
		}
		if (stack) e.stack = stack;
		return e;
	}

	function settle(r) {
		if (r.charAt(0) === '=') return r.length > 1 ? take(+r.slice(1)) : undefined;
		var d = JSON.parse(r.slice(1));
		if (d.throw) throw d.message;
		throw mkerr(d.name, d.message, d.stack);
	}

	function plain(v, depth) {
		if (depth > 64) return false;
		switch (typeof v) {
		case 'string':
		case 'boolean':
			return true;
		case 'number':
			return isFinite(v);
		case 'object':
			if (v === null) return true;
			if (Array.isArray(v)) {
				for (var i = 0; i < v.length; i++) {
					if (!(i in v) || !plain(v[i], depth + 1)) return false;
				}
				return true;
			}
			var p = Object.getPrototypeOf(v);
			if (p !== Object.prototype && p !== null) return false;
			var ks = Object.keys(v);
			for (var j = 0; j < ks.length; j++) {
				if (!plain(v[ks[j]], depth + 1)) return false;
			}
			return true;
		}
		return false;
	}

	var q = {
		g: function(fn) {
			try {
				var r = fn();
				return '=' + (r === undefined || r === null ? '' : r);
			} catch (e) {
				globalThis.__qjs_exc = e;
				return '!';
			}
		},
		put: put,
		get: get,
		take: take,
		kind: kind,
		pk: function(v) { return put(v) + ':' + kind(v); },
		del: function(ids) { for (var i = 0; i < ids.length; i++) h.delete(ids[i]); },
		pop: function(name) { var v = globalThis[name]; delete globalThis[name]; return v; },
		size: function() { return h.size; },
		reset: function() { h.clear(); jobErrors.length = 0; },

		num: function(v) {
			var n = typeof v === 'bigint' ? Number(v) : +v;
			return Object.is(n, -0) ? '-0' : String(n);
		},
		str: function(v) {
			if (typeof v === 'symbol') throw new TypeError('cannot convert symbol to string');
			return String(v);
		},
		big: function(v) {
			if (typeof v === 'bigint') return v.toString();
			if (typeof v === 'number' && Number.isInteger(v)) return BigInt(v).toString();
			if (typeof v === 'string') return BigInt(v).toString();
			throw new RangeError('value is not an integer');
		},
		date: function(v) {
			var t = v instanceof Date ? v.getTime() : +v;
			if (isNaN(t)) throw new RangeError('invalid date');
			return String(t);
		},
		json: function(v) {
			var s = JSON.stringify(v);
			if (s === undefined) throw new TypeError('value is not JSON serialisable');
			return s;
		},
		plain: function(v) { return plain(v, 0) ? JSON.stringify(v) : ''; },
		nat: function(v) {
			if (UD in v) return 'x';
			if (plain(v, 0)) return 'j' + JSON.stringify(v);
			if (Array.isArray(v)) return 'a' + (v.length >>> 0);
			var p = Object.getPrototypeOf(v);
			if (p === Object.prototype || p === null) return 'o' + JSON.stringify(Object.keys(v));
			return 'x';
		},
		keys: function(v) { return JSON.stringify(Object.keys(v)); },
		len: function(v) { return v.length >>> 0; },

		set: function(o, k, v) { o[k] = v; },
		has: function(o, k) { return (k in o) ? 1 : 0; },
		del1: function(o, k) { return Reflect.deleteProperty(o, k) ? 1 : 0; },
		define: function(o, k, v, c, w, e) {
			Object.defineProperty(o, k, { value: v, configurable: c, writable: w, enumerable: e });
		},
		accessor: function(o, k, g, s, c, e) {
			var d = { configurable: c, enumerable: e };
			if (g !== undefined) d.get = g;
			if (s !== undefined) d.set = s;
			Object.defineProperty(o, k, d);
		},
		ext: function(o) { return Reflect.isExtensible(o) ? 1 : 0; },
		freeze: function(o) { return Reflect.preventExtensions(o) ? 1 : 0; },

		call: function(f, t, a) { return Reflect.apply(f, t, a); },
		invoke: function(o, m, a) {
			var f = o[m];
			if (typeof f !== 'function') throw new TypeError(String(m) + ' is not a function');
			return Reflect.apply(f, o, a);
		},
		construct: function(f, a) { return Reflect.construct(f, a); },
		isctor: function(f) {
			if (typeof f !== 'function') return 0;
			try {
				Reflect.construct(String, [], f);
				return 1;
			} catch (e) {
				return 0;
			}
		},
		inst: function(v, c) { return (v instanceof c) ? 1 : 0; },
		mkerr: mkerr,

		fn: function(fid, name, length) {
			var f = function() {
				var ids = [put(this)];
				for (var i = 0; i < arguments.length; i++) ids.push(put(arguments[i]));
				var r;
				try {
					r = invoke(fid, ids.join(','));
				} finally {
					for (var j = 0; j < ids.length; j++) h.delete(ids[j]);
				}
				return settle(r);
			};
			Object.defineProperty(f, 'name', { value: name, configurable: true });
			Object.defineProperty(f, 'length', { value: length, configurable: true });
			if (registry) registry.register(f, 'f:' + fid);
			return f;
		},

		ud: function(id, o) {
			o = o || {};
			Object.defineProperty(o, UD, { value: id });
			if (registry) registry.register(o, 'u:' + id);
			return o;
		},
		udid: function(o) {
			return (o !== null && (typeof o === 'object' || typeof o === 'function') && UD in o) ? o[UD] : '';
		},
		cls: function(name, ctor, methods, getters) {
			var C = function() {
				if (!new.target) throw new TypeError('class constructor ' + name + ' cannot be invoked without new');
				var id = ctor.apply(undefined, arguments);
				Object.defineProperty(this, UD, { value: id });
				if (registry) registry.register(this, 'u:' + id);
			};
			Object.defineProperty(C, 'name', { value: name, configurable: true });
			Object.keys(methods).forEach(function(k) {
				Object.defineProperty(C.prototype, k, { value: methods[k], writable: true, configurable: true });
			});
			Object.keys(getters).forEach(function(k) {
				var g = getters[k];
				Object.defineProperty(C.prototype, k, {
					get: function() { return g.call(this); },
					configurable: true
				});
			});
			return C;
		},

		buf: function(v, name) {
			var u;
			if (v instanceof ArrayBuffer || (hasSAB && v instanceof SharedArrayBuffer)) {
				u = new Uint8Array(v);
			} else if (ArrayBuffer.isView(v)) {
				u = new Uint8Array(v.buffer, v.byteOffset, v.byteLength);
			} else {
				throw new TypeError('value is not an ArrayBuffer or ArrayBuffer view');
			}
			if (u.length === 0) return 0;
			var c = new Uint8Array(u.length);
			c.set(u);
			globalThis[name] = c.buffer;
			return u.length;
		},
		sab: function(ab) {
			if (!hasSAB) throw new TypeError('SharedArrayBuffer is not supported');
			var s = new SharedArrayBuffer(ab.byteLength);
			new Uint8Array(s).set(new Uint8Array(ab));
			return s;
		},

		enqueue: function(f, a) {
			if (typeof f !== 'function') throw new TypeError('job is not a function');
			Promise.resolve().then(function() {
				try {
					Reflect.apply(f, undefined, a);
				} catch (e) {
					jobErrors.push(e);
				}
			});
		},
		jobErr: function() {
			if (jobErrors.length > 0) throw jobErrors.shift();
		},
		watch: function(p) {
			var w = { s: 'pending', v: undefined };
			Promise.resolve(p).then(
				function(r) { w.s = 'fulfilled'; w.v = r; },
				function(e) { w.s = 'rejected'; w.v = e; }
			);
			return put(w);
		},
		state: function(id) { return get(id).s; },
		settled: function(id) {
			var w = take(id);
			if (w.s === 'rejected') throw w.v;
			return put(w.v) + ':' + kind(w.v);
		},

		globals: function() { return Object.getOwnPropertyNames(globalThis); },
		snapshot: function() { q.base = new Set(Object.getOwnPropertyNames(globalThis)); },
		// restore deletes globals created after snapshot and returns the
		// names that could not be deleted, such as var and function
		// declarations.
		restore: function() {
			var kept = [];
			if (!q.base) return JSON.stringify(kept);
			var names = Object.getOwnPropertyNames(globalThis);
			for (var i = 0; i < names.length; i++) {
				var n = names[i];
				if (q.base.has(n)) continue;
				try { delete globalThis[n]; } catch (e) {}
				if (Object.prototype.hasOwnProperty.call(globalThis, n)) kept.push(n);
			}
			return JSON.stringify(kept);
		}
	};

	Object.defineProperty(globalThis, '__qjs', { value: q });
})();
`
