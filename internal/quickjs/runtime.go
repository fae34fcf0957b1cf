//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/qjs/internal/core"
	"go.uber.org/zap"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// Runtime implements core.JSRuntime for the QuickJS engine.
type Runtime struct {
	vm     *quickjs.VM
	log    *zap.Logger
	closed bool

	tls *libc.TLS // from the VM, for calls into libquickjs
	ctx uintptr   // JSContext
	rt  uintptr   // JSRuntime

	// useFallback is set when the VM internals could not be reached (e.g. if
	// modernc.org/quickjs changes its unexported struct layout). Eval then
	// goes through the high-level API and binary data moves as hex chunks.
	useFallback   bool
	pendingBinary []byte
	pendingResult []byte
}

var (
	_ core.JSRuntime        = (*Runtime)(nil)
	_ core.BinaryTransferer = (*Runtime)(nil)
	_ core.Compiler         = (*Runtime)(nil)
	_ core.MemoryReporter   = (*Runtime)(nil)
)

// New creates a QuickJS VM configured from cfg.
func New(cfg core.Config) (*Runtime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("quickjs: new VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runtime{vm: vm, log: log.Named("quickjs")}

	if err := r.extractInternals(); err != nil {
		r.log.Warn("direct C API unavailable, using fallback paths", zap.Error(err))
		r.useFallback = true
		if err := r.initFallbackTransfer(); err != nil {
			vm.Close()
			return nil, err
		}
	} else if cfg.GCThreshold > 0 {
		lib.XJS_SetGCThreshold(r.tls, r.rt, lib.Tsize_t(cfg.GCThreshold))
	}
	return r, nil
}

// Name returns "quickjs".
func (r *Runtime) Name() string { return "quickjs" }

// Eval runs bridge glue and drops the completion value.
func (r *Runtime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString runs js; non-string results are formatted with fmt.Sprint.
func (r *Runtime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (r *Runtime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("quickjs: %T result is not a bool", result)
	}
	return b, nil
}

func (r *Runtime) EvalInt(js string) (int, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("quickjs: %T result is not an int", result)
	}
}

func (r *Runtime) EvalFloat(js string) (float64, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", result)
	}
}

// RegisterFunc installs fn as a non-enumerable global. The VM wrapper returns multi-value results as [T, err] arrays; the
// installed shim unwraps them and throws a TypeError on error.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	rawName := "__qjs_raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%[1]s];
		Object.defineProperty(globalThis, %[2]s, {
			value: function() {
				var out = raw.apply(this, arguments);
				if (Array.isArray(out)) {
					if (out[1] !== null && out[1] !== undefined) throw new TypeError(%[3]s + out[1]);
					return out[0];
				}
				return out;
			},
			writable: true, configurable: true, enumerable: false
		});
		delete globalThis[%[1]s];
	})()`, core.Quote(rawName), core.Quote(name), core.Quote("calling "+name+": "))
	return r.Eval(wrapJS)
}

// SetGlobal assigns value to globalThis[name].
func (r *Runtime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("quickjs: atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// Interrupt aborts the running script. The VM stays unusable for scripts
// that expect to finish; callers discard it.
func (r *Runtime) Interrupt() {
	r.vm.Interrupt()
}

// Close frees the VM. Calling Close twice is a no-op.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.vm.Close()
}
