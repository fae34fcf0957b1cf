//go:build v8

package v8engine

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cryguy/qjs/internal/core"
	v8 "github.com/tommie/v8go"
	"go.uber.org/zap"
)

const glueOrigin = "qjs:bridge"

// Runtime implements core.JSRuntime for the V8 engine.
type Runtime struct {
	iso    *v8.Isolate
	ctx    *v8.Context
	log    *zap.Logger
	closed bool
}

var (
	_ core.JSRuntime        = (*Runtime)(nil)
	_ core.BinaryTransferer = (*Runtime)(nil)
	_ core.MemoryReporter   = (*Runtime)(nil)
)

// New creates a V8 isolate and context configured from cfg.
func New(cfg core.Config) (*Runtime, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{iso: iso, ctx: v8.NewContext(iso), log: log.Named("v8")}, nil
}

// Name returns "v8".
func (r *Runtime) Name() string { return "v8" }

// Eval runs bridge glue and drops the completion value.
func (r *Runtime) Eval(js string) error {
	_, err := r.run(js)
	return err
}

// EvalString runs js and formats the completion value with String().
func (r *Runtime) EvalString(js string) (string, error) {
	val, err := r.run(js)
	if err != nil || val == nil {
		return "", err
	}
	return val.String(), nil
}

func (r *Runtime) EvalBool(js string) (bool, error) {
	val, err := r.run(js)
	if err != nil || val == nil {
		return false, err
	}
	return val.Boolean(), nil
}

func (r *Runtime) EvalInt(js string) (int, error) {
	val, err := r.run(js)
	if err != nil || val == nil {
		return 0, err
	}
	return int(val.Integer()), nil
}

func (r *Runtime) EvalFloat(js string) (float64, error) {
	val, err := r.run(js)
	if err != nil || val == nil {
		return 0, err
	}
	return val.Number(), nil
}

// run evaluates glue code under a fixed origin so it never shows up as a
// caller filename in stack traces.
func (r *Runtime) run(js string) (*v8.Value, error) {
	return r.ctx.RunScript(js, glueOrigin)
}

// EvalScript runs caller source under its filename. v8go does not hand
// back the thrown value, so the exception is rebuilt from the JSError.
func (r *Runtime) EvalScript(src string, opts core.EvalOptions, slot string) error {
	if opts.Strict {
		src = "\"use strict\";\n" + src
	}
	val, err := r.ctx.RunScript(src, opts.Filename)
	if err != nil {
		return r.stash(err)
	}
	if val == nil {
		val = v8.Undefined(r.iso)
	}
	return r.ctx.Global().Set(slot, val)
}

func (r *Runtime) stash(err error) error {
	var jsErr *v8.JSError
	if !errors.As(err, &jsErr) {
		return err
	}
	exc := core.ErrorFromText(jsErr.Message, jsErr.StackTrace)
	if stack, ok := strings.CutPrefix(exc.Stack, jsErr.Message); ok {
		exc.Stack = strings.TrimPrefix(stack, "\n")
	}
	if stashErr := r.Eval(core.StashExceptionJS(exc)); stashErr != nil {
		return err
	}
	return core.ErrThrown
}

// RegisterFunc installs fn as a global. Arguments are converted by the
// parameter kinds string, int, int64, float64 and bool; other parameters
// receive their zero value. A non-nil error result becomes a TypeError.
func (r *Runtime) RegisterFunc(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("v8engine: %s is %T, not a function", name, fn)
	}
	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < ft.NumIn() {
			r.throwTypeError(fmt.Sprintf("%s expects %d arguments, got %d", name, ft.NumIn(), len(args)))
			return nil
		}
		in := make([]reflect.Value, ft.NumIn())
		for i := range in {
			in[i] = fromJS(args[i], ft.In(i))
		}
		out := fv.Call(in)
		if len(out) == 0 {
			return nil
		}
		if last := out[len(out)-1]; ft.Out(len(out)-1) == errorType {
			if !last.IsNil() {
				r.throwTypeError(name + ": " + last.Interface().(error).Error())
				return nil
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return nil
		}
		return toJS(r.iso, out[0])
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

var errorType = reflect.TypeFor[error]()

func (r *Runtime) throwTypeError(msg string) {
	val, err := r.ctx.RunScript("new TypeError("+core.Quote(msg)+")", glueOrigin)
	if err != nil {
		val, _ = v8.NewValue(r.iso, msg)
	}
	r.iso.ThrowException(val)
}

// RunMicrotasks pumps the V8 microtask queue. V8 does not report how many
// tasks ran or whether one threw.
func (r *Runtime) RunMicrotasks() (int, error) {
	r.ctx.PerformMicrotaskCheckpoint()
	return 0, nil
}

// IsJobPending always reports false: V8 keeps no inspectable queue and a
// checkpoint drains it completely.
func (r *Runtime) IsJobPending() bool { return false }

// Interrupt terminates the running script.
func (r *Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

// Close disposes the context and isolate.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.ctx.Close()
	r.iso.Dispose()
}

// MemoryUsage reports V8 heap statistics.
func (r *Runtime) MemoryUsage() core.MemoryUsage {
	hs := r.iso.GetHeapStatistics()
	return core.MemoryUsage{
		MemoryUsed:     int64(hs.UsedHeapSize),
		TotalHeapSize:  int64(hs.TotalHeapSize),
		HeapSizeLimit:  int64(hs.HeapSizeLimit),
		MallocSize:     int64(hs.MallocedMemory),
		ExternalMemory: int64(hs.ExternalMemory),
	}
}

// RunGC is a no-op: v8go exposes no collection trigger.
func (r *Runtime) RunGC() {}

// ReadBinaryFromJS copies the buffer at globalThis[globalName] out
// through a SharedArrayBuffer, the only backing store v8go exposes, and
// deletes the global.
func (r *Runtime) ReadBinaryFromJS(globalName string) ([]byte, error) {
	name := core.Quote(globalName)
	defer r.run("delete globalThis[" + name + "]; delete globalThis.__qjs_sab;")

	if _, err := r.run(`(function() {
		var src = new Uint8Array(globalThis[` + name + `]);
		var sab = new SharedArrayBuffer(src.length);
		new Uint8Array(sab).set(src);
		globalThis.__qjs_sab = sab;
	})()`); err != nil {
		return nil, fmt.Errorf("staging %s: %w", globalName, err)
	}
	sab, err := r.ctx.Global().Get("__qjs_sab")
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", globalName, err)
	}
	data, release, err := sab.SharedArrayBufferGetContents()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", globalName, err)
	}
	defer release()
	return append([]byte{}, data...), nil
}

// WriteBinaryToJS stores a copy of data as an ArrayBuffer at
// globalThis[globalName].
func (r *Runtime) WriteBinaryToJS(globalName string, data []byte) error {
	if _, err := r.run("globalThis.__qjs_sab = new SharedArrayBuffer(" + strconv.Itoa(len(data)) + ");"); err != nil {
		return fmt.Errorf("allocating %d bytes: %w", len(data), err)
	}
	if len(data) > 0 {
		sab, err := r.ctx.Global().Get("__qjs_sab")
		if err != nil {
			r.run("delete globalThis.__qjs_sab;")
			return fmt.Errorf("writing %s: %w", globalName, err)
		}
		dst, release, err := sab.SharedArrayBufferGetContents()
		if err != nil {
			r.run("delete globalThis.__qjs_sab;")
			return fmt.Errorf("writing %s: %w", globalName, err)
		}
		copy(dst, data)
		release()
	}
	_, err := r.run(`(function() {
		var sab = globalThis.__qjs_sab;
		delete globalThis.__qjs_sab;
		var buf = new ArrayBuffer(sab.byteLength);
		new Uint8Array(buf).set(new Uint8Array(sab));
		globalThis[` + core.Quote(globalName) + `] = buf;
	})()`)
	return err
}

func fromJS(val *v8.Value, t reflect.Type) reflect.Value {
	var v any
	switch t.Kind() {
	case reflect.String:
		v = val.String()
	case reflect.Int:
		v = int(val.Integer())
	case reflect.Int64:
		v = val.Integer()
	case reflect.Float64:
		v = val.Number()
	case reflect.Bool:
		v = val.Boolean()
	default:
		return reflect.Zero(t)
	}
	return reflect.ValueOf(v).Convert(t)
}

func toJS(iso *v8.Isolate, rv reflect.Value) *v8.Value {
	var v *v8.Value
	switch rv.Kind() {
	case reflect.String:
		v, _ = v8.NewValue(iso, rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, _ = v8.NewValue(iso, float64(rv.Int()))
	case reflect.Float32, reflect.Float64:
		v, _ = v8.NewValue(iso, rv.Float())
	case reflect.Bool:
		v, _ = v8.NewValue(iso, rv.Bool())
	}
	return v
}
