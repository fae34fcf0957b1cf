//go:build !v8

package quickjs

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/cryguy/qjs/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// QuickJS constants from quickjs.h.
const (
	evalTypeGlobal      = 0 << 0 // JS_EVAL_TYPE_GLOBAL
	evalFlagStrict      = 1 << 3 // JS_EVAL_FLAG_STRICT
	evalFlagCompileOnly = 1 << 5 // JS_EVAL_FLAG_COMPILE_ONLY

	writeObjBytecode = 1 << 0 // JS_WRITE_OBJ_BYTECODE
	readObjBytecode  = 1 << 0 // JS_READ_OBJ_BYTECODE

	tagException = 6 // JS_TAG_EXCEPTION
)

// extractInternals caches the VM's JSContext, JSRuntime and TLS for direct
// C API access. The wrapper never calls JS_ExecutePendingJob and does not
// expose eval filenames, so both go through libquickjs directly.
//
// VM struct layout (modernc.org/quickjs@v0.17.1):
//
//	type VM struct {
//	    cContext uintptr
//	    ...
//	    runtime  *runtime
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func (r *Runtime) extractInternals() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	vmVal := reflect.ValueOf(r.vm).Elem()

	ctxField := vmVal.FieldByName("cContext")
	if !ctxField.IsValid() || ctxField.Kind() != reflect.Uintptr {
		return fmt.Errorf("quickjs.VM missing 'cContext' field")
	}
	r.ctx = uintptr(ctxField.Uint())
	if r.ctx == 0 {
		return fmt.Errorf("JSContext is nil")
	}

	rtField := vmVal.FieldByName("runtime")
	if !rtField.IsValid() || rtField.Kind() != reflect.Pointer || rtField.IsNil() {
		return fmt.Errorf("quickjs.VM missing 'runtime' field")
	}
	rtVal := reflect.NewAt(rtField.Type().Elem(), unsafe.Pointer(rtField.Pointer())).Elem()

	cRuntimeField := rtVal.FieldByName("cRuntime")
	if !cRuntimeField.IsValid() || cRuntimeField.Kind() != reflect.Uintptr {
		return fmt.Errorf("runtime missing 'cRuntime' field")
	}
	r.rt = uintptr(cRuntimeField.Uint())

	tlsField := rtVal.FieldByName("tls")
	if !tlsField.IsValid() || tlsField.Kind() != reflect.Pointer || tlsField.IsNil() {
		return fmt.Errorf("runtime missing 'tls' field")
	}
	r.tls = (*libc.TLS)(unsafe.Pointer(tlsField.Pointer()))

	// Smoke-test: a trivial C API call to verify the pointers are valid.
	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	lib.XFreeValue(r.tls, r.ctx, glob)
	return nil
}

// EvalScript evaluates caller source with its filename and strictness and
// stores the completion value in globalThis[slot].
func (r *Runtime) EvalScript(src string, opts core.EvalOptions, slot string) error {
	if r.useFallback {
		return r.evalScriptFallback(src, opts, slot)
	}
	flags := int32(evalTypeGlobal)
	if opts.Strict {
		flags |= evalFlagStrict
	}
	v, err := r.evalC(src, opts.Filename, flags)
	if err != nil {
		return err
	}
	return r.storeGlobal(slot, v)
}

// evalC runs JS_Eval. On exception the thrown value is moved to the
// exception slot and ErrThrown is returned.
func (r *Runtime) evalC(src, filename string, flags int32) (lib.TJSValue, error) {
	var zero lib.TJSValue
	cSrc, err := libc.CString(src)
	if err != nil {
		return zero, fmt.Errorf("allocating source: %w", err)
	}
	defer libc.Xfree(r.tls, cSrc)

	cFile, err := libc.CString(filename)
	if err != nil {
		return zero, fmt.Errorf("allocating filename: %w", err)
	}
	defer libc.Xfree(r.tls, cFile)

	v := lib.XJS_Eval(r.tls, r.ctx, cSrc, lib.Tsize_t(len(src)), cFile, flags)
	if v.Ftag == tagException {
		return zero, r.stashException()
	}
	return v, nil
}

// stashException moves the pending exception into globalThis.__qjs_exc.
func (r *Runtime) stashException() error {
	exc := lib.XJS_GetException(r.tls, r.ctx)
	if err := r.storeGlobal(core.ExceptionSlot, exc); err != nil {
		return err
	}
	return core.ErrThrown
}

// storeGlobal sets globalThis[name] = v and consumes v.
func (r *Runtime) storeGlobal(name string, v lib.TJSValue) error {
	cName, err := libc.CString(name)
	if err != nil {
		lib.XFreeValue(r.tls, r.ctx, v)
		return fmt.Errorf("allocating property name: %w", err)
	}
	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	// JS_SetPropertyStr consumes the val reference.
	ret := lib.XJS_SetPropertyStr(r.tls, r.ctx, glob, cName, v)
	lib.XFreeValue(r.tls, r.ctx, glob)
	libc.Xfree(r.tls, cName)
	if ret < 0 {
		return fmt.Errorf("setting global %q", name)
	}
	return nil
}

// RunMicrotasks runs pending jobs (Promise reactions) until the queue is
// empty or a job throws.
func (r *Runtime) RunMicrotasks() (int, error) {
	if r.useFallback {
		return 0, nil
	}
	pctx := r.tls.Alloc(int(unsafe.Sizeof(uintptr(0))))
	defer r.tls.Free(int(unsafe.Sizeof(uintptr(0))))

	count := 0
	for {
		ret := lib.XJS_ExecutePendingJob(r.tls, r.rt, pctx)
		if ret == 0 {
			return count, nil
		}
		if ret < 0 {
			return count, r.stashException()
		}
		count++
	}
}

// IsJobPending reports whether jobs are queued.
func (r *Runtime) IsJobPending() bool {
	if r.useFallback {
		return false
	}
	return lib.XJS_IsJobPending(r.tls, r.rt) != 0
}

// evalScriptFallback evaluates through the high-level API. The thrown
// value is not reachable there, so it is rebuilt from the error text.
func (r *Runtime) evalScriptFallback(src string, opts core.EvalOptions, slot string) error {
	if opts.Strict {
		src = "\"use strict\";\n" + src
	}
	v, err := r.vm.EvalValue(src, quickjs.EvalGlobal)
	if err != nil {
		if stashErr := r.Eval(core.StashExceptionJS(core.ErrorFromText(err.Error(), ""))); stashErr != nil {
			return err
		}
		return core.ErrThrown
	}
	defer v.Free()
	return r.SetGlobal(slot, v)
}

func (r *Runtime) cString(s string) (uintptr, error) {
	p, err := libc.CString(s)
	if err != nil {
		return 0, fmt.Errorf("allocating C string: %w", err)
	}
	return p, nil
}

func (r *Runtime) freeCString(p uintptr) {
	libc.Xfree(r.tls, p)
}
