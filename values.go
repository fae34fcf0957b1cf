package qjs

import (
	"context"
	"reflect"
)

// Global returns globalThis.
func (r *Runtime) Global() (*Value, error) { return r.bctx.Global() }

// NewValue converts a Go value to JavaScript; see the package
// documentation for the mapping.
func (r *Runtime) NewValue(x any) (*Value, error) { return r.bctx.NewValue(x) }

// NewObject creates an empty object.
func (r *Runtime) NewObject() (*Value, error) { return r.bctx.NewObject() }

// NewArray creates an array of the converted items.
func (r *Runtime) NewArray(items ...any) (*Value, error) { return r.bctx.NewArray(items...) }

// NewError creates an Error of the named class, such as "TypeError".
func (r *Runtime) NewError(name, message string) (*Value, error) {
	return r.bctx.NewError(name, message)
}

// NewFunction wraps fn as a JavaScript function. fn is either a HostFunc
// or any Go function, whose arguments are decoded from the JS arguments
// and whose results are (), (T), (error) or (T, error).
func (r *Runtime) NewFunction(name string, fn any) (*Value, error) {
	switch f := fn.(type) {
	case HostFunc:
		return r.bctx.NewFunction(name, f)
	case func(this *Value, args []*Value) (any, error):
		return r.bctx.NewFunction(name, f)
	}
	return r.bctx.NewGoFunction(name, fn)
}

// SetGlobal assigns globalThis[name]. Go functions become JS functions
// named name.
func (r *Runtime) SetGlobal(name string, x any) error {
	if x != nil && reflect.TypeOf(x).Kind() == reflect.Func {
		fn, err := r.NewFunction(name, x)
		if err != nil {
			return err
		}
		defer fn.Free()
		x = fn
	}
	global, err := r.Global()
	if err != nil {
		return err
	}
	defer global.Free()
	return global.Set(name, x)
}

// GetGlobal reads globalThis[name].
func (r *Runtime) GetGlobal(name string) (*Value, error) {
	global, err := r.Global()
	if err != nil {
		return nil, err
	}
	defer global.Free()
	return global.Get(name)
}

// NewUserdata wraps a Go value in an opaque JS object; Value.Userdata
// returns it.
func (r *Runtime) NewUserdata(x any) (*Value, error) { return r.bctx.NewUserdata(x) }

// DefineClass creates a JS class whose instances carry Go values.
func (r *Runtime) DefineClass(def ClassDef) (*Value, error) { return r.bctx.DefineClass(def) }

// NewArrayBuffer copies b into a new ArrayBuffer.
func (r *Runtime) NewArrayBuffer(b []byte) (*Value, error) { return r.bctx.NewArrayBuffer(b) }

// NewSharedArrayBuffer copies b into a new SharedArrayBuffer.
func (r *Runtime) NewSharedArrayBuffer(b []byte) (*Value, error) {
	return r.bctx.NewSharedArrayBuffer(b)
}

// HandleCount reports how many JS values are referenced from Go.
func (r *Runtime) HandleCount() (int, error) { return r.bctx.HandleCount() }

// IsJobPending reports whether microtasks are queued.
func (r *Runtime) IsJobPending() bool { return r.bctx.IsJobPending() }

// ExecutePendingJobs runs queued microtasks. A job that throws stops the
// run and its exception is returned.
func (r *Runtime) ExecutePendingJobs() (int, error) { return r.bctx.ExecutePendingJobs() }

// EnqueueJob schedules fn(args...) as a microtask.
func (r *Runtime) EnqueueJob(fn *Value, args ...any) error { return r.bctx.EnqueueJob(fn, args...) }

// Await waits for p to settle, running jobs and timers meanwhile.
func (r *Runtime) Await(ctx context.Context, p *Value) (*Value, error) {
	var out *Value
	err := r.withContext(ctx, func() error {
		var err error
		out, err = r.bctx.Await(ctx, p)
		return err
	})
	return out, err
}

// RunLoop runs jobs and timers until nothing is pending or ctx is done.
func (r *Runtime) RunLoop(ctx context.Context) error {
	return r.withContext(ctx, func() error { return r.bctx.RunLoop(ctx) })
}
