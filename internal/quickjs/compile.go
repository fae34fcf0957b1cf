//go:build !v8

package quickjs

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/cryguy/qjs/internal/core"
	lib "modernc.org/libquickjs"
)

// Compile compiles src to a function object without running it and
// serialises it with JS_WriteObject. A syntax error returns ErrThrown.
func (r *Runtime) Compile(src string, opts core.EvalOptions) ([]byte, error) {
	if r.useFallback {
		return nil, core.ErrUnsupported
	}
	flags := int32(evalTypeGlobal | evalFlagCompileOnly)
	if opts.Strict {
		flags |= evalFlagStrict
	}
	obj, err := r.evalC(src, opts.Filename, flags)
	if err != nil {
		return nil, err
	}
	defer lib.XFreeValue(r.tls, r.ctx, obj)

	psize := r.tls.Alloc(int(unsafe.Sizeof(lib.Tsize_t(0))))
	defer r.tls.Free(int(unsafe.Sizeof(lib.Tsize_t(0))))

	buf := lib.XJS_WriteObject(r.tls, r.ctx, psize, obj, writeObjBytecode)
	if buf == 0 {
		return nil, r.stashException()
	}
	defer lib.Xjs_free(r.tls, r.ctx, buf)

	size := *(*lib.Tsize_t)(unsafe.Pointer(psize))
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(buf)), size))
	return out, nil
}

// EvalBytecode reads bytecode written by Compile, runs it and stores the
// completion value in globalThis[slot].
func (r *Runtime) EvalBytecode(code []byte, slot string) error {
	if r.useFallback {
		return core.ErrUnsupported
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: empty", core.ErrBadBytecode)
	}
	obj := lib.XJS_ReadObject(r.tls, r.ctx, uintptr(unsafe.Pointer(&code[0])), lib.Tsize_t(len(code)), readObjBytecode)
	if obj.Ftag == tagException {
		if err := r.stashException(); !errors.Is(err, core.ErrThrown) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrBadBytecode, core.TakeException(r))
	}
	// JS_EvalFunction consumes obj.
	v := lib.XJS_EvalFunction(r.tls, r.ctx, obj)
	if v.Ftag == tagException {
		return r.stashException()
	}
	return r.storeGlobal(slot, v)
}
