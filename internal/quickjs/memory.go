//go:build !v8

package quickjs

import (
	"unsafe"

	"github.com/cryguy/qjs/internal/core"
	lib "modernc.org/libquickjs"
)

// MemoryUsage reports JS_ComputeMemoryUsage counters.
func (r *Runtime) MemoryUsage() core.MemoryUsage {
	if r.useFallback {
		return core.MemoryUsage{}
	}
	n := int(unsafe.Sizeof(lib.TJSMemoryUsage{}))
	p := r.tls.Alloc(n)
	defer r.tls.Free(n)

	lib.XJS_ComputeMemoryUsage(r.tls, r.rt, p)
	s := (*lib.TJSMemoryUsage)(unsafe.Pointer(p))
	return core.MemoryUsage{
		MallocSize:    int64(s.Fmalloc_size),
		MallocLimit:   int64(s.Fmalloc_limit),
		MallocCount:   int64(s.Fmalloc_count),
		MemoryUsed:    int64(s.Fmemory_used_size),
		AtomCount:     int64(s.Fatom_count),
		StringCount:   int64(s.Fstr_count),
		ObjectCount:   int64(s.Fobj_count),
		PropertyCount: int64(s.Fprop_count),
		FunctionCount: int64(s.Fjs_func_count + s.Fc_func_count),
		ArrayCount:    int64(s.Farray_count),
	}
}

// RunGC forces a full collection cycle.
func (r *Runtime) RunGC() {
	if r.useFallback {
		return
	}
	lib.XJS_RunGC(r.tls, r.rt)
}
