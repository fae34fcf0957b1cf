package qjs

import (
	"runtime/debug"
	"sync"

	"github.com/cryguy/qjs/internal/core"
)

// Version is the version of this package.
const Version = "0.1.0"

var engineVersion = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == engineModule {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
})

// LongVersion returns Version followed by the engine module and its
// version, such as "0.1.0 (modernc.org/quickjs v0.17.1)".
func LongVersion() string {
	return Version + " (" + engineModule + " " + engineVersion() + ")"
}

// MemoryUsage reports the engine's heap statistics. Counters the engine
// does not track are zero.
func (r *Runtime) MemoryUsage() (MemoryUsage, error) {
	mr, ok := r.eng.(core.MemoryReporter)
	if !ok {
		return MemoryUsage{}, ErrUnsupported
	}
	if r.closed.Load() {
		return MemoryUsage{}, ErrClosed
	}
	return mr.MemoryUsage(), nil
}

// RunGC forces a garbage collection where the engine allows it.
func (r *Runtime) RunGC() {
	if mr, ok := r.eng.(core.MemoryReporter); ok && !r.closed.Load() {
		mr.RunGC()
	}
}
