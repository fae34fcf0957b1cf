package bridge

import (
	"errors"

	"github.com/cryguy/qjs/internal/core"
)

// EvalScript runs src as a global script and returns its completion value.
func (c *Context) EvalScript(src string, opts core.EvalOptions) (*Value, error) {
	return c.runScript(func() error { return c.rt.EvalScript(src, opts, resultSlot) })
}

// Compile compiles src to bytecode without running it.
func (c *Context) Compile(src string, opts core.EvalOptions) ([]byte, error) {
	comp, ok := c.rt.(core.Compiler)
	if !ok {
		return nil, core.ErrUnsupported
	}
	if c.closed.Load() {
		return nil, core.ErrClosed
	}
	code, err := comp.Compile(src, opts)
	if errors.Is(err, core.ErrThrown) {
		return nil, core.TakeException(c.rt)
	}
	return code, err
}

// EvalBytecode runs code produced by Compile, possibly in another runtime
// of the same engine build.
func (c *Context) EvalBytecode(code []byte) (*Value, error) {
	comp, ok := c.rt.(core.Compiler)
	if !ok {
		return nil, core.ErrUnsupported
	}
	return c.runScript(func() error { return comp.EvalBytecode(code, resultSlot) })
}

func (c *Context) runScript(run func() error) (*Value, error) {
	if c.closed.Load() {
		return nil, core.ErrClosed
	}
	c.flush()
	var out *Value
	err := c.guarded(func() error {
		err := run()
		if errors.Is(err, core.ErrThrown) {
			return core.TakeException(c.rt)
		}
		if err != nil {
			return err
		}
		out, err = c.newValue("__qjs.pop(" + core.Quote(resultSlot) + ")")
		return err
	})
	return out, err
}
