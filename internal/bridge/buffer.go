package bridge

import (
	"fmt"
	"strconv"

	"github.com/cryguy/qjs/internal/core"
)

// NewArrayBuffer copies b into a new ArrayBuffer.
func (c *Context) NewArrayBuffer(b []byte) (*Value, error) {
	if b == nil {
		b = []byte{}
	}
	e, err := c.bufferExpr(b)
	if err != nil {
		return nil, err
	}
	return c.newValue(e)
}

// NewSharedArrayBuffer copies b into a new SharedArrayBuffer.
func (c *Context) NewSharedArrayBuffer(b []byte) (*Value, error) {
	if b == nil {
		b = []byte{}
	}
	e, err := c.bufferExpr(b)
	if err != nil {
		return nil, err
	}
	return c.newValue("__qjs.sab(" + e + ")")
}

// Bytes copies the contents of an ArrayBuffer, SharedArrayBuffer or
// ArrayBuffer view. Arrays of numbers in 0..255 are accepted too.
func (v *Value) Bytes() ([]byte, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	if v.kind == KindArray {
		var ints []int
		if _, err := v.Decode(&ints); err != nil {
			return nil, err
		}
		out := make([]byte, len(ints))
		for i, n := range ints {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("%w: element %d (%d) is not a byte", core.ErrConversion, i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	}
	name := v.c.tempName()
	res, err := v.c.eval("__qjs.buf(" + ref + ", " + core.Quote(name) + ")")
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(res)
	if err != nil {
		return nil, fmt.Errorf("bridge: malformed length %q", res)
	}
	if n == 0 {
		return []byte{}, nil
	}
	return v.c.bt.ReadBinaryFromJS(name)
}
