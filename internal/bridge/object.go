package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cryguy/qjs/internal/core"
)

// PropFlags are the attributes of a defined property.
type PropFlags struct {
	Configurable bool
	Writable     bool
	Enumerable   bool
}

// PropCWE is configurable, writable and enumerable, the attributes of a
// plain assignment.
var PropCWE = PropFlags{Configurable: true, Writable: true, Enumerable: true}

// Get reads property key of v.
func (v *Value) Get(key string) (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	return v.c.evalValue(ref + "[" + core.Quote(key) + "]")
}

// GetIndex reads element i of v.
func (v *Value) GetIndex(i int) (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	return v.c.evalValue(ref + "[" + strconv.Itoa(i) + "]")
}

// Set assigns v[key] = x with strict-mode semantics: writing to a frozen
// or non-extensible object is a TypeError.
func (v *Value) Set(key string, x any) error {
	return v.set(core.Quote(key), x)
}

// SetIndex assigns v[i] = x.
func (v *Value) SetIndex(i int, x any) error {
	return v.set(strconv.Itoa(i), x)
}

func (v *Value) set(key string, x any) error {
	ref, err := v.ref()
	if err != nil {
		return err
	}
	st := v.c.mark()
	e, err := v.c.expr(x)
	if err != nil {
		v.c.rollback(st)
		return err
	}
	return v.c.guarded(func() error {
		_, err := v.c.call("__qjs.set(" + ref + ", " + key + ", " + e + ")")
		return err
	})
}

// Has reports whether key is in v, including inherited properties.
func (v *Value) Has(key string) (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.eval("__qjs.has(" + ref + ", " + core.Quote(key) + ")")
	return res == "1", err
}

// Delete removes key from v. It reports false when the property is not
// configurable.
func (v *Value) Delete(key string) (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.eval("__qjs.del1(" + ref + ", " + core.Quote(key) + ")")
	return res == "1", err
}

// Define creates or redefines an own data property.
func (v *Value) Define(key string, x any, flags PropFlags) error {
	ref, err := v.ref()
	if err != nil {
		return err
	}
	st := v.c.mark()
	e, err := v.c.expr(x)
	if err != nil {
		v.c.rollback(st)
		return err
	}
	_, err = v.c.eval(fmt.Sprintf("__qjs.define(%s, %s, %s, %t, %t, %t)",
		ref, core.Quote(key), e, flags.Configurable, flags.Writable, flags.Enumerable))
	return err
}

// DefineAccessor creates an accessor property. Either function may be nil.
func (v *Value) DefineAccessor(key string, getter, setter HostFunc, flags PropFlags) error {
	ref, err := v.ref()
	if err != nil {
		return err
	}
	g, s := "undefined", "undefined"
	if getter != nil {
		g = v.c.funcExpr("get "+key, getter, 0)
	}
	if setter != nil {
		s = v.c.funcExpr("set "+key, setter, 1)
	}
	_, err = v.c.eval(fmt.Sprintf("__qjs.accessor(%s, %s, %s, %s, %t, %t)",
		ref, core.Quote(key), g, s, flags.Configurable, flags.Enumerable))
	return err
}

// Keys returns the own enumerable string keys of v.
func (v *Value) Keys() ([]string, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	res, err := v.c.eval("__qjs.keys(" + ref + ")")
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(res), &keys); err != nil {
		return nil, fmt.Errorf("bridge: decoding keys: %w", err)
	}
	return keys, nil
}

// Len returns v.length as an unsigned 32-bit integer.
func (v *Value) Len() (int, error) {
	ref, err := v.ref()
	if err != nil {
		return 0, err
	}
	res, err := v.c.eval("__qjs.len(" + ref + ")")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(res)
}

// IsExtensible reports whether new properties can be added to v.
func (v *Value) IsExtensible() (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.eval("__qjs.ext(" + ref + ")")
	return res == "1", err
}

// PreventExtensions makes v non-extensible.
func (v *Value) PreventExtensions() error {
	ref, err := v.ref()
	if err != nil {
		return err
	}
	_, err = v.c.eval("__qjs.freeze(" + ref + ")")
	return err
}
