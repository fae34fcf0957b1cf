package bridge

import (
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/cryguy/qjs/internal/core"
)

// Kind is the JavaScript type of a value as seen by the bridge.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindBigInt
	KindString
	KindSymbol
	KindObject
	KindArray
	KindFunction
	KindError
	KindDate
	KindPromise
	KindArrayBuffer
	KindTypedArray
)

var kindByName = map[string]Kind{
	"undefined":   KindUndefined,
	"null":        KindNull,
	"boolean":     KindBoolean,
	"number":      KindNumber,
	"bigint":      KindBigInt,
	"string":      KindString,
	"symbol":      KindSymbol,
	"object":      KindObject,
	"array":       KindArray,
	"function":    KindFunction,
	"error":       KindError,
	"date":        KindDate,
	"promise":     KindPromise,
	"arraybuffer": KindArrayBuffer,
	"typedarray":  KindTypedArray,
}

func parseKind(s string) Kind {
	if k, ok := kindByName[s]; ok {
		return k
	}
	return KindObject
}

func (k Kind) String() string {
	for name, v := range kindByName {
		if v == k {
			return name
		}
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value references a JavaScript value held by a Context. A Value keeps its
// JS value alive until Free is called or the Value is garbage collected.
type Value struct {
	c        *Context
	id       int
	gen      uint64
	kind     Kind
	borrowed bool // owned by an in-flight host call
	freed    atomic.Bool
}

func (c *Context) track(id int, k Kind) *Value {
	v := &Value{c: c, id: id, gen: c.gen.Load(), kind: k}
	runtime.SetFinalizer(v, func(v *Value) { v.c.enqueueRelease(v.id) })
	return v
}

func (c *Context) borrow(id int, k Kind) *Value {
	return &Value{c: c, id: id, gen: c.gen.Load(), kind: k, borrowed: true}
}

// ref returns the JS expression that yields v inside the engine.
func (v *Value) ref() (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil value", core.ErrConversion)
	}
	if v.freed.Load() {
		return "", fmt.Errorf("qjs: value used after Free")
	}
	if v.c.closed.Load() || v.gen != v.c.gen.Load() {
		return "", core.ErrClosed
	}
	return "__qjs.get(" + strconv.Itoa(v.id) + ")", nil
}

// Context returns the context that owns v.
func (v *Value) Context() *Context { return v.c }

// Kind reports the JavaScript type of v.
func (v *Value) Kind() Kind { return v.kind }

func (v *Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v *Value) IsNull() bool      { return v.kind == KindNull }
func (v *Value) IsFunction() bool  { return v.kind == KindFunction }
func (v *Value) IsError() bool     { return v.kind == KindError }
func (v *Value) IsPromise() bool   { return v.kind == KindPromise }

// IsNullish reports whether v is undefined or null.
func (v *Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// IsObject reports whether v is any kind of object, functions included.
func (v *Value) IsObject() bool { return v.kind >= KindObject }

// Free releases the JS value. It is safe to call more than once and from
// any goroutine; the release is applied on the next bridge call.
func (v *Value) Free() {
	if v == nil || v.freed.Swap(true) {
		return
	}
	if v.borrowed {
		return
	}
	runtime.SetFinalizer(v, nil)
	if v.gen == v.c.gen.Load() {
		v.c.enqueueRelease(v.id)
	}
}

// Dup returns an independent handle to the same JS value.
func (v *Value) Dup() (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	return v.c.newValue(ref)
}

// ToString converts v with JavaScript String().
func (v *Value) ToString() (string, error) {
	ref, err := v.ref()
	if err != nil {
		return "", err
	}
	if v.kind == KindSymbol {
		return "", fmt.Errorf("%w: symbol to string", core.ErrConversion)
	}
	return v.c.eval("__qjs.str(" + ref + ")")
}

// String implements fmt.Stringer for debugging.
func (v *Value) String() string {
	s, err := v.ToString()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return s
}
