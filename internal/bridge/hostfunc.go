package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cryguy/qjs/internal/core"
	"go.uber.org/zap"
)

// HostFunc is a Go function callable from JavaScript. this and args are
// only valid during the call; Dup them to keep them. The result is
// converted like NewValue, with nil becoming undefined. A returned
// *core.JSError is thrown as an error of its class; other errors are
// thrown as Error.
type HostFunc func(this *Value, args []*Value) (any, error)

// NewFunction wraps fn as a JS function with the given name.
func (c *Context) NewFunction(name string, fn HostFunc) (*Value, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil function", core.ErrConversion)
	}
	return c.newValue(c.funcExpr(name, fn, 0))
}

// NewGoFunction wraps an arbitrary Go function. Arguments are decoded into
// the parameter types and results are (), (T), (error) or (T, error).
func (c *Context) NewGoFunction(name string, fn any) (*Value, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", core.ErrConversion, fn)
	}
	hf, length, err := adapt(c, rv)
	if err != nil {
		return nil, err
	}
	return c.newValue(c.funcExpr(name, hf, length))
}

func (c *Context) funcExpr(name string, fn HostFunc, length int) string {
	c.nextFn++
	fid := c.nextFn
	c.funcs[fid] = fn
	return "__qjs.fn(" + strconv.Itoa(fid) + ", " + core.Quote(name) + ", " + strconv.Itoa(length) + ")"
}

// thrown is the error envelope handed back to the JS trampoline.
type thrown struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Throw   bool   `json:"throw,omitempty"`
}

// invoke is the single entry point JS uses to reach host functions. ids
// holds the handle of this followed by one handle per argument.
func (c *Context) invoke(fid int, ids string) (res string) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("host function panicked", zap.Int("fid", fid), zap.Any("panic", p))
			res = envelope(core.NewJSError("InternalError", fmt.Sprint(p)))
		}
	}()
	fn, ok := c.funcs[fid]
	if !ok {
		return envelope(core.NewJSError("ReferenceError", "host function "+strconv.Itoa(fid)+" was released"))
	}

	var handles []*Value
	for _, s := range strings.Split(ids, ",") {
		id, err := strconv.Atoi(s)
		if err != nil {
			return envelope(core.NewJSError("InternalError", "malformed argument handle "+strconv.Quote(s)))
		}
		handles = append(handles, c.borrow(id, KindObject))
	}
	if err := c.kinds(handles); err != nil {
		return envelope(err)
	}

	out, err := fn(handles[0], handles[1:])
	if err != nil {
		return envelope(err)
	}
	if out == nil {
		return "="
	}
	e, err := c.expr(out)
	if err != nil {
		return envelope(err)
	}
	r, err := c.call("__qjs.put(" + e + ")")
	if err != nil {
		return envelope(err)
	}
	return "=" + r
}

// kinds fills in the kinds of borrowed handles with one round trip.
func (c *Context) kinds(vs []*Value) error {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v.id)
	}
	res, err := c.call("[" + strings.Join(parts, ",") + "].map(function(id) { return __qjs.kind(__qjs.get(id)); }).join(',')")
	if err != nil {
		return err
	}
	for i, k := range strings.Split(res, ",") {
		if i < len(vs) {
			vs[i].kind = parseKind(k)
		}
	}
	return nil
}

func envelope(err error) string {
	var t thrown
	var jsErr *core.JSError
	if errors.As(err, &jsErr) {
		t = thrown{Name: jsErr.Name, Message: jsErr.Message, Stack: jsErr.Stack, Throw: jsErr.Kind == core.KindThrow}
	} else {
		t = thrown{Name: "Error", Message: err.Error()}
	}
	data, _ := json.Marshal(t)
	return "!" + string(data)
}

var errorType = reflect.TypeFor[error]()

// adapt turns a reflected Go function into a HostFunc. Parameters are
// filled from the JS arguments in order; missing arguments decode as zero
// values.
func adapt(c *Context, fn reflect.Value) (HostFunc, int, error) {
	ft := fn.Type()
	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, 0, fmt.Errorf("%w: second result of %s must be error", core.ErrConversion, ft)
		}
	default:
		return nil, 0, fmt.Errorf("%w: %s returns too many values", core.ErrConversion, ft)
	}
	nIn := ft.NumIn()
	length := nIn
	if ft.IsVariadic() {
		length--
	}

	hf := func(_ *Value, args []*Value) (any, error) {
		in := make([]reflect.Value, 0, max(nIn, len(args)))
		for i := 0; i < nIn; i++ {
			if ft.IsVariadic() && i == nIn-1 {
				elem := ft.In(i).Elem()
				for j := i; j < len(args); j++ {
					arg, err := decodeArg(args[j], elem, j)
					if err != nil {
						return nil, err
					}
					in = append(in, arg)
				}
				break
			}
			if i >= len(args) {
				in = append(in, reflect.Zero(ft.In(i)))
				continue
			}
			arg, err := decodeArg(args[i], ft.In(i), i)
			if err != nil {
				return nil, err
			}
			in = append(in, arg)
		}
		out := fn.Call(in)
		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			if ft.Out(0) == errorType {
				if err, _ := out[0].Interface().(error); err != nil {
					return nil, err
				}
				return nil, nil
			}
			return out[0].Interface(), nil
		default:
			if err, _ := out[1].Interface().(error); err != nil {
				return nil, err
			}
			return out[0].Interface(), nil
		}
	}
	return hf, length, nil
}

func decodeArg(v *Value, t reflect.Type, i int) (reflect.Value, error) {
	ptr := reflect.New(t)
	if _, err := v.Decode(ptr.Interface()); err != nil {
		return reflect.Value{}, core.NewJSError("TypeError", "argument "+strconv.Itoa(i)+": "+err.Error())
	}
	return ptr.Elem(), nil
}
