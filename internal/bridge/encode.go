package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cryguy/qjs/internal/core"
)

type undefined struct{}

// Undefined converts to the JavaScript undefined value. A Go nil converts
// to null.
var Undefined any = undefined{}

// udToken is a userdata id returned by class constructors.
type udToken int

// expr returns a JS expression producing the JS form of x. Binary data is
// staged in a temporary global that the expression consumes.
func (c *Context) expr(x any) (string, error) {
	switch v := x.(type) {
	case nil:
		return "null", nil
	case undefined:
		return "undefined", nil
	case *Value:
		if v != nil && v.c != c {
			return "", fmt.Errorf("%w: value belongs to another runtime", core.ErrConversion)
		}
		return v.ref()
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		return core.Quote(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v)), nil
	case float64:
		return formatFloat(v), nil
	case *big.Int:
		if v == nil {
			return "null", nil
		}
		return "BigInt(" + core.Quote(v.String()) + ")", nil
	case []byte:
		if v == nil {
			return "null", nil
		}
		return c.bufferExpr(v)
	case time.Time:
		return "new Date(" + strconv.FormatInt(v.UnixMilli(), 10) + ")", nil
	case json.RawMessage:
		if len(v) == 0 {
			return "undefined", nil
		}
		return "JSON.parse(" + core.Quote(string(v)) + ")", nil
	case udToken:
		return strconv.Itoa(int(v)), nil
	case HostFunc:
		return c.funcExpr("", v, 0), nil
	case func(this *Value, args []*Value) (any, error):
		return c.funcExpr("", v, 0), nil
	case error:
		return c.errorExpr(v), nil
	}
	return c.reflectExpr(reflect.ValueOf(x))
}

func (c *Context) reflectExpr(rv reflect.Value) (string, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float()), nil
	case reflect.String:
		return core.Quote(rv.String()), nil
	case reflect.Func:
		if rv.IsNil() {
			return "null", nil
		}
		fn, length, err := adapt(c, rv)
		if err != nil {
			return "", err
		}
		return c.funcExpr("", fn, length), nil
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return "null", nil
		}
	case reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return "", fmt.Errorf("%w: cannot convert %s to JavaScript", core.ErrConversion, rv.Type())
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "", fmt.Errorf("%w: marshaling %s: %v", core.ErrConversion, rv.Type(), err)
	}
	return "JSON.parse(" + core.Quote(string(data)) + ")", nil
}

// formatFloat renders f as a JS numeric expression.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0 && math.Signbit(f):
		return "-0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (c *Context) bufferExpr(b []byte) (string, error) {
	name := c.tempName()
	if err := c.bt.WriteBinaryToJS(name, b); err != nil {
		return "", fmt.Errorf("staging %d bytes: %w", len(b), err)
	}
	return "__qjs.pop(" + core.Quote(name) + ")", nil
}

// errorExpr builds an Error of the matching class. Non-Error throws keep
// their message as a thrown string.
func (c *Context) errorExpr(err error) string {
	var jsErr *core.JSError
	if errors.As(err, &jsErr) {
		if jsErr.Kind == core.KindThrow {
			return "new Error(" + core.Quote(jsErr.Message) + ")"
		}
		return "__qjs.mkerr(" + core.Quote(jsErr.Name) + ", " + core.Quote(jsErr.Message) + ", " + core.Quote(jsErr.Stack) + ")"
	}
	return "new Error(" + core.Quote(err.Error()) + ")"
}

// exprList encodes args as a JS array literal.
func (c *Context) exprList(args []any) (string, error) {
	s := c.mark()
	parts := make([]string, len(args))
	for i, a := range args {
		e, err := c.expr(a)
		if err != nil {
			c.rollback(s)
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		parts[i] = e
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// NewValue converts a Go value to a JS value.
//
// nil becomes null and Undefined becomes undefined. Booleans, integers and
// floats become numbers, *big.Int becomes a BigInt, []byte an ArrayBuffer,
// time.Time a Date and an error an Error. Go functions become callable JS
// functions. Other values go through encoding/json.
func (c *Context) NewValue(x any) (*Value, error) {
	e, err := c.expr(x)
	if err != nil {
		return nil, err
	}
	return c.newValue(e)
}

// NewObject creates an empty plain object.
func (c *Context) NewObject() (*Value, error) { return c.newValue("{}") }

// NewArray creates an array holding the converted items.
func (c *Context) NewArray(items ...any) (*Value, error) {
	list, err := c.exprList(items)
	if err != nil {
		return nil, err
	}
	return c.newValue(list)
}

// NewError creates an Error of the named class.
func (c *Context) NewError(name, message string) (*Value, error) {
	return c.newValue("__qjs.mkerr(" + core.Quote(name) + ", " + core.Quote(message) + ", '')")
}

// Global returns globalThis.
func (c *Context) Global() (*Value, error) { return c.newValue("globalThis") }

// ParseJSON parses text with JSON.parse. Malformed input is a SyntaxError.
func (c *Context) ParseJSON(text string) (*Value, error) {
	return c.newValue("JSON.parse(" + core.Quote(text) + ")")
}
