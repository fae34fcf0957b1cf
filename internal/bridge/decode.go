package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cryguy/qjs/internal/core"
)

// maxDepth bounds the walk over nested arrays and objects.
const maxDepth = 64

var (
	valueType   = reflect.TypeFor[*Value]()
	bigIntType  = reflect.TypeFor[*big.Int]()
	timeType    = reflect.TypeFor[time.Time]()
	rawJSONType = reflect.TypeFor[json.RawMessage]()
	bytesType   = reflect.TypeFor[[]byte]()
	jsErrorType = reflect.TypeFor[*core.JSError]()
)

// Decode converts v into the Go value target points to. It reports false,
// leaving the target untouched, when v is undefined or null.
//
// Booleans decode by JS truthiness. Integers truncate toward zero, NaN
// becomes 0, and a value outside the target's range is an error. Strings
// use JS String(). []byte accepts ArrayBuffers, views and arrays of
// bytes. Targets of type any receive the natural Go form: float64,
// string, bool, *big.Int, time.Time, []byte, *core.JSError, []any and
// map[string]any, with functions, symbols, promises and class instances
// left as *Value. Other structured targets go through encoding/json.
func (v *Value) Decode(target any) (bool, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, fmt.Errorf("%w: decode target must be a non-nil pointer, got %T", core.ErrConversion, target)
	}
	var ok bool
	err := v.c.guarded(func() error {
		var err error
		ok, err = v.decode(rv.Elem(), 0)
		return err
	})
	return ok, err
}

// As decodes v into a T.
func As[T any](v *Value) (T, bool, error) {
	var out T
	ok, err := v.Decode(&out)
	return out, ok, err
}

func (v *Value) decode(dst reflect.Value, depth int) (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	if dst.Type() == valueType {
		d, err := v.Dup()
		if err != nil {
			return false, err
		}
		dst.Set(reflect.ValueOf(d))
		return true, nil
	}
	if v.IsNullish() {
		return false, nil
	}
	if depth > maxDepth {
		return false, fmt.Errorf("%w: value nested deeper than %d levels", core.ErrConversion, maxDepth)
	}

	switch dst.Type() {
	case bigIntType:
		s, err := v.c.call("__qjs.big(" + ref + ")")
		if err != nil {
			return false, err
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return false, fmt.Errorf("%w: bad BigInt %q", core.ErrConversion, s)
		}
		dst.Set(reflect.ValueOf(n))
		return true, nil
	case timeType:
		s, err := v.c.call("__qjs.date(" + ref + ")")
		if err != nil {
			return false, err
		}
		ms, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false, fmt.Errorf("%w: bad date %q", core.ErrConversion, s)
		}
		dst.Set(reflect.ValueOf(time.UnixMilli(int64(ms))))
		return true, nil
	case rawJSONType:
		s, err := v.c.call("__qjs.json(" + ref + ")")
		if err != nil {
			return false, err
		}
		dst.SetBytes([]byte(s))
		return true, nil
	case bytesType:
		b, err := v.Bytes()
		if err != nil {
			return false, err
		}
		dst.SetBytes(b)
		return true, nil
	case jsErrorType, errorType:
		e, err := v.jsError()
		if err != nil {
			return false, err
		}
		dst.Set(reflect.ValueOf(e))
		return true, nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		s, err := v.c.call("(" + ref + ") ? 1 : 0")
		if err != nil {
			return false, err
		}
		dst.SetBool(s == "1")
		return true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := v.Float()
		if err != nil {
			return false, err
		}
		n, err := toInt(f)
		if err != nil || dst.OverflowInt(n) {
			return false, fmt.Errorf("%w: %s out of range for %s", core.ErrConversion, formatFloat(f), dst.Type())
		}
		dst.SetInt(n)
		return true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f, err := v.Float()
		if err != nil {
			return false, err
		}
		n, err := toUint(f)
		if err != nil || dst.OverflowUint(n) {
			return false, fmt.Errorf("%w: %s out of range for %s", core.ErrConversion, formatFloat(f), dst.Type())
		}
		dst.SetUint(n)
		return true, nil
	case reflect.Float32, reflect.Float64:
		f, err := v.Float()
		if err != nil {
			return false, err
		}
		dst.SetFloat(f)
		return true, nil
	case reflect.String:
		s, err := v.ToString()
		if err != nil {
			return false, err
		}
		dst.SetString(s)
		return true, nil
	case reflect.Interface:
		nat, err := v.natural(depth)
		if err != nil {
			return false, err
		}
		if nat == nil {
			return false, nil
		}
		nv := reflect.ValueOf(nat)
		if !nv.Type().AssignableTo(dst.Type()) {
			return false, fmt.Errorf("%w: %T does not implement %s", core.ErrConversion, nat, dst.Type())
		}
		dst.Set(nv)
		return true, nil
	case reflect.Slice:
		if v.kind == KindArray && needsWalk(dst.Type().Elem()) {
			return true, v.walkSlice(dst, depth)
		}
	case reflect.Map:
		if dst.Type().Key().Kind() == reflect.String && needsWalk(dst.Type().Elem()) {
			return true, v.walkMap(dst, depth)
		}
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false, fmt.Errorf("%w: cannot decode into %s", core.ErrConversion, dst.Type())
	}

	s, err := v.c.call("__qjs.json(" + ref + ")")
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dst.Addr().Interface()); err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrConversion, err)
	}
	return true, nil
}

func toInt(f float64) (int64, error) {
	if math.IsNaN(f) {
		return 0, nil
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, core.ErrConversion
	}
	return int64(t), nil
}

func toUint(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, nil
	}
	t := math.Trunc(f)
	if t < 0 || t >= 1<<64 {
		return 0, core.ErrConversion
	}
	return uint64(t), nil
}

// needsWalk reports whether elements of type t cannot come from JSON.
func needsWalk(t reflect.Type) bool {
	switch t {
	case valueType, bigIntType, timeType, bytesType, jsErrorType, errorType:
		return true
	}
	return t.Kind() == reflect.Interface
}

func (v *Value) walkSlice(dst reflect.Value, depth int) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	out := reflect.MakeSlice(dst.Type(), n, n)
	for i := 0; i < n; i++ {
		item, err := v.GetIndex(i)
		if err != nil {
			return err
		}
		_, err = item.decode(out.Index(i), depth+1)
		item.Free()
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	dst.Set(out)
	return nil
}

func (v *Value) walkMap(dst reflect.Value, depth int) error {
	keys, err := v.Keys()
	if err != nil {
		return err
	}
	out := reflect.MakeMapWithSize(dst.Type(), len(keys))
	for _, k := range keys {
		item, err := v.Get(k)
		if err != nil {
			return err
		}
		elem := reflect.New(dst.Type().Elem()).Elem()
		_, err = item.decode(elem, depth+1)
		item.Free()
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
	}
	dst.Set(out)
	return nil
}

// Float converts v with JavaScript Number(). BigInts convert with possible
// loss of precision.
func (v *Value) Float() (float64, error) {
	ref, err := v.ref()
	if err != nil {
		return 0, err
	}
	s, err := v.c.eval("__qjs.num(" + ref + ")")
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", core.ErrConversion, s)
	}
	return f, nil
}

// Any returns the natural Go form of v; see Decode.
func (v *Value) Any() (any, error) {
	var out any
	err := v.c.guarded(func() error {
		var err error
		out, err = v.natural(0)
		return err
	})
	return out, err
}

func (v *Value) natural(depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: value nested deeper than %d levels", core.ErrConversion, maxDepth)
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return nil, nil
	case KindBoolean:
		var b bool
		_, err := v.decode(reflect.ValueOf(&b).Elem(), depth)
		return b, err
	case KindNumber:
		return v.Float()
	case KindString:
		return v.ToString()
	case KindBigInt:
		var n *big.Int
		_, err := v.decode(reflect.ValueOf(&n).Elem(), depth)
		return n, err
	case KindDate:
		var t time.Time
		_, err := v.decode(reflect.ValueOf(&t).Elem(), depth)
		return t, err
	case KindError:
		return v.jsError()
	case KindArrayBuffer, KindTypedArray:
		return v.Bytes()
	case KindFunction, KindSymbol, KindPromise:
		return v.Dup()
	}

	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	res, err := v.c.call("__qjs.nat(" + ref + ")")
	if err != nil {
		return nil, err
	}
	if res == "" {
		return nil, fmt.Errorf("bridge: empty shape for %s", v.kind)
	}
	switch res[0] {
	case 'j':
		var out any
		if err := json.Unmarshal([]byte(res[1:]), &out); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrConversion, err)
		}
		return out, nil
	case 'a':
		n, err := strconv.Atoi(res[1:])
		if err != nil {
			return nil, fmt.Errorf("bridge: malformed length %q", res)
		}
		out := make([]any, n)
		for i := range out {
			item, err := v.GetIndex(i)
			if err != nil {
				return nil, err
			}
			out[i], err = item.natural(depth + 1)
			item.Free()
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return out, nil
	case 'o':
		var keys []string
		if err := json.Unmarshal([]byte(res[1:]), &keys); err != nil {
			return nil, fmt.Errorf("bridge: malformed keys: %w", err)
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			item, err := v.Get(k)
			if err != nil {
				return nil, err
			}
			val, err := item.natural(depth + 1)
			item.Free()
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = val
		}
		return out, nil
	}
	return v.Dup()
}

// jsError describes v the way a thrown exception is described.
func (v *Value) jsError() (*core.JSError, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	desc, err := v.c.call("(globalThis." + core.ExceptionSlot + " = " + ref + ", " + strings.TrimSpace(core.DescribeExceptionJS) + ")")
	if err != nil {
		return nil, err
	}
	return core.ParseException(desc)
}
