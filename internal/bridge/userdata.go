package bridge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cryguy/qjs/internal/core"
)

// NewUserdata wraps an arbitrary Go value in an opaque JS object. The Go
// value stays reachable until the JS object is collected.
func (c *Context) NewUserdata(x any) (*Value, error) {
	id := c.storeUserdata(x)
	return c.newValue("__qjs.ud(" + strconv.Itoa(id) + ")")
}

func (c *Context) storeUserdata(x any) int {
	c.nextUD++
	c.ud[c.nextUD] = x
	return c.nextUD
}

// Userdata returns the Go value behind an object made by NewUserdata or
// by a class constructor.
func (v *Value) Userdata() (any, bool) {
	ref, err := v.ref()
	if err != nil || !v.IsObject() {
		return nil, false
	}
	res, err := v.c.call("__qjs.udid(" + ref + ")")
	if err != nil || res == "" {
		return nil, false
	}
	id, err := strconv.Atoi(res)
	if err != nil {
		return nil, false
	}
	x, ok := v.c.ud[id]
	return x, ok
}

// Method implements a class method. self is the Go value of the receiver.
type Method func(self any, this *Value, args []*Value) (any, error)

// ClassDef describes a JS class backed by Go values.
type ClassDef struct {
	Name string
	// Constructor returns the Go value for a new instance.
	Constructor func(args []*Value) (any, error)
	Methods     map[string]Method
	Getters     map[string]func(self any) (any, error)
}

// DefineClass creates the constructor function for def. Instances created
// with new carry the Go value returned by def.Constructor.
func (c *Context) DefineClass(def ClassDef) (*Value, error) {
	if def.Name == "" || def.Constructor == nil {
		return nil, fmt.Errorf("%w: class needs a name and a constructor", core.ErrConversion)
	}
	ctor := c.funcExpr(def.Name, func(_ *Value, args []*Value) (any, error) {
		x, err := def.Constructor(args)
		if err != nil {
			return nil, err
		}
		return udToken(c.storeUserdata(x)), nil
	}, 0)

	methods := make([]string, 0, len(def.Methods))
	for _, name := range sortedKeys(def.Methods) {
		m := def.Methods[name]
		methods = append(methods, core.Quote(name)+": "+c.funcExpr(name, func(this *Value, args []*Value) (any, error) {
			self, ok := this.Userdata()
			if !ok {
				return nil, core.NewJSError("TypeError", def.Name+"."+name+" called on incompatible receiver")
			}
			return m(self, this, args)
		}, 0))
	}
	getters := make([]string, 0, len(def.Getters))
	for _, name := range sortedKeys(def.Getters) {
		g := def.Getters[name]
		getters = append(getters, core.Quote(name)+": "+c.funcExpr("get "+name, func(this *Value, _ []*Value) (any, error) {
			self, ok := this.Userdata()
			if !ok {
				return nil, core.NewJSError("TypeError", def.Name+"."+name+" called on incompatible receiver")
			}
			return g(self)
		}, 0))
	}
	return c.newValue(fmt.Sprintf("__qjs.cls(%s, %s, {%s}, {%s})",
		core.Quote(def.Name), ctor, strings.Join(methods, ", "), strings.Join(getters, ", ")))
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
