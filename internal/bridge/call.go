package bridge

import "github.com/cryguy/qjs/internal/core"

// Call calls v with the given this and arguments. A nil this passes
// undefined.
func (v *Value) Call(this any, args ...any) (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	if this == nil {
		this = Undefined
	}
	s := v.c.mark()
	t, err := v.c.expr(this)
	if err != nil {
		v.c.rollback(s)
		return nil, err
	}
	list, err := v.c.exprList(args)
	if err != nil {
		v.c.rollback(s)
		return nil, err
	}
	return v.run("__qjs.call(" + ref + ", " + t + ", " + list + ")")
}

// Invoke calls the method named method on v.
func (v *Value) Invoke(method string, args ...any) (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	list, err := v.c.exprList(args)
	if err != nil {
		return nil, err
	}
	return v.run("__qjs.invoke(" + ref + ", " + core.Quote(method) + ", " + list + ")")
}

// New calls v as a constructor.
func (v *Value) New(args ...any) (*Value, error) {
	ref, err := v.ref()
	if err != nil {
		return nil, err
	}
	list, err := v.c.exprList(args)
	if err != nil {
		return nil, err
	}
	return v.run("__qjs.construct(" + ref + ", " + list + ")")
}

func (v *Value) run(expr string) (*Value, error) {
	return v.c.evalValue(expr)
}

// IsConstructor reports whether v can be called with new.
func (v *Value) IsConstructor() (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.eval("__qjs.isctor(" + ref + ")")
	return res == "1", err
}

// InstanceOf evaluates v instanceof ctor.
func (v *Value) InstanceOf(ctor *Value) (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	cref, err := ctor.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.eval("__qjs.inst(" + ref + ", " + cref + ")")
	return res == "1", err
}

// StrictEquals evaluates v === other.
func (v *Value) StrictEquals(other *Value) (bool, error) {
	ref, err := v.ref()
	if err != nil {
		return false, err
	}
	oref, err := other.ref()
	if err != nil {
		return false, err
	}
	res, err := v.c.call("(" + ref + " === " + oref + ") ? 1 : 0")
	return res == "1", err
}
