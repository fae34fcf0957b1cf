// Package bridge moves values between Go and a JavaScript engine. JS values
// stay inside the engine in a handle table; Go holds *Value references to
// them. All traffic is plain JS source evaluated through core.JSRuntime, so
// the same code serves every backend.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
	"go.uber.org/zap"
)

// resultSlot receives completion values of caller scripts.
const resultSlot = "__qjs_result"

// Context owns the handle table of one runtime. Like the runtime itself it
// must only be used from one goroutine at a time; Free and finalizers may
// run anywhere and only queue work.
type Context struct {
	rt   core.JSRuntime
	bt   core.BinaryTransferer
	loop *eventloop.EventLoop
	log  *zap.Logger

	// Guard wraps every operation that runs caller JavaScript. The runtime
	// facade installs its watchdog here.
	Guard func(fn func() error) error

	funcs  map[int]HostFunc
	nextFn int
	ud     map[int]any
	nextUD int
	tmp    int

	mu       sync.Mutex
	released []int

	gen    atomic.Uint64
	closed atomic.Bool
}

// New installs the bridge helpers into rt.
func New(rt core.JSRuntime, loop *eventloop.EventLoop, log *zap.Logger) (*Context, error) {
	bt, ok := rt.(core.BinaryTransferer)
	if !ok {
		return nil, fmt.Errorf("engine %s cannot transfer binary data", rt.Name())
	}
	if log == nil {
		log = zap.NewNop()
	}
	if loop == nil {
		loop = eventloop.New()
	}
	c := &Context{
		rt:    rt,
		bt:    bt,
		loop:  loop,
		log:   log.Named("bridge"),
		funcs: make(map[int]HostFunc),
		ud:    make(map[int]any),
	}
	c.Guard = func(fn func() error) error { return fn() }

	if err := rt.RegisterFunc("__qjs_invoke", c.invoke); err != nil {
		return nil, fmt.Errorf("registering __qjs_invoke: %w", err)
	}
	if err := rt.RegisterFunc("__qjs_release", c.releaseToken); err != nil {
		return nil, fmt.Errorf("registering __qjs_release: %w", err)
	}
	if err := rt.Eval(helpersJS); err != nil {
		return nil, fmt.Errorf("installing bridge helpers: %w", err)
	}
	return c, nil
}

// Runtime returns the engine this context drives.
func (c *Context) Runtime() core.JSRuntime { return c.rt }

// Loop returns the timer loop serving setTimeout and setInterval.
func (c *Context) Loop() *eventloop.EventLoop { return c.loop }

// call evaluates body inside __qjs.g and returns its string result. A JS
// throw comes back as *core.JSError.
func (c *Context) call(body string) (string, error) {
	if c.closed.Load() {
		return "", core.ErrClosed
	}
	c.flush()
	res, err := c.rt.EvalString("__qjs.g(function() { return " + body + "; })")
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(res, "!") {
		return "", core.TakeException(c.rt)
	}
	if !strings.HasPrefix(res, "=") {
		return "", fmt.Errorf("bridge: malformed result %q", res)
	}
	return res[1:], nil
}

// guarded runs fn through Guard.
func (c *Context) guarded(fn func() error) error {
	return c.Guard(fn)
}

// eval is call under Guard, for operations that may run caller code such
// as getters, proxy traps and toString.
func (c *Context) eval(body string) (string, error) {
	var res string
	err := c.guarded(func() error {
		var err error
		res, err = c.call(body)
		return err
	})
	return res, err
}

// evalValue is newValue under Guard.
func (c *Context) evalValue(expr string) (*Value, error) {
	var out *Value
	err := c.guarded(func() error {
		var err error
		out, err = c.newValue(expr)
		return err
	})
	return out, err
}

// stage marks the temporaries and host functions registered so far.
type stage struct{ tmp, fn int }

func (c *Context) mark() stage { return stage{c.tmp, c.nextFn} }

// rollback drops what was staged after s for an expression that will
// never be evaluated.
func (c *Context) rollback(s stage) {
	for fid := s.fn + 1; fid <= c.nextFn; fid++ {
		delete(c.funcs, fid)
	}
	if c.tmp == s.tmp {
		return
	}
	names := make([]string, 0, c.tmp-s.tmp)
	for i := s.tmp + 1; i <= c.tmp; i++ {
		names = append(names, "delete globalThis."+tmpPrefix+strconv.Itoa(i)+";")
	}
	if err := c.rt.Eval(strings.Join(names, " ")); err != nil {
		c.log.Debug("dropping staged values", zap.Error(err))
	}
}

// newValue creates a handle from an expression.
func (c *Context) newValue(expr string) (*Value, error) {
	res, err := c.call("__qjs.pk(" + expr + ")")
	if err != nil {
		return nil, err
	}
	return c.parseHandle(res)
}

// parseHandle turns "id:kind" into a *Value.
func (c *Context) parseHandle(res string) (*Value, error) {
	idStr, kindStr, ok := strings.Cut(res, ":")
	if !ok {
		return nil, fmt.Errorf("bridge: malformed handle %q", res)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, fmt.Errorf("bridge: malformed handle %q: %w", res, err)
	}
	return c.track(id, parseKind(kindStr)), nil
}

// flush applies queued handle releases.
func (c *Context) flush() {
	c.mu.Lock()
	ids := c.released
	c.released = nil
	c.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	if err := c.rt.Eval("__qjs.del([" + strings.Join(parts, ",") + "]);"); err != nil {
		c.log.Debug("releasing handles", zap.Int("count", len(ids)), zap.Error(err))
	}
}

func (c *Context) enqueueRelease(id int) {
	c.mu.Lock()
	c.released = append(c.released, id)
	c.mu.Unlock()
}

// releaseToken is called by the FinalizationRegistry when a host function
// or userdata object is collected.
func (c *Context) releaseToken(token string) {
	kind, idStr, ok := strings.Cut(token, ":")
	if !ok {
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return
	}
	switch kind {
	case "f":
		delete(c.funcs, id)
	case "u":
		delete(c.ud, id)
	}
}

const tmpPrefix = "__tmp_qjs_"

// tempName returns a fresh global name for staging values.
func (c *Context) tempName() string {
	c.tmp++
	return tmpPrefix + strconv.Itoa(c.tmp)
}

// HandleCount reports how many JS values are currently parked for Go.
func (c *Context) HandleCount() (int, error) {
	res, err := c.call("__qjs.size()")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(res)
}

// Snapshot records the current global names; Reset later removes every
// global added after this point.
func (c *Context) Snapshot() error {
	_, err := c.call("__qjs.snapshot()")
	return err
}

// ErrResidue is returned by Reset when globals created since Snapshot
// could not be removed. The context still works but is no longer clean.
var ErrResidue = errors.New("qjs: globals survived reset")

// Reset drops every outstanding handle and every global created since
// Snapshot, and clears timers. Values from before the reset report
// ErrClosed. Host functions and userdata referenced by surviving globals
// are kept.
//
// var and function declarations create non-configurable globals that
// cannot be deleted; Reset reports them with ErrResidue. Top-level let,
// const and class bindings are not properties of globalThis and are not
// seen at all.
func (c *Context) Reset() error {
	if c.closed.Load() {
		return core.ErrClosed
	}
	c.gen.Add(1)
	c.mu.Lock()
	c.released = nil
	c.mu.Unlock()
	c.loop.Reset()
	res, err := c.rt.EvalString("__qjs.reset(); globalThis.__timerCallbacks && (globalThis.__timerCallbacks = {}); __qjs.restore();")
	if err != nil {
		return fmt.Errorf("resetting context: %w", err)
	}
	if _, err := c.rt.RunMicrotasks(); err != nil {
		if !errors.Is(err, core.ErrThrown) {
			return err
		}
		_ = c.rt.Eval("delete globalThis.__qjs_exc;")
	}
	var kept []string
	if err := json.Unmarshal([]byte(res), &kept); err != nil {
		return fmt.Errorf("bridge: malformed reset result %q: %w", res, err)
	}
	if len(kept) > 0 {
		return fmt.Errorf("%w: %s", ErrResidue, strings.Join(kept, ", "))
	}
	return nil
}

// Close invalidates every handle. The engine itself is closed by its owner.
func (c *Context) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.gen.Add(1)
	clear(c.funcs)
	clear(c.ud)
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool { return c.closed.Load() }
