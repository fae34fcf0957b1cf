package qjs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cryguy/qjs/internal/bridge"
	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
	"github.com/cryguy/qjs/internal/stdlib"
	"go.uber.org/zap"
)

// Runtime is one JavaScript engine instance with its global scope.
//
// A Runtime is not safe for concurrent use. Host functions run on the
// goroutine that called into JavaScript and may use the Runtime freely;
// other goroutines must wait their turn, for example through a Pool.
type Runtime struct {
	cfg    Config
	eng    core.JSRuntime
	bctx   *bridge.Context
	loop   *eventloop.EventLoop
	log    *zap.Logger
	closed atomic.Bool
	broken atomic.Bool

	// lexical is set once a script that may declare global let, const or
	// class bindings has run. Reset cannot remove those.
	lexical bool

	// guard state, only touched on the owning goroutine
	depth  int
	curCtx context.Context
}

// New creates a runtime configured by cfg.
func New(cfg Config) (*Runtime, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s runtime: %w", engineModule, err)
	}
	r := &Runtime{
		cfg:    cfg,
		eng:    eng,
		loop:   eventloop.New(),
		log:    cfg.Logger.Named("qjs"),
		curCtx: context.Background(),
	}
	r.bctx, err = bridge.New(eng, r.loop, r.log)
	if err != nil {
		eng.Close()
		return nil, err
	}
	r.bctx.Guard = r.guard

	if cfg.StdHelpers {
		err := stdlib.Setup(eng, r.loop, stdlib.Options{
			Stdout:     cfg.Stdout,
			Stderr:     cfg.Stderr,
			ScriptArgs: cfg.ScriptArgs,
			Logger:     r.log,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("installing std helpers: %w", err)
		}
	}
	r.log.Debug("runtime created", zap.String("engine", eng.Name()), zap.Int("memoryLimitMB", cfg.MemoryLimitMB))
	return r, nil
}

// Close frees the engine. Values of this runtime report ErrClosed
// afterwards. Calling Close twice is a no-op.
func (r *Runtime) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.bctx.Close()
	r.loop.Reset()
	r.eng.Close()
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool { return r.closed.Load() }

// Broken reports whether an evaluation was interrupted. A broken runtime
// may be left in an inconsistent state and should be discarded.
func (r *Runtime) Broken() bool { return r.broken.Load() }

// Engine names the engine backing the runtime.
func (r *Runtime) Engine() string { return r.eng.Name() }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger { return r.log }

// Interrupt aborts the JavaScript currently running on this runtime. It
// may be called from any goroutine. The runtime is marked broken.
func (r *Runtime) Interrupt() {
	r.broken.Store(true)
	r.eng.Interrupt()
}

// withContext runs fn with ctx as the cancellation source of every
// top-level engine call it makes.
func (r *Runtime) withContext(ctx context.Context, fn func() error) error {
	if r.depth > 0 {
		return fn()
	}
	prev := r.curCtx
	r.curCtx = ctx
	defer func() { r.curCtx = prev }()
	return fn()
}

// guard runs one top-level engine call under the execution timeout and
// the current context. Nested calls from host functions pass through.
func (r *Runtime) guard(fn func() error) (err error) {
	if r.depth > 0 {
		return fn()
	}
	if r.closed.Load() {
		return ErrClosed
	}
	ctx := r.curCtx
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	r.depth++
	defer func() { r.depth-- }()

	var timedOut, cancelled atomic.Bool
	timeout := time.Duration(r.cfg.ExecutionTimeout) * time.Millisecond
	if timeout > 0 {
		watchdog := time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			r.eng.Interrupt()
		})
		defer watchdog.Stop()
	}
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			select {
			case <-done:
				cancelled.Store(true)
				r.eng.Interrupt()
			case <-stop:
			}
		}()
		defer func() {
			close(stop)
			<-finished
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			if !timedOut.Load() && !cancelled.Load() {
				r.broken.Store(true)
				err = fmt.Errorf("qjs: engine panic: %v", p)
				r.log.Error("engine panicked", zap.Any("panic", p))
				return
			}
		}
		switch {
		case timedOut.Load():
			r.broken.Store(true)
			r.log.Warn("execution timed out", zap.Duration("limit", timeout))
			err = fmt.Errorf("%w (limit: %v)", ErrTimeout, timeout)
		case cancelled.Load():
			r.broken.Store(true)
			r.log.Debug("execution cancelled", zap.Error(ctx.Err()))
			err = fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
	}()
	return fn()
}
