package qjs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cryguy/qjs/internal/bridge"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("qjs: pool closed")

// Pool hands out pre-warmed runtimes to concurrent callers. Each runtime
// is used by one caller at a time; Put resets it for the next one.
type Pool struct {
	cfg   Config
	setup func(*Runtime) error
	log   *zap.Logger

	runtimes chan *Runtime

	mu      sync.Mutex
	closed  bool
	missing int // runtimes that failed to be replaced
}

// NewPool creates size runtimes from cfg and runs setup on each. Globals
// present after setup survive every Put; everything added later is
// removed.
func NewPool(size int, cfg Config, setup func(*Runtime) error) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("qjs: pool size must be positive, got %d", size)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Pool{
		cfg:      cfg,
		setup:    setup,
		log:      cfg.Logger.Named("pool"),
		runtimes: make(chan *Runtime, size),
	}
	for i := 0; i < size; i++ {
		rt, err := p.newRuntime()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("creating pool runtime %d: %w", i, err)
		}
		p.runtimes <- rt
	}
	return p, nil
}

func (p *Pool) newRuntime() (*Runtime, error) {
	rt, err := New(p.cfg)
	if err != nil {
		return nil, err
	}
	if p.setup != nil {
		if err := p.setup(rt); err != nil {
			rt.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if err := rt.bctx.Snapshot(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("recording globals: %w", err)
	}
	// Bindings made by setup are part of the baseline.
	rt.lexical = false
	return rt, nil
}

// Get takes a runtime from the pool, waiting until one is free or ctx is
// done.
func (p *Pool) Get(ctx context.Context) (*Runtime, error) {
	select {
	case rt, ok := <-p.runtimes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return rt, nil
	default:
	}
	if rt := p.replenish(); rt != nil {
		return rt, nil
	}
	select {
	case rt, ok := <-p.runtimes:
		if !ok {
			return nil, ErrPoolClosed
		}
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// replenish creates a runtime for a slot whose replacement failed.
func (p *Pool) replenish() *Runtime {
	p.mu.Lock()
	if p.closed || p.missing == 0 {
		p.mu.Unlock()
		return nil
	}
	p.missing--
	p.mu.Unlock()

	rt, err := p.newRuntime()
	if err != nil {
		p.log.Error("replacing runtime", zap.Error(err))
		p.mu.Lock()
		p.missing++
		p.mu.Unlock()
		return nil
	}
	return rt
}

// Put returns rt to the pool. Outstanding values of rt become invalid,
// globals added since setup are deleted and timers are cleared. Broken or
// closed runtimes are replaced by fresh ones, and so are runtimes whose
// globals cannot be removed: var and function declarations, and the
// let, const and class bindings of any script that may declare them.
func (p *Pool) Put(rt *Runtime) {
	if rt == nil {
		return
	}
	if rt.Broken() || rt.Closed() {
		p.log.Warn("discarding runtime", zap.Bool("broken", rt.Broken()), zap.Bool("closed", rt.Closed()))
		rt.Close()
		rt = p.replace()
	} else if rt.lexical {
		p.log.Debug("replacing runtime that may hold lexical globals")
		rt.Close()
		rt = p.replace()
	} else if err := rt.bctx.Reset(); errors.Is(err, bridge.ErrResidue) {
		p.log.Debug("replacing runtime after reset", zap.Error(err))
		rt.Close()
		rt = p.replace()
	} else if err != nil {
		p.log.Warn("discarding runtime after failed reset", zap.Error(err))
		rt.Close()
		rt = p.replace()
	}
	if rt == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		rt.Close()
		return
	}
	select {
	case p.runtimes <- rt:
	default:
		// More runtimes returned than handed out.
		p.log.Warn("pool full, closing returned runtime")
		rt.Close()
	}
}

func (p *Pool) replace() *Runtime {
	rt, err := p.newRuntime()
	if err != nil {
		p.log.Error("replacing runtime", zap.Error(err))
		p.mu.Lock()
		p.missing++
		p.mu.Unlock()
		return nil
	}
	return rt
}

// Do runs fn with a pooled runtime.
func (p *Pool) Do(ctx context.Context, fn func(*Runtime) error) error {
	rt, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(rt)
	return fn(rt)
}

// Size returns the configured number of runtimes.
func (p *Pool) Size() int { return cap(p.runtimes) }

// Close closes idle runtimes and makes Get fail. Runtimes still in use
// are closed when they are returned.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.runtimes)
	for rt := range p.runtimes {
		rt.Close()
	}
}
