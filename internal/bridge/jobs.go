package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cryguy/qjs/internal/core"
)

// ErrStalled is returned by Await when a promise is pending but nothing
// is left that could settle it.
var ErrStalled = errors.New("qjs: promise cannot settle: no pending jobs or timers")

// EnqueueJob schedules fn(args...) as a microtask. A throw from the job is
// reported by the ExecutePendingJobs call that runs it.
func (c *Context) EnqueueJob(fn *Value, args ...any) error {
	ref, err := fn.ref()
	if err != nil {
		return err
	}
	list, err := c.exprList(args)
	if err != nil {
		return err
	}
	_, err = c.call("__qjs.enqueue(" + ref + ", " + list + ")")
	return err
}

// IsJobPending reports whether microtasks are queued.
func (c *Context) IsJobPending() bool {
	if c.closed.Load() {
		return false
	}
	return c.rt.IsJobPending()
}

// ExecutePendingJobs runs queued microtasks until the queue is empty or a
// job throws.
func (c *Context) ExecutePendingJobs() (int, error) {
	if c.closed.Load() {
		return 0, core.ErrClosed
	}
	c.flush()
	var n int
	err := c.guarded(func() error {
		var err error
		n, err = c.rt.RunMicrotasks()
		if errors.Is(err, core.ErrThrown) {
			return core.TakeException(c.rt)
		}
		if err != nil {
			return err
		}
		_, err = c.call("__qjs.jobErr()")
		return err
	})
	return n, err
}

// Await drives jobs and timers until p settles and returns its value. A
// rejection is returned as the error. Non-promise values resolve to
// themselves.
func (c *Context) Await(ctx context.Context, p *Value) (*Value, error) {
	ref, err := p.ref()
	if err != nil {
		return nil, err
	}
	wid, err := c.call("__qjs.watch(" + ref + ")")
	if err != nil {
		return nil, err
	}
	defer c.forget(wid)
	for {
		if _, err := c.ExecutePendingJobs(); err != nil {
			return nil, err
		}
		state, err := c.call("__qjs.state(" + wid + ")")
		if err != nil {
			return nil, err
		}
		if state != "pending" {
			res, err := c.call("__qjs.settled(" + wid + ")")
			if err != nil {
				return nil, err
			}
			return c.parseHandle(res)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.rt.IsJobPending() {
			continue
		}
		if !c.loop.HasPending() {
			return nil, ErrStalled
		}
		if err := c.waitForTimer(ctx); err != nil {
			return nil, err
		}
	}
}

// Await is shorthand for v.Context().Await(ctx, v).
func (v *Value) Await(ctx context.Context) (*Value, error) {
	return v.c.Await(ctx, v)
}

func (c *Context) forget(wid string) {
	_, _ = c.call("__qjs.del([" + wid + "])")
}

// RunLoop runs jobs and timers until none remain or ctx is done.
func (c *Context) RunLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.ExecutePendingJobs(); err != nil {
			return err
		}
		if !c.loop.HasPending() {
			if c.rt.IsJobPending() {
				continue
			}
			return nil
		}
		if err := c.waitForTimer(ctx); err != nil {
			return err
		}
	}
}

// waitForTimer sleeps until the next timer is due, then fires every due
// timer.
func (c *Context) waitForTimer(ctx context.Context) error {
	deadline, ok := c.loop.NextDeadline()
	if !ok {
		return nil
	}
	if d := time.Until(deadline); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return c.guarded(func() error {
		err := c.loop.Drain(c.rt, time.Now())
		if errors.Is(err, core.ErrThrown) {
			return core.TakeException(c.rt)
		}
		if err != nil {
			return fmt.Errorf("running timers: %w", err)
		}
		return nil
	})
}
