package eventloop

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/qjs/internal/core"
)

// MinInterval is the shortest period a setInterval timer repeats at.
const MinInterval = 10 * time.Millisecond

// timerEntry is the Go half of a timer; the callback and its arguments
// live in globalThis.__timerCallbacks[id].
type timerEntry struct {
	deadline time.Time
	interval time.Duration // zero for one-shot timers
	id       int
	cleared  bool
}

// EventLoop schedules the timers of one runtime against the wall clock.
type EventLoop struct {
	mu     sync.Mutex
	timers map[int]*timerEntry // by id
	nextID int
}

func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
	}
}

// RegisterTimer schedules a timer and returns its id. Negative delays
// count as zero.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	id := el.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
	}
	if isInterval {
		entry.interval = max(delay, MinInterval)
	}
	el.timers[id] = entry
	return id
}

// ClearTimer cancels id; unknown ids are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.timers[id]; ok {
		t.cleared = true
		delete(el.timers, id)
	}
}

// fireTimer invokes the JS-side callback. A throwing callback is reported
// through the exception slot, like a throwing script.
func (el *EventLoop) fireTimer(rt core.JSRuntime, id int) error {
	res, err := rt.EvalString(fmt.Sprintf(`(function() {
		var entry = globalThis.__timerCallbacks && globalThis.__timerCallbacks[%[1]d];
		if (!entry) return "";
		if (!entry.interval) delete globalThis.__timerCallbacks[%[1]d];
		try {
			entry.fn.apply(null, entry.args || []);
		} catch (e) {
			globalThis.__qjs_exc = e;
			return "!";
		}
		return "";
	})()`, id))
	if err != nil {
		return err
	}
	if res == "!" {
		el.ClearTimer(id)
		return core.TakeException(rt)
	}
	return nil
}

// next returns the earliest live timer, or nil.
func (el *EventLoop) next() *timerEntry {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next *timerEntry
	for _, t := range el.timers {
		if t.cleared {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}
	return next
}

// Drain fires timers in deadline order, running microtasks after each one,
// until no timers remain or the next one is due after deadline. It returns
// the first error raised by a callback or a job.
// It must run on the goroutine that owns rt.
func (el *EventLoop) Drain(rt core.JSRuntime, deadline time.Time) error {
	for {
		next := el.next()
		if next == nil {
			return nil
		}

		// Wait until the timer fires or the deadline passes.
		now := time.Now()
		if next.deadline.After(now) {
			if next.deadline.After(deadline) {
				return nil
			}
			time.Sleep(next.deadline.Sub(now))
		}

		el.mu.Lock()
		if next.cleared {
			el.mu.Unlock()
			continue
		}
		timerID := next.id
		if next.interval > 0 {
			next.deadline = time.Now().Add(next.interval)
		} else {
			delete(el.timers, next.id)
		}
		el.mu.Unlock()

		if err := el.fireTimer(rt, timerID); err != nil {
			return err
		}
		if _, err := rt.RunMicrotasks(); err != nil {
			return err
		}
	}
}

// HasPending reports whether any timer is scheduled.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0
}

// NextDeadline reports when the earliest timer is due.
func (el *EventLoop) NextDeadline() (time.Time, bool) {
	if t := el.next(); t != nil {
		return t.deadline, true
	}
	return time.Time{}, false
}

// Reset drops every timer and restarts ids at 1.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
}
