// Package stdlib installs the small host library scripts expect from a
// standalone engine: print, console, scriptArgs and timers.
package stdlib

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/eventloop"
	"go.uber.org/zap"
)

// Options configures Setup.
type Options struct {
	Stdout     io.Writer
	Stderr     io.Writer
	ScriptArgs []string
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ScriptArgs == nil {
		o.ScriptArgs = []string{}
	}
	return o
}

// setupFunc matches the signature of every installer in this package.
type setupFunc func(rt core.JSRuntime, el *eventloop.EventLoop, opts Options) error

var setups = []setupFunc{
	setupConsole,
	setupScriptArgs,
	setupTimers,
}

// Setup installs every helper into rt.
func Setup(rt core.JSRuntime, el *eventloop.EventLoop, opts Options) error {
	opts = opts.withDefaults()
	for _, setup := range setups {
		if err := setup(rt, el, opts); err != nil {
			return err
		}
	}
	return nil
}

func setupScriptArgs(rt core.JSRuntime, _ *eventloop.EventLoop, opts Options) error {
	data, err := json.Marshal(opts.ScriptArgs)
	if err != nil {
		return fmt.Errorf("encoding scriptArgs: %w", err)
	}
	return rt.Eval("Object.defineProperty(globalThis, 'scriptArgs', { value: Object.freeze(JSON.parse(" +
		core.Quote(string(data)) + ")), writable: true, configurable: true });")
}
