package qjs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cryguy/qjs/internal/bridge"
	"github.com/cryguy/qjs/internal/bundle"
	"github.com/cryguy/qjs/internal/core"
)

// DefaultFilename names scripts evaluated without WithFilename.
const DefaultFilename = "<evalScript>"

type evalOptions struct {
	filename string
	strict   bool
	module   bool
}

// EvalOption adjusts a single evaluation.
type EvalOption func(*evalOptions)

// WithFilename sets the name reported in stack traces. For modules it
// also anchors relative imports.
func WithFilename(name string) EvalOption {
	return func(o *evalOptions) { o.filename = name }
}

// WithStrict evaluates the script in strict mode.
func WithStrict() EvalOption {
	return func(o *evalOptions) { o.strict = true }
}

// WithModule evaluates the source as an ES module. The result is the
// module namespace object.
func WithModule() EvalOption {
	return func(o *evalOptions) { o.module = true }
}

func buildOptions(opts []EvalOption) evalOptions {
	o := evalOptions{filename: DefaultFilename}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Eval evaluates source in a fresh runtime with the std helpers installed
// and converts the completion value to T. The bool is false when the
// value is undefined or null.
func Eval[T any](source string, opts ...EvalOption) (T, bool, error) {
	var zero T
	rt, err := New(Config{StdHelpers: true})
	if err != nil {
		return zero, false, err
	}
	defer rt.Close()
	return EvalAs[T](rt, source, opts...)
}

// EvalAs evaluates source in rt and converts the result to T.
func EvalAs[T any](rt *Runtime, source string, opts ...EvalOption) (T, bool, error) {
	var zero T
	v, err := rt.Eval(source, opts...)
	if err != nil {
		return zero, false, err
	}
	defer v.Free()
	return ValueAs[T](v)
}

// ValueAs converts v to T; see Value.Decode for the rules.
func ValueAs[T any](v *Value) (T, bool, error) {
	return bridge.As[T](v)
}

// Eval evaluates source as a global script, or as a module with
// WithModule, and returns its completion value.
func (r *Runtime) Eval(source string, opts ...EvalOption) (*Value, error) {
	return r.EvalContext(context.Background(), source, opts...)
}

// EvalContext is Eval with cancellation: when ctx is done the engine is
// interrupted and the call fails with ErrInterrupted.
func (r *Runtime) EvalContext(ctx context.Context, source string, opts ...EvalOption) (*Value, error) {
	o := buildOptions(opts)
	if o.module {
		code, err := r.bundle(source, o.filename)
		if err != nil {
			return nil, err
		}
		source = code
	} else if declaresLexical(source, o) {
		r.lexical = true
	}
	var out *Value
	err := r.withContext(ctx, func() error {
		var err error
		out, err = r.bctx.EvalScript(source, core.EvalOptions{Filename: o.filename, Strict: o.strict})
		return err
	})
	return out, err
}

// declaresLexical reports whether running source may leave let, const or
// class bindings in the global scope. Bundled modules keep theirs inside a
// function.
func declaresLexical(source string, o evalOptions) bool {
	return !o.module && bundle.DeclaresLexical(source)
}

func (r *Runtime) bundle(source, filename string) (string, error) {
	var resolveDir string
	if filename != DefaultFilename && filename != "" {
		if abs, err := filepath.Abs(filename); err == nil {
			resolveDir = filepath.Dir(abs)
		}
	}
	if resolveDir == "" {
		resolveDir, _ = os.Getwd()
	}
	return bundle.Module(source, bundle.Options{
		Filename:   filename,
		ResolveDir: resolveDir,
		Loader:     r.cfg.ModuleLoader,
	})
}

// EvalFile evaluates the file at path. Files ending in .mjs, .ts, .tsx
// or .mts, and sources that start with import or export, run as modules.
func (r *Runtime) EvalFile(path string) (*Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	opts := []EvalOption{WithFilename(path)}
	if IsModule(path, string(src)) {
		opts = append(opts, WithModule())
	}
	return r.Eval(string(src), opts...)
}

// IsModule reports whether a file should be evaluated as a module.
func IsModule(path, src string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mjs", ".ts", ".tsx", ".mts":
		return true
	}
	return DetectModule(src)
}

// DetectModule reports whether src starts like an ES module.
func DetectModule(src string) bool { return bundle.DetectModule(src) }

// ParseJSON parses text with JSON.parse. Malformed text fails with a
// SyntaxError.
func (r *Runtime) ParseJSON(text string) (*Value, error) {
	return r.bctx.ParseJSON(text)
}
