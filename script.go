package qjs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/cryguy/qjs/internal/core"
	"go.uber.org/zap"
)

// Script is compiled bytecode. Bytecode is tied to the engine build that
// produced it.
type Script struct {
	code     []byte
	filename string
	lexical  bool
}

// Bytecode returns the serialised script.
func (s *Script) Bytecode() []byte { return s.code }

// Filename returns the name the script was compiled under, if known.
func (s *Script) Filename() string { return s.filename }

// LoadScript wraps bytecode produced by Script.Bytecode.
func LoadScript(code []byte) *Script {
	// The source is unknown, so assume it declares lexical globals.
	return &Script{code: code, lexical: true}
}

// Compile compiles source without running it. It fails with
// ErrUnsupported on engines without bytecode support.
func (r *Runtime) Compile(source string, opts ...EvalOption) (*Script, error) {
	o := buildOptions(opts)
	lexical := declaresLexical(source, o)
	if o.module {
		code, err := r.bundle(source, o.filename)
		if err != nil {
			return nil, err
		}
		source = code
	}
	code, err := r.bctx.Compile(source, core.EvalOptions{Filename: o.filename, Strict: o.strict})
	if err != nil {
		return nil, err
	}
	return &Script{code: code, filename: o.filename, lexical: lexical}, nil
}

// RunScript runs a compiled script and returns its completion value.
func (r *Runtime) RunScript(s *Script) (*Value, error) {
	if s.lexical {
		r.lexical = true
	}
	return r.bctx.EvalBytecode(s.code)
}

// EvalCached is Eval through Config.BytecodeCache: a hit skips parsing, a
// miss compiles, stores and runs. Without a cache or bytecode support it
// is plain Eval.
func (r *Runtime) EvalCached(source string, opts ...EvalOption) (*Value, error) {
	store := r.cfg.BytecodeCache
	if store == nil {
		return r.Eval(source, opts...)
	}
	o := buildOptions(opts)
	key := r.cacheKey(source, o)

	code, ok, err := store.Get(key)
	if err != nil {
		r.log.Warn("bytecode cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		v, err := r.RunScript(&Script{code: code, filename: o.filename, lexical: declaresLexical(source, o)})
		if !errors.Is(err, ErrBadBytecode) {
			return v, err
		}
		r.log.Warn("discarding unreadable cached bytecode", zap.String("key", key), zap.Error(err))
		if err := store.Delete(key); err != nil {
			r.log.Warn("bytecode cache delete failed", zap.String("key", key), zap.Error(err))
		}
	}

	script, err := r.Compile(source, opts...)
	if errors.Is(err, ErrUnsupported) {
		return r.Eval(source, opts...)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Put(key, script.Bytecode()); err != nil {
		r.log.Warn("bytecode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return r.RunScript(script)
}

// cacheKey hashes everything that changes the compiled output.
func (r *Runtime) cacheKey(source string, o evalOptions) string {
	h := sha256.New()
	for _, part := range []string{r.eng.Name(), o.filename, strconv.FormatBool(o.strict), strconv.FormatBool(o.module), source} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
