package qjs

import (
	"github.com/cryguy/qjs/internal/bridge"
	"github.com/cryguy/qjs/internal/core"
)

// Type aliases re-exporting the internal packages so callers never import
// them directly.

type Config = core.Config
type ModuleLoader = core.ModuleLoader
type BytecodeStore = core.BytecodeStore
type MemoryUsage = core.MemoryUsage
type JSError = core.JSError
type ErrorKind = core.ErrorKind

type Value = bridge.Value
type Kind = bridge.Kind
type HostFunc = bridge.HostFunc
type PropFlags = bridge.PropFlags
type Method = bridge.Method
type ClassDef = bridge.ClassDef

// Undefined converts to the JavaScript undefined value; nil converts to
// null.
var Undefined = bridge.Undefined

// PropCWE is the attribute set of a plain assignment.
var PropCWE = bridge.PropCWE

// NewJSError builds an error that a host function can return to throw a
// specific Error class.
var NewJSError = core.NewJSError

var (
	ErrClosed      = core.ErrClosed
	ErrInterrupted = core.ErrInterrupted
	ErrTimeout     = core.ErrTimeout
	ErrUnsupported = core.ErrUnsupported
	ErrConversion  = core.ErrConversion
	ErrBadBytecode = core.ErrBadBytecode
	ErrStalled     = bridge.ErrStalled
)

const (
	KindThrow          = core.KindThrow
	KindError          = core.KindError
	KindCustom         = core.KindCustom
	KindEvalError      = core.KindEvalError
	KindInternalError  = core.KindInternalError
	KindRangeError     = core.KindRangeError
	KindReferenceError = core.KindReferenceError
	KindSyntaxError    = core.KindSyntaxError
	KindTypeError      = core.KindTypeError
	KindURIError       = core.KindURIError
)

const (
	KindUndefined   = bridge.KindUndefined
	KindNull        = bridge.KindNull
	KindBoolean     = bridge.KindBoolean
	KindNumber      = bridge.KindNumber
	KindBigInt      = bridge.KindBigInt
	KindString      = bridge.KindString
	KindSymbol      = bridge.KindSymbol
	KindObject      = bridge.KindObject
	KindArray       = bridge.KindArray
	KindFunction    = bridge.KindFunction
	KindErrorObject = bridge.KindError
	KindDate        = bridge.KindDate
	KindPromise     = bridge.KindPromise
	KindArrayBuffer = bridge.KindArrayBuffer
	KindTypedArray  = bridge.KindTypedArray
)
