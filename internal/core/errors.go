package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrClosed is returned when a runtime or one of its values is used
	// after Close.
	ErrClosed = errors.New("qjs: runtime closed")

	// ErrInterrupted is returned when an evaluation was aborted by
	// Interrupt or by context cancellation.
	ErrInterrupted = errors.New("qjs: execution interrupted")

	// ErrTimeout is returned when an evaluation exceeded ExecutionTimeout.
	ErrTimeout = errors.New("qjs: execution timed out")

	// ErrUnsupported is returned when the selected engine lacks a feature.
	ErrUnsupported = errors.New("qjs: not supported by this engine")

	// ErrConversion is returned when a JS value cannot be represented as the
	// requested Go type.
	ErrConversion = errors.New("qjs: value conversion failed")

	// ErrBadBytecode is returned when bytecode cannot be read, for example
	// because it was produced by a different engine build.
	ErrBadBytecode = errors.New("qjs: unreadable bytecode")

	// ErrThrown signals that JS code threw and the thrown value is waiting
	// in globalThis[ExceptionSlot]. It never escapes the module.
	ErrThrown = errors.New("qjs: exception pending")
)

// ErrorKind classifies a JavaScript exception.
type ErrorKind int

const (
	// KindThrow is a thrown value that is not an Error object.
	KindThrow ErrorKind = iota
	KindError
	// KindCustom is an Error subclass outside the standard set; Name keeps
	// its class name.
	KindCustom
	KindEvalError
	KindInternalError
	KindRangeError
	KindReferenceError
	KindSyntaxError
	KindTypeError
	KindURIError
)

var kindNames = map[ErrorKind]string{
	KindThrow:          "Throw",
	KindError:          "Error",
	KindCustom:         "Custom",
	KindEvalError:      "EvalError",
	KindInternalError:  "InternalError",
	KindRangeError:     "RangeError",
	KindReferenceError: "ReferenceError",
	KindSyntaxError:    "SyntaxError",
	KindTypeError:      "TypeError",
	KindURIError:       "URIError",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// KindOf maps an Error name to its kind.
func KindOf(name string) ErrorKind {
	switch name {
	case "Error":
		return KindError
	case "EvalError":
		return KindEvalError
	case "InternalError":
		return KindInternalError
	case "RangeError":
		return KindRangeError
	case "ReferenceError":
		return KindReferenceError
	case "SyntaxError":
		return KindSyntaxError
	case "TypeError":
		return KindTypeError
	case "URIError":
		return KindURIError
	}
	return KindCustom
}

// JSError is a JavaScript exception surfaced to Go.
type JSError struct {
	Kind    ErrorKind
	Name    string // class name; "Throw" for non-Error values
	Message string
	Stack   string
}

// NewJSError builds an error of the named class, as a host function would
// throw it.
func NewJSError(name, message string) *JSError {
	return &JSError{Kind: KindOf(name), Name: name, Message: message}
}

func (e *JSError) Error() string {
	if e.Kind == KindThrow {
		return "Throw: " + e.Message
	}
	return e.Name + ": " + e.Message
}

// DescribeExceptionJS moves the value in globalThis[ExceptionSlot] into a
// JSON description. It must not throw.
const DescribeExceptionJS = `(function() {
	var e = globalThis.__qjs_exc;
	delete globalThis.__qjs_exc;
	var d = { error: false, name: "", message: "", stack: "" };
	try {
		if (e instanceof Error || (e !== null && typeof e === 'object' &&
				typeof e.name === 'string' && typeof e.message === 'string')) {
			d.error = true;
			d.name = String(e.name);
			d.message = String(e.message);
			if (e.stack !== undefined) d.stack = String(e.stack);
		} else {
			d.message = String(e);
		}
	} catch (x) {
		d.message = Object.prototype.toString.call(e);
	}
	return JSON.stringify(d);
})()`

type exceptionDesc struct {
	Error   bool   `json:"error"`
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// ParseException converts the output of DescribeExceptionJS into a JSError.
func ParseException(desc string) (*JSError, error) {
	var d exceptionDesc
	if err := json.Unmarshal([]byte(desc), &d); err != nil {
		return nil, fmt.Errorf("decoding exception: %w", err)
	}
	if !d.Error {
		return &JSError{Kind: KindThrow, Name: "Throw", Message: d.Message}, nil
	}
	return &JSError{Kind: KindOf(d.Name), Name: d.Name, Message: d.Message, Stack: d.Stack}, nil
}

// TakeException collects the pending exception after ErrThrown. When the
// description itself cannot be evaluated the engine error is returned.
func TakeException(rt JSRuntime) error {
	desc, err := rt.EvalString(DescribeExceptionJS)
	if err != nil {
		return err
	}
	jsErr, err := ParseException(desc)
	if err != nil {
		return err
	}
	return jsErr
}

// ErrorFromText rebuilds a JSError from an engine's "Name: message" text.
// Engines that do not hand back the thrown value report exceptions this way.
func ErrorFromText(text, stack string) *JSError {
	text = strings.TrimPrefix(text, "Uncaught ")
	if i := strings.Index(text, ": "); i > 0 {
		name := text[:i]
		if isIdent(name) && (strings.HasSuffix(name, "Error") || name == "Throw") {
			if name == "Throw" {
				return &JSError{Kind: KindThrow, Name: "Throw", Message: text[i+2:]}
			}
			return &JSError{Kind: KindOf(name), Name: name, Message: text[i+2:], Stack: stack}
		}
	}
	return &JSError{Kind: KindThrow, Name: "Throw", Message: text}
}

// StashExceptionJS returns glue that recreates e as a JS value and stores
// it in globalThis[ExceptionSlot].
func StashExceptionJS(e *JSError) string {
	if e.Kind == KindThrow {
		return fmt.Sprintf("globalThis.__qjs_exc = %s;", Quote(e.Message))
	}
	return fmt.Sprintf(`(function() {
	var C = globalThis[%[1]s];
	var e = typeof C === 'function' ? new C(%[2]s) : new Error(%[2]s);
	if (e.name !== %[1]s) e.name = %[1]s;
	if (%[3]s !== '') e.stack = %[3]s;
	globalThis.__qjs_exc = e;
})()`, Quote(e.Name), Quote(e.Message), Quote(e.Stack))
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return s != ""
}
