// Package qjs embeds a JavaScript engine in Go programs.
//
// The simplest entry point evaluates a script in a throwaway runtime:
//
//	n, ok, err := qjs.Eval[int]("1 + 2") // 3, true, nil
//
// ok is false when the script's completion value is undefined or null.
// JavaScript exceptions come back as *JSError, whose Kind tells the Error
// class apart:
//
//	_, _, err := qjs.Eval[int]("foobar")
//	// err: ReferenceError: foobar is not defined
//
// A Runtime keeps its global scope between evaluations. Values it hands
// out are *Value handles that keep the JavaScript value alive until Free
// is called or the handle is garbage collected. Values convert to Go
// types with ValueAs or Value.Decode, and Go values convert to JavaScript
// with Runtime.NewValue:
//
//	nil, Undefined        null, undefined
//	bool, ints, floats    number (truncating toward zero on the way back)
//	string                string
//	*big.Int              BigInt
//	[]byte                ArrayBuffer
//	time.Time             Date
//	error, *JSError       Error of the matching class
//	func                  function calling back into Go
//	*Value                the referenced value
//	anything else         JSON round trip
//
// The default engine is QuickJS through modernc.org/quickjs. Building with
// -tags v8 selects V8 instead; bytecode compilation is then unsupported.
//
// A Runtime must not be used from several goroutines at once. Pool
// provides a set of pre-warmed runtimes for concurrent callers.
package qjs
