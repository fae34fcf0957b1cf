package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) behind the
// small surface the value bridge, the std helpers and the event loop need.
// Implementations are single-threaded: every method must be called from the
// goroutine that currently owns the runtime.
type JSRuntime interface {
	// Name identifies the engine ("quickjs" or "v8").
	Name() string

	// Eval evaluates internal glue JavaScript and discards the result.
	Eval(js string) error

	// EvalString evaluates glue and returns the result formatted as a string.
	EvalString(js string) (string, error)

	// EvalBool, EvalInt and EvalFloat fail when the result has another type.
	EvalBool(js string) (bool, error)
	EvalInt(js string) (int, error)
	EvalFloat(js string) (float64, error)

	// EvalScript evaluates caller source as a global script. The completion
	// value is stored in globalThis[slot]. If the script throws, the thrown
	// value is stored in globalThis[ExceptionSlot] and ErrThrown is returned.
	EvalScript(src string, opts EvalOptions, slot string) error

	// RegisterFunc installs fn as a non-enumerable global function.
	// Arguments are converted from JS numbers, strings and booleans; a
	// (T, error) return throws a TypeError when the error is non-nil.
	RegisterFunc(name string, fn any) error

	// RunMicrotasks drains the job queue and reports how many jobs ran. A
	// job that throws stops the drain and returns ErrThrown with the value
	// stored in globalThis[ExceptionSlot].
	RunMicrotasks() (int, error)

	// IsJobPending reports whether the job queue is non-empty.
	IsJobPending() bool

	// Interrupt aborts the script currently running. Safe to call from any
	// goroutine.
	Interrupt()

	// Close releases the engine.
	Close()
}

// ExceptionSlot is the global that receives a value thrown by caller code.
const ExceptionSlot = "__qjs_exc"

// EvalOptions controls how EvalScript and Compile treat caller source.
type EvalOptions struct {
	Filename string
	Strict   bool
}

// BinaryTransferer moves bytes across the boundary without an element by
// element copy in JavaScript.
type BinaryTransferer interface {
	// ReadBinaryFromJS reads the ArrayBuffer stored at the given global,
	// deletes the global and returns a copy of its bytes.
	ReadBinaryFromJS(globalName string) ([]byte, error)

	// WriteBinaryToJS stores a new ArrayBuffer holding a copy of data at the
	// given global.
	WriteBinaryToJS(globalName string, data []byte) error
}

// Compiler is implemented by engines that can serialise compiled scripts.
type Compiler interface {
	// Compile compiles src without running it and returns engine bytecode.
	Compile(src string, opts EvalOptions) ([]byte, error)

	// EvalBytecode loads bytecode produced by Compile, runs it and stores the
	// completion value like EvalScript does. Bytecode the engine cannot
	// read fails with ErrBadBytecode.
	EvalBytecode(code []byte, slot string) error
}

// MemoryReporter is implemented by engines that expose heap statistics.
type MemoryReporter interface {
	MemoryUsage() MemoryUsage
	RunGC()
}

// MemoryUsage is a snapshot of engine heap statistics. Counters an engine
// does not track are left at zero.
type MemoryUsage struct {
	MallocSize     int64
	MallocLimit    int64
	MallocCount    int64
	MemoryUsed     int64
	AtomCount      int64
	StringCount    int64
	ObjectCount    int64
	PropertyCount  int64
	FunctionCount  int64
	ArrayCount     int64
	HeapSizeLimit  int64
	TotalHeapSize  int64
	ExternalMemory int64
}
