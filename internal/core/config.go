package core

import (
	"io"

	"go.uber.org/zap"
)

// Config holds the settings applied to every runtime created from it.
// The zero value is usable.
type Config struct {
	MemoryLimitMB    int // per-runtime heap limit, 0 = unlimited
	GCThreshold      int // bytes allocated between collections, 0 = engine default
	ExecutionTimeout int // milliseconds before a single evaluation is interrupted

	StdHelpers bool     // install print, console, scriptArgs and timers
	ScriptArgs []string // exposed to scripts as scriptArgs
	Stdout     io.Writer
	Stderr     io.Writer

	Logger        *zap.Logger
	BytecodeCache BytecodeStore
	ModuleLoader  ModuleLoader
}

// ModuleLoader returns the source of a module that is not on disk.
// importer is the specifier of the importing module when the loader served
// it, empty otherwise.
type ModuleLoader func(specifier, importer string) (string, error)

// BytecodeStore persists compiled scripts keyed by content hash.
type BytecodeStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, code []byte) error
	Delete(key string) error
}
