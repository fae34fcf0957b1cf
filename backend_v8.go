//go:build v8

package qjs

import (
	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/v8engine"
)

const engineModule = "github.com/tommie/v8go"

func newEngine(cfg core.Config) (core.JSRuntime, error) {
	return v8engine.New(cfg)
}
