//go:build !v8

package qjs

import (
	"github.com/cryguy/qjs/internal/core"
	"github.com/cryguy/qjs/internal/quickjs"
)

const engineModule = "modernc.org/quickjs"

func newEngine(cfg core.Config) (core.JSRuntime, error) {
	return quickjs.New(cfg)
}
