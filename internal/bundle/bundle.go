// Package bundle turns ES modules and TypeScript into a single script the
// engine can evaluate as an expression yielding the module namespace.
package bundle

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/qjs/internal/core"
)

// ErrBundle wraps every esbuild failure.
var ErrBundle = errors.New("qjs: bundling failed")

// loaderNamespace holds modules served by a core.ModuleLoader.
const loaderNamespace = "qjs-loader"

// Options configures Module.
type Options struct {
	// Filename names the entry module in errors and picks its loader by
	// extension.
	Filename string
	// ResolveDir anchors relative imports of the entry module. Defaults to
	// the directory of Filename.
	ResolveDir string
	// Loader serves bare specifiers. Without one they must resolve on disk.
	Loader core.ModuleLoader
}

// Module bundles src and its imports. The returned script evaluates to
// the namespace object of src.
func Module(src string, opts Options) (string, error) {
	filename := opts.Filename
	if filename == "" {
		filename = "<module>"
	}
	resolveDir := opts.ResolveDir
	if resolveDir == "" && filepath.IsAbs(filename) {
		resolveDir = filepath.Dir(filename)
	}

	build := esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   src,
			ResolveDir: resolveDir,
			Sourcefile: filename,
			Loader:     loaderFor(filename),
		},
		Bundle:    true,
		Format:    esbuild.FormatCommonJS,
		Platform:  esbuild.PlatformNeutral,
		Target:    esbuild.ES2020,
		Write:     false,
		LogLevel:  esbuild.LogLevelSilent,
		Charset:   esbuild.CharsetUTF8,
		Sourcemap: esbuild.SourceMapNone,
	}
	if opts.Loader != nil {
		build.Plugins = []esbuild.Plugin{loaderPlugin(opts.Loader)}
	}

	result := esbuild.Build(build)
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: %s", ErrBundle, formatMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("%w: no output", ErrBundle)
	}
	return wrap(string(result.OutputFiles[0].Contents)), nil
}

// wrap gives CommonJS output a module object and returns its exports.
func wrap(code string) string {
	var b strings.Builder
	b.Grow(len(code) + 128)
	b.WriteString("(function() {\n'use strict';\nvar module = { exports: {} }, exports = module.exports;\n")
	b.WriteString(code)
	b.WriteString("\nreturn module.exports;\n})()")
	return b.String()
}

func formatMessages(msgs []esbuild.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "; ")
}

func loaderFor(name string) esbuild.Loader {
	switch strings.ToLower(path.Ext(name)) {
	case ".ts", ".mts", ".cts":
		return esbuild.LoaderTS
	case ".tsx":
		return esbuild.LoaderTSX
	case ".jsx":
		return esbuild.LoaderJSX
	case ".json":
		return esbuild.LoaderJSON
	}
	return esbuild.LoaderJS
}

func isPathLike(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

// loaderPlugin routes bare specifiers, and relative imports made by
// loader-served modules, to load.
func loaderPlugin(load core.ModuleLoader) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "qjs-module-loader",
		Setup: func(b esbuild.PluginBuild) {
			b.OnResolve(esbuild.OnResolveOptions{Filter: `.*`}, func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
				spec, importer := args.Path, ""
				if args.Namespace == loaderNamespace {
					importer = args.Importer
					if isPathLike(spec) && !strings.HasPrefix(spec, "/") {
						spec = path.Join(path.Dir(args.Importer), spec)
					}
				} else if isPathLike(spec) {
					return esbuild.OnResolveResult{}, nil
				}
				return esbuild.OnResolveResult{
					Path:       spec,
					Namespace:  loaderNamespace,
					PluginData: importer,
				}, nil
			})
			b.OnLoad(esbuild.OnLoadOptions{Filter: `.*`, Namespace: loaderNamespace}, func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
				importer, _ := args.PluginData.(string)
				src, err := load(args.Path, importer)
				if err != nil {
					return esbuild.OnLoadResult{}, fmt.Errorf("loading %q: %w", args.Path, err)
				}
				return esbuild.OnLoadResult{Contents: &src, Loader: loaderFor(args.Path)}, nil
			})
		},
	}
}
