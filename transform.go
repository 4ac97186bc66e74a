package isoworker

import (
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// TranspileOptions controls the optional esbuild pass that Load applies when
// the worker was built with WithTranspile.
//
// The pass is a pure syntax transform. It deliberately does not bundle:
// import resolution would amount to a module system, which workers do not
// provide.
type TranspileOptions struct {
	// TypeScript parses the source as TypeScript and strips type
	// annotations.
	TypeScript bool
	// Minify shrinks whitespace, identifiers and syntax.
	Minify bool
}

// transpileTarget is the syntax level scripts are lowered to before they
// reach the engine.
const transpileTarget = esbuild.ES2016

// Transpile lowers source to the engine's supported syntax level. The
// sourcefile name appears in transform diagnostics; errors carry all
// diagnostic texts joined together.
func Transpile(source, sourcefile string, opts TranspileOptions) (string, error) {
	code, diag := transpileForLoad(source, sourcefile, opts)
	if diag != nil {
		return "", fmt.Errorf("transpiling %s: %s", sourcefile, diag.Text)
	}
	return code, nil
}

// transpileForLoad runs the esbuild transform and, on failure, shapes the
// first diagnostic into the same excerpt the exception formatter uses, so a
// transpile failure reads like any other compile failure.
func transpileForLoad(source, sourcefile string, opts TranspileOptions) (string, *excerpt) {
	loader := esbuild.LoaderJS
	if opts.TypeScript {
		loader = esbuild.LoaderTS
	}

	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader:            loader,
		Target:            transpileTarget,
		Sourcefile:        sourcefile,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
	})

	if len(result.Errors) > 0 {
		return "", transformExcerpt(result.Errors, sourcefile)
	}

	return string(result.Code), nil
}

// transformExcerpt converts esbuild diagnostics into a formatter excerpt.
// esbuild reports every location field directly, so no source lookup is
// needed.
func transformExcerpt(msgs []esbuild.Message, sourcefile string) *excerpt {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}

	exc := &excerpt{Text: strings.Join(texts, "; ")}

	if loc := msgs[0].Location; loc != nil {
		exc.Resource = sourcefile
		if loc.File != "" {
			exc.Resource = loc.File
		}
		exc.Line = loc.Line
		exc.SourceLine = loc.LineText
		exc.StartCol = loc.Column
		exc.EndCol = loc.Column + loc.Length
		exc.located = true
	}

	return exc
}
