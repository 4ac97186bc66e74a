package isoworker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranspile_PassThroughPlainScript(t *testing.T) {
	out, err := Transpile("var a = 1;", "plain.js", TranspileOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "var a = 1")
}

func TestTranspile_StripsTypeScriptAnnotations(t *testing.T) {
	out, err := Transpile("let x: number = 1;", "typed.ts", TranspileOptions{TypeScript: true})
	require.NoError(t, err)
	assert.NotContains(t, out, ": number")
	assert.Contains(t, out, "x = 1")
}

func TestTranspile_MinifyShrinksOutput(t *testing.T) {
	src := `
		var greeting = "hello";
		function shout(word) {
			return word + "!";
		}
		var result = shout(greeting);
	`
	pretty, err := Transpile(src, "m.js", TranspileOptions{})
	require.NoError(t, err)
	min, err := Transpile(src, "m.js", TranspileOptions{Minify: true})
	require.NoError(t, err)
	assert.Less(t, len(min), len(pretty))
}

func TestTranspile_SyntaxErrorReported(t *testing.T) {
	_, err := Transpile("let x = ;", "broken.js", TranspileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.js")
}

func TestTranspileForLoad_DiagnosticIsLocated(t *testing.T) {
	_, diag := transpileForLoad("let x = ;", "broken.js", TranspileOptions{})
	require.NotNil(t, diag)
	assert.True(t, diag.located)
	assert.Equal(t, 1, diag.Line)

	formatted := diag.format()
	assert.True(t, strings.HasPrefix(formatted, "broken.js:1\n"), "got:\n%s", formatted)
}

func TestWorker_TranspileFailureIsCompileError(t *testing.T) {
	w := newTestWorker(t, Handlers{}, WithTranspile(TranspileOptions{}))

	st := w.Load("broken.js", "let x = ;")
	require.Equal(t, StatusCompileError, st)
	assert.True(t, strings.HasPrefix(w.LastException(), "broken.js:1"), "got:\n%s", w.LastException())
}

func TestWorker_TranspiledScriptRuns(t *testing.T) {
	w := newTestWorker(t, Handlers{}, WithTranspile(TranspileOptions{}))

	mustLoad(t, w, "arrow.js", `
		const double = (n) => n * 2;
		registerSyncHandler(() => String(double(21)));
	`)
	assert.Equal(t, "42", w.SendSync(""))
}
