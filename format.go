package isoworker

import (
	"strconv"
	"strings"

	v8 "github.com/tommie/v8go"
)

// excerpt carries one captured exception plus whatever source-location
// metadata could be recovered for it. It is the formatter's only input, so
// the diagnostic layout can be tested without an isolate.
type excerpt struct {
	// Text is the exception's own text, e.g. "SyntaxError: Unexpected token".
	Text string
	// Resource, Line, SourceLine and the column range locate the failure.
	// located reports whether all of them were recovered.
	Resource   string
	Line       int
	SourceLine string
	StartCol   int
	EndCol     int
	located    bool
	// StackTrace is the engine-captured stack trace, possibly empty.
	StackTrace string
}

// format renders the excerpt as one deterministic diagnostic string.
//
// Without location metadata the diagnostic is the exception text alone.
// With it, the layout is:
//
//	<resource>:<line>
//	<source line text>
//	<spaces up to start column><carets through end column>
//	<stack trace, or the exception text if the trace is empty>
//
// each line newline-terminated. Compile-time and run-time failures share
// this layout; it is the only channel that carries diagnostic detail across
// the boundary.
func (e *excerpt) format() string {
	var out strings.Builder

	if !e.located {
		out.WriteString(e.Text)
		out.WriteString("\n")
		return out.String()
	}

	out.WriteString(e.Resource)
	out.WriteString(":")
	out.WriteString(strconv.Itoa(e.Line))
	out.WriteString("\n")

	out.WriteString(e.SourceLine)
	out.WriteString("\n")

	start, end := e.StartCol, e.EndCol
	if start < 0 {
		start = 0
	}
	if end <= start {
		end = start + 1
	}
	out.WriteString(strings.Repeat(" ", start))
	out.WriteString(strings.Repeat("^", end-start))
	out.WriteString("\n")

	if e.StackTrace != "" {
		out.WriteString(e.StackTrace)
	} else {
		out.WriteString(e.Text)
	}
	out.WriteString("\n")

	return out.String()
}

// formatJSError builds the diagnostic for an engine error. The binding
// reports the failure position as "resource:line:column" but not the source
// text at that position, so the offending line is reconstructed from the
// sources the worker has loaded. When that fails the unlocated form is used.
func formatJSError(jsErr *v8.JSError, sources map[string]string) string {
	exc := excerpt{
		Text:       jsErr.Message,
		StackTrace: jsErr.StackTrace,
	}

	if resource, line, col, ok := parseLocation(jsErr.Location); ok {
		if lineText, ok := sourceLine(sources[resource], line); ok {
			exc.Resource = resource
			exc.Line = line
			exc.SourceLine = lineText
			exc.StartCol = col
			exc.EndCol = col + 1
			exc.located = true
		}
	}

	return exc.format()
}

// parseLocation splits "resource:line:column" from the right, so resource
// names containing colons survive.
func parseLocation(loc string) (resource string, line, col int, ok bool) {
	i := strings.LastIndexByte(loc, ':')
	if i < 0 {
		return "", 0, 0, false
	}
	j := strings.LastIndexByte(loc[:i], ':')
	if j < 0 {
		return "", 0, 0, false
	}

	line, err := strconv.Atoi(loc[j+1 : i])
	if err != nil || line < 1 {
		return "", 0, 0, false
	}
	col, err = strconv.Atoi(loc[i+1:])
	if err != nil {
		return "", 0, 0, false
	}
	return loc[:j], line, col, true
}

// sourceLine extracts the 1-based line from source.
func sourceLine(source string, line int) (string, bool) {
	if source == "" || line < 1 {
		return "", false
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[line-1], "\r"), true
}
