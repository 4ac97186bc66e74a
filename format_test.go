package isoworker

import "testing"

func TestFormat_WithoutLocation(t *testing.T) {
	exc := excerpt{Text: "Error: boom"}

	if got, want := exc.format(), "Error: boom\n"; got != want {
		t.Errorf("format() = %q, want %q", got, want)
	}
}

func TestFormat_WithLocation(t *testing.T) {
	exc := excerpt{
		Text:       "ReferenceError: nope is not defined",
		Resource:   "app.js",
		Line:       3,
		SourceLine: "var x = nope;",
		StartCol:   8,
		EndCol:     12,
		located:    true,
		StackTrace: "ReferenceError: nope is not defined\n    at app.js:3:9",
	}

	want := "app.js:3\n" +
		"var x = nope;\n" +
		"        ^^^^\n" +
		"ReferenceError: nope is not defined\n    at app.js:3:9\n"
	if got := exc.format(); got != want {
		t.Errorf("format() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormat_EmptyStackTraceFallsBackToText(t *testing.T) {
	exc := excerpt{
		Text:       "SyntaxError: Unexpected token ';'",
		Resource:   "bad.js",
		Line:       1,
		SourceLine: "var x = ;",
		StartCol:   8,
		EndCol:     9,
		located:    true,
	}

	want := "bad.js:1\n" +
		"var x = ;\n" +
		"        ^\n" +
		"SyntaxError: Unexpected token ';'\n"
	if got := exc.format(); got != want {
		t.Errorf("format() =\n%q\nwant\n%q", got, want)
	}
}

func TestFormat_DegenerateColumnsStillUnderline(t *testing.T) {
	exc := excerpt{
		Text:       "Error: x",
		Resource:   "a.js",
		Line:       1,
		SourceLine: "throw 1;",
		StartCol:   5,
		EndCol:     5, // end before/at start collapses to one caret
		located:    true,
	}

	want := "a.js:1\n" +
		"throw 1;\n" +
		"     ^\n" +
		"Error: x\n"
	if got := exc.format(); got != want {
		t.Errorf("format() =\n%q\nwant\n%q", got, want)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		loc      string
		resource string
		line     int
		col      int
		ok       bool
	}{
		{"app.js:3:9", "app.js", 3, 9, true},
		{"dir/app.js:12:1", "dir/app.js", 12, 1, true},
		{"odd:name.js:7:0", "odd:name.js", 7, 0, true},
		{"app.js", "", 0, 0, false},
		{"app.js:x:1", "", 0, 0, false},
		{"", "", 0, 0, false},
	}
	for _, tt := range tests {
		resource, line, col, ok := parseLocation(tt.loc)
		if ok != tt.ok || resource != tt.resource || line != tt.line || col != tt.col {
			t.Errorf("parseLocation(%q) = (%q, %d, %d, %v), want (%q, %d, %d, %v)",
				tt.loc, resource, line, col, ok, tt.resource, tt.line, tt.col, tt.ok)
		}
	}
}

func TestSourceLine(t *testing.T) {
	src := "one\ntwo\r\nthree"

	tests := []struct {
		line int
		want string
		ok   bool
	}{
		{1, "one", true},
		{2, "two", true}, // trailing \r stripped
		{3, "three", true},
		{0, "", false},
		{4, "", false},
	}
	for _, tt := range tests {
		got, ok := sourceLine(src, tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("sourceLine(%d) = (%q, %v), want (%q, %v)", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatJSError_UnknownResourceFallsBack(t *testing.T) {
	// A location pointing at a script the worker never loaded cannot be
	// excerpted; the formatter degrades to the text-only form.
	sources := map[string]string{"known.js": "var a = 1;"}

	exc := excerpt{Text: "Error: lost"}
	got := exc.format()
	if got != "Error: lost\n" {
		t.Fatalf("format() = %q", got)
	}

	if line, ok := sourceLine(sources["missing.js"], 1); ok {
		t.Errorf("sourceLine for unknown resource = %q, want miss", line)
	}
}
