// Package shellformat renders shell command lines for log output.
//
// It uses mvdan.cc/sh/v3/syntax (the shfmt parser) for quoting and
// normalization, so the logged line is valid shell that can be copy-pasted
// and executed directly.
package shellformat

import (
	"bytes"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command renders an argv as a single properly quoted shell line.
// Arguments containing shell metacharacters are quoted; plain words are
// left bare.
func Command(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteWord(name))
	for _, arg := range args {
		parts = append(parts, quoteWord(arg))
	}
	return strings.Join(parts, " ")
}

func quoteWord(w string) string {
	quoted, err := syntax.Quote(w, syntax.LangBash)
	if err != nil {
		// Control characters the shell can't represent; fall back to the
		// raw word rather than dropping it from the log line.
		return w
	}
	return quoted
}

// Normalize parses a shell one-liner and reprints it in canonical form
// (normalized spacing, space-separated redirects). On parse error the input
// is returned unchanged.
func Normalize(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(input), "")
	if err != nil {
		return input
	}

	printer := syntax.NewPrinter(syntax.Indent(2), syntax.SpaceRedirects(true))
	var buf bytes.Buffer
	if err := printer.Print(&buf, prog); err != nil {
		return input
	}
	return strings.TrimRight(buf.String(), "\n")
}
