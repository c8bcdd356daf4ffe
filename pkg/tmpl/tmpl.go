// Package tmpl renders the shell command templates of message hooks.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

// shellQuote returns s wrapped in single quotes, with embedded single quotes
// written as '\''.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(n int, s string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

// oneLine collapses newlines and runs of whitespace into single spaces.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var funcs = template.FuncMap{
	"shq":     shellQuote,
	"trunc":   truncate,
	"oneline": oneLine,
}

func parse(tmpl string) (*template.Template, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// Check reports whether tmpl parses.
func Check(tmpl string) error {
	_, err := parse(tmpl)
	return err
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - shq: shell-quote a string
//   - trunc N: cut a string to N runes
//   - oneline: collapse whitespace and newlines
func Render(tmpl string, data any) (string, error) {
	t, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
