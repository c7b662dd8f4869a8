package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures message formatting
type ErrorOptions struct {
	Level       ErrorLevel
	Context     string
	Problem     string
	Details     []string
	Suggestions []string
	Hint        string
	NoColor     bool
}

// FormatError formats a message with optional details, suggestions and a hint
//
// Example output:
//
//	✗ ENTITY NOT FOUND: Prodcut
//	   Did you mean: Product?
//	   → List entities: ormcore order
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	symbol := "✗"
	head := newColor(opts.NoColor)
	switch opts.Level {
	case ErrorLevelError:
		head = newColor(opts.NoColor, color.FgRed, color.Bold)
	case ErrorLevelWarning:
		symbol = "!"
		head = newColor(opts.NoColor, color.FgYellow, color.Bold)
	case ErrorLevelInfo:
		symbol = "i"
		head = newColor(opts.NoColor, color.FgCyan, color.Bold)
	}

	if opts.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	for _, d := range opts.Details {
		for _, line := range strings.Split(strings.TrimRight(d, "\n"), "\n") {
			fmt.Fprintf(&b, "   %s\n", line)
		}
	}

	if len(opts.Suggestions) > 0 {
		newColor(opts.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if opts.Hint != "" {
		newColor(opts.NoColor, color.FgCyan).Fprintf(&b, "   → %s\n", opts.Hint)
	}

	return b.String()
}

// WriteError writes a formatted message
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess formats a success line
func FormatSuccess(message string, noColor bool) string {
	return newColor(noColor, color.FgGreen, color.Bold).Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// NotFoundError formats an unknown-name error with close matches
func NotFoundError(kind, name string, candidates []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     kind + " not found",
		Problem:     name,
		Suggestions: Suggest(name, candidates),
		Hint:        "List entities: ormcore order",
		NoColor:     noColor,
	})
}

// ModelError formats a model that failed to build. Joined errors are listed
// one per line.
func ModelError(path string, err error, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "invalid model",
		Problem: path,
		Details: []string{err.Error()},
		Hint:    "Check the model file with: ormcore validate",
		NoColor: noColor,
	})
}
