// Package printer renders CLI output: coloured status lines, rich errors for
// cobra commands and palette swatches.
package printer

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"sort"
	"strings"

	fcolor "github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		fcolor.NoColor = false
	}
}

var (
	// Out and Err are the destinations for normal and error output.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	green  = fcolor.New(fcolor.FgGreen)
	yellow = fcolor.New(fcolor.FgYellow)
	red    = fcolor.New(fcolor.FgRed, fcolor.Bold)
	cyan   = fcolor.New(fcolor.FgCyan)
	faint  = fcolor.New(fcolor.Faint)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Out, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation, and suggestions to Err
// and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value context lines, printed in key order
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(Err, "\n")
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, context[k])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(Err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(Err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(Err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// Swatch returns a two-cell block painted in c. With colour disabled it
// returns two spaces so columns still line up.
func Swatch(c color.RGBA) string {
	return fcolor.BgRGB(int(c.R), int(c.G), int(c.B)).Sprint("  ")
}

// SwatchRow is one line of a palette listing.
type SwatchRow struct {
	ID   int
	Hex  string
	Name string
	RGB  color.RGBA
}

// Swatches prints one row per colour: id, swatch, hex and name.
func Swatches(rows []SwatchRow) {
	for _, r := range rows {
		fmt.Fprintf(Out, "%3d %s %s %s\n", r.ID, Swatch(r.RGB), r.Hex, faint.Sprint(r.Name))
	}
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Fprintln(Out, a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}
