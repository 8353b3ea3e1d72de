package main

import (
	"fmt"
	"os"
	"strings"
)

// Two output streams with a fixed contract: answers, transcripts, and
// listings go to stdout so they stay pipeable; status, progress, and error
// lines go to stderr. --no-color disables the ANSI escapes on both.

type color string

const (
	colorReset  color = "\033[0m"
	colorRed    color = "\033[31m"
	colorGreen  color = "\033[32m"
	colorYellow color = "\033[33m"
	colorCyan   color = "\033[36m"
	colorBold   color = "\033[1m"
)

func colorize(c color, text string) string {
	if noColor {
		return text
	}
	return string(c) + text + string(colorReset)
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

// printStatus renders one "Label: value" line, as in `briefd status`.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printStep reports progress of a long-running action (sync polling, chat
// working notices, upload validation).
func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

// printAnswer writes an assistant answer to stdout with exactly one trailing
// newline, whatever the server sent.
func printAnswer(text string) {
	fmt.Println(strings.TrimRight(text, "\n"))
}

// printTurn renders one transcript turn with a colored role header.
func printTurn(role, content string) {
	fmt.Printf("%s\n%s\n\n", colorize(colorCyan, role+":"), content)
}

// printKV renders one config key line, as in `briefd config show`.
func printKV(key, value string) {
	fmt.Printf("  %s = %s\n", colorize(colorBold, key), value)
}

// shortID abbreviates a session ID for list output. IDs are UUIDs in
// practice, but the server response is not trusted to be that long.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
