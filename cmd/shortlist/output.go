package main

import (
	"fmt"
	"io"
	"os"
)

// ANSI styles for terminal output. --no-color and NO_COLOR disable them.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// msgOut receives human-facing progress lines; stdout stays free for
// machine-readable output such as `ledger stats --json`.
var msgOut io.Writer = os.Stderr

// statusWidth aligns the values printed by printStatus.
const statusWidth = 14

type msgKind struct {
	color, mark string
}

var (
	kindSuccess = msgKind{colorGreen, "✓"}
	kindError   = msgKind{colorRed, "✗"}
	kindWarning = msgKind{colorYellow, "⚠"}
	kindStep    = msgKind{colorCyan, "→"}
)

func colorize(color, text string) string {
	if noColor || color == "" {
		return text
	}
	return color + text + colorReset
}

func emit(k msgKind, format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(k.color, k.mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { emit(kindSuccess, format, args...) }
func printError(format string, args ...any)   { emit(kindError, format, args...) }
func printWarning(format string, args ...any) { emit(kindWarning, format, args...) }
func printStep(format string, args ...any)    { emit(kindStep, format, args...) }

// printStatus prints an indented "label: value" line with values aligned.
func printStatus(label, format string, args ...any) {
	padded := fmt.Sprintf("%-*s", statusWidth, label+":")
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(colorBold, padded), fmt.Sprintf(format, args...))
}

// shortID abbreviates a run or job UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
