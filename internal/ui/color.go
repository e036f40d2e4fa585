// Package ui holds the terminal palette and status symbols used by the CLI.
package ui

import (
	"github.com/fatih/color"
)

// Palette. Each func renders its arguments plainly when colors are off.
var (
	Success = color.New(color.FgGreen).SprintFunc()
	Error   = color.New(color.FgRed).SprintFunc()
	Warning = color.New(color.FgYellow).SprintFunc()
	Info    = color.New(color.FgCyan).SprintFunc()
	Bold    = color.New(color.Bold).SprintFunc()
	Dim     = color.New(color.Faint).SprintFunc()
	Header  = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolDeleted = "−"
	SymbolCreated = "+"
	SymbolUpdated = "~"
)

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string {
	return status(Success, SymbolSuccess, msg)
}

// StatusError returns a red cross with optional message.
func StatusError(msg string) string {
	return status(Error, SymbolError, msg)
}

// StatusWarning returns a yellow warning sign with optional message.
func StatusWarning(msg string) string {
	return status(Warning, SymbolWarning, msg)
}

// StatusSkipped returns a dimmed dash with optional message.
func StatusSkipped(msg string) string {
	return status(Dim, SymbolSkipped, msg)
}

func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// Action renders a sync action name ("created", "updated", "deleted",
// "skipped", "failed") with its symbol and color. Unknown names pass
// through unchanged.
func Action(name string) string {
	switch name {
	case "created":
		return Success(SymbolCreated + " " + name)
	case "updated":
		return Info(SymbolUpdated + " " + name)
	case "deleted":
		return Warning(SymbolDeleted + " " + name)
	case "skipped":
		return Dim(SymbolSkipped + " " + name)
	case "failed":
		return Error(SymbolError + " " + name)
	default:
		return name
	}
}

// DisableColors turns off color output, for --no-color and NO_COLOR.
func DisableColors() {
	color.NoColor = true
}

// EnableColors turns color output back on.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}
