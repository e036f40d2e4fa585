package tui

import "strings"

// truncateText shortens text to width runes, ending in "..." when cut.
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	text = strings.ReplaceAll(text, "\n", " ")
	r := []rune(text)
	if len(r) <= width {
		return text
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
