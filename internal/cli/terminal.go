package cli

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

// Box width bounds for formatted output.
const (
	minBoxWidth = 40
	maxBoxWidth = 120
)

// GetTerminalWidth returns the width of stdout in columns: the terminal
// size when stdout is a TTY, then COLUMNS, then 80.
func GetTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	if colStr := os.Getenv("COLUMNS"); colStr != "" {
		if width, err := strconv.Atoi(colStr); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// boxWidth clamps a terminal width to the range output boxes use.
func boxWidth(termWidth int) int {
	w := termWidth - 2
	if w < minBoxWidth {
		w = minBoxWidth
	}
	if w > maxBoxWidth {
		w = maxBoxWidth
	}
	return w
}
