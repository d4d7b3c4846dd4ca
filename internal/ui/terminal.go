package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// stdoutIsTerminal is a variable so tests can run without a real TTY.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether stdout should carry ANSI colors.
// Precedence: NO_COLOR (any value disables, https://no-color.org), then
// CLICOLOR_FORCE (any value but "0" forces color even without a TTY), then
// CLICOLOR=0 disables, then TTY detection decides.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force := strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")); force != "" && force != "0" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return stdoutIsTerminal()
}
