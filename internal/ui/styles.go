package ui

import (
	"fmt"

	"github.com/groblegark/apgate/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorPending = 178 // amber
	colorGood    = 114 // green
	colorBad     = 167 // red
)

var noColor bool

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorAccent, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// RenderStatus returns the status string colored by outcome: amber for
// pending, green for approved, red for denied and timed_out.
func RenderStatus(status model.Status) string {
	s := string(status)
	if noColor {
		return s
	}
	var code int
	switch status {
	case model.StatusPending:
		code = colorPending
	case model.StatusApproved:
		code = colorGood
	case model.StatusDenied, model.StatusTimedOut:
		code = colorBad
	default:
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
