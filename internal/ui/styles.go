package ui

import (
	"fmt"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderState colors an event state: open is green, voting_closed amber,
// closed red.
func RenderState(s model.State) string {
	switch s {
	case model.StateOpen:
		return render(colorOK, s.String())
	case model.StateVotingClosed:
		return render(colorWarn, s.String())
	case model.StateClosed:
		return render(colorFail, s.String())
	}
	return s.String()
}

// RenderHealth colors a health or fanout status word.
func RenderHealth(status string) string {
	switch status {
	case "ok", "connected":
		return render(colorOK, status)
	case "":
		return status
	}
	return render(colorFail, status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Init disables colors when stdout should not get them.
func Init() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}
