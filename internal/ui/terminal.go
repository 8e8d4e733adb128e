package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether stdout should get ANSI colors. In order:
// NO_COLOR disables, CLICOLOR_FORCE=1 enables, CLICOLOR=0 or TERM=dumb
// disable, otherwise color follows TTY detection.
func ShouldUseColor() bool {
	return shouldUseColor(os.Getenv, stdoutIsTerminal)
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func shouldUseColor(getenv func(string) string, isTTY func() bool) bool {
	// https://no-color.org
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" || getenv("TERM") == "dumb" {
		return false
	}
	return isTTY()
}
