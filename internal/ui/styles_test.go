package ui

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

func withColor(t *testing.T, on bool) {
	t.Helper()
	prev := noColor
	noColor = !on
	t.Cleanup(func() { noColor = prev })
}

func TestRenderState(t *testing.T) {
	withColor(t, true)
	for _, tc := range []struct {
		state model.State
		code  string
	}{
		{model.StateOpen, "38;5;114m"},
		{model.StateVotingClosed, "38;5;179m"},
		{model.StateClosed, "38;5;203m"},
	} {
		got := RenderState(tc.state)
		if !strings.Contains(got, tc.code) || !strings.Contains(got, string(tc.state)) {
			t.Errorf("RenderState(%s) = %q, want color %s", tc.state, got, tc.code)
		}
	}
	if got := RenderState("bogus"); got != "bogus" {
		t.Errorf("unknown state rendered as %q", got)
	}
}

func TestNoColor(t *testing.T) {
	withColor(t, false)
	if got := RenderState(model.StateOpen); got != "open" {
		t.Errorf("RenderState = %q, want plain", got)
	}
	if got := RenderAccent("x"); got != "x" {
		t.Errorf("RenderAccent = %q, want plain", got)
	}
	if got := RenderHealth("disconnected"); got != "disconnected" {
		t.Errorf("RenderHealth = %q, want plain", got)
	}
}

func TestShouldUseColor(t *testing.T) {
	tty := func() bool { return true }
	pipe := func() bool { return false }
	for _, tc := range []struct {
		name  string
		env   map[string]string
		isTTY func() bool
		want  bool
	}{
		{"tty", nil, tty, true},
		{"pipe", nil, pipe, false},
		{"NO_COLOR", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, tty, false},
		{"CLICOLOR_FORCE", map[string]string{"CLICOLOR_FORCE": "1"}, pipe, true},
		{"CLICOLOR=0", map[string]string{"CLICOLOR": "0"}, tty, false},
		{"dumb terminal", map[string]string{"TERM": "dumb"}, tty, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(k string) string { return tc.env[k] }
			if got := shouldUseColor(getenv, tc.isTTY); got != tc.want {
				t.Errorf("shouldUseColor = %v, want %v", got, tc.want)
			}
		})
	}
}
