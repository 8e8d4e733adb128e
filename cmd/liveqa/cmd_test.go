package main

import (
	"context"
	"testing"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/config"
	"github.com/alfredjeanlab/liveqa/internal/fanout"
	"github.com/alfredjeanlab/liveqa/internal/store/memory"
	"github.com/alfredjeanlab/liveqa/internal/viewers"
)

func TestParseID(t *testing.T) {
	if n, err := parseID("12", "question id"); err != nil || n != 12 {
		t.Errorf("parseID(12) = %d, %v", n, err)
	}
	for _, bad := range []string{"", "x", "-1", "1.5"} {
		if _, err := parseID(bad, "question id"); err == nil {
			t.Errorf("parseID(%q) succeeded", bad)
		}
	}
}

func parseQuestionFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addQuestionFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	return cmd
}

func TestQuestionRequest(t *testing.T) {
	req, err := questionRequest(parseQuestionFlags(t, "--hidden", "--answered=false", "--tag", "3"))
	if err != nil {
		t.Fatalf("questionRequest: %v", err)
	}
	if req.Hidden == nil || !*req.Hidden {
		t.Error("hidden not set")
	}
	if req.Answered == nil || *req.Answered {
		t.Error("answered=false not set")
	}
	if req.Screening != nil || req.Text != nil {
		t.Error("unset flags were sent")
	}
	if req.Tag == nil || *req.Tag != 3 || req.ClearTag {
		t.Errorf("tag = %v clear = %v", req.Tag, req.ClearTag)
	}

	req, err = questionRequest(parseQuestionFlags(t, "--clear-tag"))
	if err != nil || !req.ClearTag {
		t.Errorf("clear-tag: req = %+v err = %v", req, err)
	}

	if _, err := questionRequest(parseQuestionFlags(t)); err == nil {
		t.Error("empty request accepted")
	}
	if _, err := questionRequest(parseQuestionFlags(t, "--tag", "1", "--clear-tag")); err == nil {
		t.Error("--tag with --clear-tag accepted")
	}
}

func TestDescribePayload(t *testing.T) {
	for payload, want := range map[string]string{
		fanout.PayloadQuestion(4): "question 4 changed",
		fanout.PayloadEvent:       "event info changed",
		fanout.PayloadState:       "state changed",
		fanout.PayloadTags:        "tags changed",
		fanout.PayloadDeleted:     "event deleted",
		"zz":                      "changed (zz)",
	} {
		if got := describePayload(payload); got != want {
			t.Errorf("describePayload(%q) = %q, want %q", payload, got, want)
		}
	}
}

func TestOpenMemoryBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Store: config.BackendMemory, Viewers: config.BackendMemory}

	st, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, ok := st.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", st)
	}

	cb, err := openCounter(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("openCounter: %v", err)
	}
	defer cb.close()
	if _, ok := cb.counter.(*viewers.Memory); !ok {
		t.Errorf("counter = %T, want *viewers.Memory", cb.counter)
	}
	if cb.sweep != nil {
		t.Error("memory counter should sweep itself")
	}
}

func TestOpenUnknownBackends(t *testing.T) {
	ctx := context.Background()
	if _, err := openStore(ctx, &config.Config{Store: "etcd"}); err == nil {
		t.Error("unknown store accepted")
	}
	if _, err := openCounter(ctx, &config.Config{Viewers: "redis"}, nil); err == nil {
		t.Error("unknown viewers backend accepted")
	}
}
