package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/client"
	"github.com/alfredjeanlab/liveqa/internal/fanout"
	"github.com/alfredjeanlab/liveqa/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <token>",
	Short:   "Stream live changes of an event",
	GroupID: "live",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		resolve, _ := cmd.Flags().GetBool("resolve")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !jsonOutput {
			fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", token)
		}
		err := qaClient.Watch(ctx, token, func(n client.Notification) {
			if jsonOutput {
				printJSON(n)
				return
			}
			printNotification(ctx, os.Stdout, n, resolve)
		})
		if err != nil {
			return fmt.Errorf("watching %s: %w", token, err)
		}
		return nil
	},
}

// describePayload turns a change hint into a short human description.
func describePayload(payload string) string {
	if id, ok := fanout.QuestionID(payload); ok {
		return fmt.Sprintf("question %d changed", id)
	}
	switch payload {
	case fanout.PayloadEvent:
		return "event info changed"
	case fanout.PayloadState:
		return "state changed"
	case fanout.PayloadTags:
		return "tags changed"
	case fanout.PayloadDeleted:
		return "event deleted"
	}
	return "changed (" + payload + ")"
}

// printNotification prints one line per hint. With resolve, question hints
// are followed by a fetch of the question's current state.
func printNotification(ctx context.Context, w io.Writer, n client.Notification, resolve bool) {
	ts := ui.RenderMuted(time.Now().Format("15:04:05"))
	fmt.Fprintf(w, "[%s] #%d %s\n", ts, n.ID, describePayload(n.Payload))
	if !resolve {
		return
	}
	id, ok := fanout.QuestionID(n.Payload)
	if !ok {
		return
	}
	ev, err := qaClient.GetEvent(ctx, n.Event)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  fetching event: %v\n", err)
		return
	}
	q, err := ev.Question(id)
	if err != nil {
		fmt.Fprintf(w, "  question %d is gone\n", id)
		return
	}
	fmt.Fprintf(w, "  %d likes  %s\n", q.Likes, q.Text)
}

var viewersCmd = &cobra.Command{
	Use:     "viewers <token>",
	Short:   "Show how many clients are watching an event",
	GroupID: "live",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := qaClient.ViewerCount(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("counting viewers: %w", err)
		}
		if jsonOutput {
			printJSON(map[string]int64{"viewers": n})
		} else {
			fmt.Printf("Viewers: %d\n", n)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("resolve", false, "fetch the current state of changed questions")
}
