package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/client"
	"github.com/alfredjeanlab/liveqa/internal/model"
)

// parseID parses a numeric question, tag or link argument.
func parseID(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a non-negative integer", what, s)
	}
	return n, nil
}

var createCmd = &cobra.Command{
	Use:     "create <name>",
	Short:   "Create a new event",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")

		ev, err := qaClient.CreateEvent(context.Background(), model.Info{
			Name:        args[0],
			Description: description,
			Color:       color,
		})
		if err != nil {
			return fmt.Errorf("creating event: %w", err)
		}

		if jsonOutput {
			printJSON(ev)
		} else {
			printEventTable(os.Stdout, ev)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <token>",
	Short:   "Show an event and its questions",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		top, _ := cmd.Flags().GetBool("top")

		ev, err := qaClient.GetEvent(context.Background(), token)
		if err != nil {
			return fmt.Errorf("getting event %s: %w", token, err)
		}

		if jsonOutput {
			printJSON(ev)
			return nil
		}
		printEventTable(os.Stdout, ev)
		if len(ev.Questions) > 0 {
			fmt.Println()
			qs := ev.Questions
			if top {
				qs = sortQuestions(qs)
			}
			printQuestionTable(os.Stdout, ev, qs)
		}
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <token>",
	Short:   "Edit event name, description or color",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		req := &client.EditEventRequest{}
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			req.Name = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			req.Description = &v
		}
		if cmd.Flags().Changed("color") {
			v, _ := cmd.Flags().GetString("color")
			req.Color = &v
		}
		if req.Name == nil && req.Description == nil && req.Color == nil {
			return fmt.Errorf("nothing to edit: pass --name, --description or --color")
		}

		ev, err := qaClient.EditEvent(context.Background(), token, req)
		if err != nil {
			return fmt.Errorf("editing event %s: %w", token, err)
		}
		if jsonOutput {
			printJSON(ev)
		} else {
			printEventTable(os.Stdout, ev)
		}
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:     "state <token> <open|voting_closed|closed>",
	Short:   "Change the state of an event",
	GroupID: "events",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		state := model.State(args[1])
		if !state.IsValid() {
			return fmt.Errorf("invalid state %q (must be open, voting_closed or closed)", args[1])
		}

		ev, err := qaClient.SetState(context.Background(), token, state)
		if err != nil {
			return fmt.Errorf("setting state of %s: %w", token, err)
		}
		if jsonOutput {
			printJSON(ev)
		} else {
			fmt.Printf("Event %s is now %s\n", token, ev.State)
		}
		return nil
	},
}

var passwordCmd = &cobra.Command{
	Use:     "password <token> [password]",
	Short:   "Set or clear the event password",
	GroupID: "events",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		clearPW, _ := cmd.Flags().GetBool("clear")

		var pw *string
		switch {
		case clearPW && len(args) == 2:
			return fmt.Errorf("pass either a password or --clear, not both")
		case clearPW:
		case len(args) == 2:
			pw = &args[1]
		default:
			return fmt.Errorf("missing password (or --clear)")
		}

		if err := qaClient.SetPassword(context.Background(), token, pw); err != nil {
			return fmt.Errorf("setting password of %s: %w", token, err)
		}
		if pw == nil {
			fmt.Printf("Cleared password of %s\n", token)
		} else {
			fmt.Printf("Set password of %s\n", token)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <token>",
	Short:   "Delete an event",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		if err := qaClient.DeleteEvent(context.Background(), token); err != nil {
			return fmt.Errorf("deleting event %s: %w", token, err)
		}
		fmt.Printf("Deleted %s\n", token)
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "event description")
	createCmd.Flags().String("color", "", "event color")

	showCmd.Flags().Bool("top", false, "order questions by likes")

	editCmd.Flags().String("name", "", "new event name")
	editCmd.Flags().StringP("description", "d", "", "new description")
	editCmd.Flags().String("color", "", "new color")

	passwordCmd.Flags().Bool("clear", false, "remove the password")
}
