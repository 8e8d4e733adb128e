package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/client"
	"github.com/alfredjeanlab/liveqa/internal/model"
)

var askCmd = &cobra.Command{
	Use:     "ask <token> <text>",
	Short:   "Ask a question",
	GroupID: "questions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tag *int
		if cmd.Flags().Changed("tag") {
			v, _ := cmd.Flags().GetInt("tag")
			tag = &v
		}

		q, err := qaClient.AddQuestion(context.Background(), args[0], args[1], tag)
		if err != nil {
			return fmt.Errorf("asking question: %w", err)
		}
		printQuestionResult(q)
		return nil
	},
}

// voteCommand builds like/unlike, which differ only in the client call.
func voteCommand(use, short, verb string, call func(context.Context, string, int) (*model.Question, error)) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <token> <question-id>",
		Short:   short,
		GroupID: "questions",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1], "question id")
			if err != nil {
				return err
			}
			q, err := call(context.Background(), args[0], id)
			if err != nil {
				return fmt.Errorf("%s question %d: %w", verb, id, err)
			}
			if jsonOutput {
				printJSON(q)
			} else {
				fmt.Printf("Question %d has %d likes\n", q.ID, q.Likes)
			}
			return nil
		},
	}
}

var likeCmd = voteCommand("like", "Like a question", "liking", func(ctx context.Context, token string, id int) (*model.Question, error) {
	return qaClient.LikeQuestion(ctx, token, id)
})

var unlikeCmd = voteCommand("unlike", "Take back a like", "unliking", func(ctx context.Context, token string, id int) (*model.Question, error) {
	return qaClient.UnlikeQuestion(ctx, token, id)
})

var questionCmd = &cobra.Command{
	Use:     "question <token> <question-id>",
	Aliases: []string{"flag"},
	Short:   "Edit, flag or tag a question",
	GroupID: "questions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1], "question id")
		if err != nil {
			return err
		}
		req, err := questionRequest(cmd)
		if err != nil {
			return err
		}

		q, err := qaClient.UpdateQuestion(context.Background(), args[0], id, req)
		if err != nil {
			return fmt.Errorf("updating question %d: %w", id, err)
		}
		printQuestionResult(q)
		return nil
	},
}

// questionRequest collects the flags the user actually set.
func questionRequest(cmd *cobra.Command) (*client.UpdateQuestionRequest, error) {
	f := cmd.Flags()
	req := &client.UpdateQuestionRequest{}
	set := false
	if f.Changed("text") {
		v, _ := f.GetString("text")
		req.Text = &v
		set = true
	}
	for name, dst := range map[string]**bool{
		"hidden":    &req.Hidden,
		"answered":  &req.Answered,
		"screening": &req.Screening,
	} {
		if f.Changed(name) {
			v, _ := f.GetBool(name)
			*dst = &v
			set = true
		}
	}
	clearTag, _ := f.GetBool("clear-tag")
	if f.Changed("tag") {
		if clearTag {
			return nil, fmt.Errorf("pass either --tag or --clear-tag, not both")
		}
		v, _ := f.GetInt("tag")
		req.Tag = &v
		set = true
	}
	if clearTag {
		req.ClearTag = true
		set = true
	}
	if !set {
		return nil, fmt.Errorf("nothing to change: pass --text, --hidden, --answered, --screening, --tag or --clear-tag")
	}
	return req, nil
}

var removeCmd = &cobra.Command{
	Use:     "remove <token> <question-id>",
	Short:   "Delete a question",
	GroupID: "questions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1], "question id")
		if err != nil {
			return err
		}
		if err := qaClient.DeleteQuestion(context.Background(), args[0], id); err != nil {
			return fmt.Errorf("deleting question %d: %w", id, err)
		}
		fmt.Printf("Deleted question %d\n", id)
		return nil
	},
}

func printQuestionResult(q *model.Question) {
	if jsonOutput {
		printJSON(q)
	} else {
		printQuestion(os.Stdout, q)
	}
}

func init() {
	askCmd.Flags().Int("tag", 0, "tag id from the event catalog")

	addQuestionFlags(questionCmd)
}

func addQuestionFlags(cmd *cobra.Command) {
	cmd.Flags().String("text", "", "new question text")
	cmd.Flags().Bool("hidden", false, "hide or unhide (--hidden=false)")
	cmd.Flags().Bool("answered", false, "mark answered or unanswered")
	cmd.Flags().Bool("screening", false, "hold for or release from screening")
	cmd.Flags().Int("tag", 0, "tag id to set")
	cmd.Flags().Bool("clear-tag", false, "remove the question's tag")
}
