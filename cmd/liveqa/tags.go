package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	Short:   "Manage the tag catalog of an event",
	GroupID: "events",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <token> <name>",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, err := qaClient.AddTag(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("adding tag: %w", err)
		}
		if jsonOutput {
			printJSON(tag)
		} else {
			fmt.Printf("Added tag %d: %s\n", tag.ID, tag.Name)
		}
		return nil
	},
}

var tagRemoveCmd = &cobra.Command{
	Use:   "remove <token> <tag-id>",
	Short: "Remove a tag and untag its questions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1], "tag id")
		if err != nil {
			return err
		}
		if err := qaClient.RemoveTag(context.Background(), args[0], id); err != nil {
			return fmt.Errorf("removing tag %d: %w", id, err)
		}
		fmt.Printf("Removed tag %d\n", id)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:     "link",
	Short:   "Manage context links of an event",
	GroupID: "events",
}

var linkAddCmd = &cobra.Command{
	Use:   "add <token> <url>",
	Short: "Attach a context link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		link := model.ContextLink{URL: args[1], Title: title}
		if err := qaClient.AddContextLink(context.Background(), args[0], link); err != nil {
			return fmt.Errorf("adding link: %w", err)
		}
		fmt.Printf("Added link %s\n", link.URL)
		return nil
	},
}

var linkRemoveCmd = &cobra.Command{
	Use:   "remove <token> <index>",
	Short: "Detach the context link at index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseID(args[1], "link index")
		if err != nil {
			return err
		}
		if err := qaClient.RemoveContextLink(context.Background(), args[0], index); err != nil {
			return fmt.Errorf("removing link %d: %w", index, err)
		}
		fmt.Printf("Removed link %d\n", index)
		return nil
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd, tagRemoveCmd)

	linkAddCmd.Flags().String("title", "", "link title")
	linkCmd.AddCommand(linkAddCmd, linkRemoveCmd)
}
