package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/client"
	"github.com/alfredjeanlab/liveqa/internal/ui"
)

var (
	httpURL    string
	grpcAddr   string
	jsonOutput bool

	qaClient client.QAClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("LIVEQA_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("LIVEQA_GRPC_URL"); s != "" {
		return s
	}
	return "localhost:9090"
}

var rootCmd = &cobra.Command{
	Use:          "liveqa <command>",
	Short:        "Live Q&A server and CLI client",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init()
		qaClient = client.NewHTTPClient(httpURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if qaClient != nil {
			qaClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", defaultGRPCAddr(), "gRPC server address (health checks)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "questions", Title: "Questions:"},
		&cobra.Group{ID: "live", Title: "Live:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Events
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(deleteCmd)

	// Questions
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unlikeCmd)
	rootCmd.AddCommand(questionCmd)
	rootCmd.AddCommand(removeCmd)

	// Live
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(viewersCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
