package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/liveqa/internal/client"
	"github.com/alfredjeanlab/liveqa/internal/server"
	"github.com/alfredjeanlab/liveqa/internal/ui"
)

type healthReport struct {
	Status string `json:"status"`
	Fanout string `json:"fanout"`
	GRPC   string `json:"grpc,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the liveqa service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		checkGRPC, _ := cmd.Flags().GetBool("grpc")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := qaClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		report := healthReport{Status: resp.Status, Fanout: resp.Fanout}

		if checkGRPC {
			hc, err := client.NewHealthClient(grpcAddr)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", grpcAddr, err)
			}
			defer hc.Close()
			status, err := hc.Check(ctx, server.FanoutService)
			if err != nil {
				return fmt.Errorf("checking gRPC health: %w", err)
			}
			report.GRPC = status
		}

		if jsonOutput {
			printJSON(report)
		} else {
			fmt.Printf("Health: %s\n", ui.RenderHealth(report.Status))
			fmt.Printf("Fanout: %s\n", ui.RenderHealth(report.Fanout))
			if report.GRPC != "" {
				fmt.Printf("gRPC:   %s\n", report.GRPC)
			}
		}

		if report.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", report.Status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("grpc", false, "also query the gRPC health service")
}
