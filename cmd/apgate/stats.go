package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show request counts by status and tool",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := approvalClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		if jsonOutput {
			printJSON(stats)
		} else {
			printStatsTable(stats)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	Short:   "Delete old resolved requests",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		n, err := approvalClient.Cleanup(context.Background(), olderThan)
		if err != nil {
			return fmt.Errorf("cleaning up: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]int{"deleted": n})
		} else {
			fmt.Printf("Deleted %d resolved requests older than %s\n", n, olderThan)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := approvalClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Println(status)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Duration("older-than", 24*time.Hour, "delete resolved requests older than this")
}
