package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/client"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List approval requests",
	GroupID: "requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		session, _ := cmd.Flags().GetString("session")
		tool, _ := cmd.Flags().GetString("tool")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		req := &client.ListRequestsRequest{
			SessionID: session,
			Tool:      tool,
			Limit:     limit,
			Offset:    offset,
		}
		if status != "" {
			req.Status = strings.Split(status, ",")
		}

		resp, err := approvalClient.ListRequests(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing requests: %w", err)
		}

		if jsonOutput {
			printJSON(resp)
		} else {
			printRequestListTable(resp.Requests, resp.Total)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (comma-separated: pending,approved,denied,timed_out)")
	listCmd.Flags().String("session", "", "filter by session ID")
	listCmd.Flags().String("tool", "", "filter by tool name")
	listCmd.Flags().Int("limit", 50, "maximum number of requests to return")
	listCmd.Flags().Int("offset", 0, "number of requests to skip")
}
