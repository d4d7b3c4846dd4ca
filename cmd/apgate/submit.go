package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/client"
)

var submitCmd = &cobra.Command{
	Use:     "submit <tool>",
	Short:   "Submit an approval request",
	GroupID: "requests",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		input, _ := cmd.Flags().GetString("input")

		req := &client.SubmitRequest{
			SessionID: sessionID,
			Tool:      args[0],
		}
		if input != "" {
			if !json.Valid([]byte(input)) {
				return fmt.Errorf("--input must be valid JSON")
			}
			req.ToolInput = json.RawMessage(input)
		}

		created, err := approvalClient.SubmitRequest(context.Background(), req)
		if err != nil {
			return fmt.Errorf("submitting request: %w", err)
		}

		if jsonOutput {
			printJSON(created)
		} else {
			fmt.Printf("Submitted %s (pending approval)\n", created.ID)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().String("session", "", "session ID to associate with the request")
	submitCmd.Flags().String("input", "", "tool input as a JSON object")
}
