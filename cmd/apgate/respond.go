package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/client"
	"github.com/groblegark/apgate/internal/ui"
)

var approveCmd = &cobra.Command{
	Use:     "approve <id>",
	Short:   "Approve a pending request",
	GroupID: "decisions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return respond(args[0], "approve", reason)
	},
}

var denyCmd = &cobra.Command{
	Use:     "deny <id>",
	Short:   "Deny a pending request",
	GroupID: "decisions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return respond(args[0], "deny", reason)
	},
}

func respond(id, decision, reason string) error {
	req, err := approvalClient.Respond(context.Background(), id, &client.RespondRequest{
		Decision:    decision,
		RespondedBy: responder,
		Reason:      reason,
	})
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return fmt.Errorf("too late: %s", apiErr.Message)
		}
		return fmt.Errorf("responding to %s: %w", id, err)
	}

	if jsonOutput {
		printJSON(req)
	} else {
		fmt.Printf("%s is now %s (by %s)\n", req.ID, ui.RenderStatus(req.Status), req.RespondedBy)
	}
	return nil
}

func init() {
	approveCmd.Flags().String("reason", "", "optional reason for the decision")
	denyCmd.Flags().String("reason", "", "optional reason for the decision")
}
