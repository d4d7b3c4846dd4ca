package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/client"
	"github.com/groblegark/apgate/internal/ui"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool
	responder  string

	approvalClient client.ApprovalClient
)

func defaultResponder() string {
	if r := os.Getenv("APGATE_RESPONDER"); r != "" {
		return r
	}
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			return name
		}
	}
	return "unknown"
}

func defaultHTTPURL() string {
	if s := os.Getenv("APGATE_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8765"
}

var rootCmd = &cobra.Command{
	Use:   "apgate <command>",
	Short: "CLI client for the apgate approval service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		approvalClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if approvalClient != nil {
			approvalClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("APGATE_AUTH_TOKEN"), "bearer token for authentication")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&responder, "responder", defaultResponder(), "responder name for decisions")

	rootCmd.AddGroup(
		&cobra.Group{ID: "requests", Title: "Requests:"},
		&cobra.Group{ID: "decisions", Title: "Decisions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Requests
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(eventsCmd)

	// Decisions
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
