package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/apgate/internal/client"
	"github.com/groblegark/apgate/internal/events"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Watch for pending approval requests",
	GroupID: "requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		seen := make(map[string]model.Status)

		// Show current state before waiting for changes.
		if err := queryAndPrint(ctx, seen); err != nil {
			return err
		}

		if natsURL := os.Getenv("APGATE_NATS_URL"); natsURL != "" {
			return watchNATS(ctx, natsURL, seen)
		}
		return watchPoll(ctx, interval, seen)
	},
}

// watchNATS renders approval events as they arrive on the bus. Each payload
// carries the full request snapshot, so no re-query is needed; disconnects
// and reconnects are logged by the subscriber itself.
func watchNATS(ctx context.Context, natsURL string, seen map[string]model.Status) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sub, err := events.NewNATSSubscriber(natsURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("approvals.>")
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printIfChanged(msg.Request, seen)
		}
	}
}

// watchPoll re-queries on a fixed interval when no event bus is configured.
func watchPoll(ctx context.Context, interval time.Duration, seen map[string]model.Status) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := queryAndPrint(ctx, seen); err != nil {
				return err
			}
		}
	}
}

// queryAndPrint lists recent requests and prints any that are new or whose
// status changed since the last query.
func queryAndPrint(ctx context.Context, seen map[string]model.Status) error {
	resp, err := approvalClient.ListRequests(ctx, &client.ListRequestsRequest{Limit: 100})
	if err != nil {
		return fmt.Errorf("listing requests: %w", err)
	}

	for _, r := range resp.Requests {
		printIfChanged(r, seen)
	}
	return nil
}

// printIfChanged prints one request line when it is new or its status moved
// since the last print.
func printIfChanged(r *model.Request, seen map[string]model.Status) {
	if r == nil {
		return
	}
	prev, known := seen[r.ID]
	if known && prev == r.Status {
		return
	}
	seen[r.ID] = r.Status

	if jsonOutput {
		data, _ := json.Marshal(r)
		fmt.Println(string(data))
		return
	}
	ts := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s %s %s", ts, r.ID, ui.RenderStatus(r.Status), r.Action.Text())
	if r.RespondedBy != "" {
		line += " (by " + r.RespondedBy + ")"
	}
	fmt.Println(line)
}

func init() {
	watchCmd.Flags().Duration("interval", 2*time.Second, "polling interval when NATS is not configured")
}
