package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events <id>",
	Short:   "Show the audit trail of an approval request",
	GroupID: "requests",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		evts, err := approvalClient.GetEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting events for %s: %w", id, err)
		}

		if jsonOutput {
			printJSON(evts)
			return nil
		}

		if len(evts) == 0 {
			fmt.Println("no events")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTOPIC\tACTOR")
		for _, e := range evts {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.Topic,
				e.Actor,
			)
		}
		return w.Flush()
	},
}
