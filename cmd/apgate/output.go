package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printRequestTable(r *model.Request) {
	fmt.Printf("ID:           %s\n", r.ID)
	fmt.Printf("Session:      %s\n", r.SessionID)
	fmt.Printf("Tool:         %s\n", r.Action.Tool)
	if len(r.Action.Input) > 0 {
		fmt.Printf("Input:        %s\n", ui.RenderMuted(string(r.Action.Input)))
	}
	fmt.Printf("Status:       %s\n", ui.RenderStatus(r.Status))
	fmt.Printf("Created At:   %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.RespondedAt != nil {
		fmt.Printf("Responded At: %s\n", r.RespondedAt.Format("2006-01-02 15:04:05"))
	}
	if r.RespondedBy != "" {
		fmt.Printf("Responded By: %s\n", r.RespondedBy)
	}
	if r.Reason != "" {
		fmt.Printf("Reason:       %s\n", r.Reason)
	}
}

func printRequestListTable(requests []*model.Request, total int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTOOL\tAGE\tSESSION\tRESPONDED BY")
	now := time.Now().UTC()
	for _, r := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			ui.RenderStatus(r.Status),
			r.Action.Tool,
			r.Age(now).Round(time.Second),
			r.SessionID,
			r.RespondedBy,
		)
	}
	w.Flush()
	fmt.Printf("\n%d requests (%d total)\n", len(requests), total)
}

func printStatsTable(stats *model.Stats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range []model.Status{
		model.StatusPending, model.StatusApproved, model.StatusDenied, model.StatusTimedOut,
	} {
		if n, ok := stats.ByStatus[s]; ok {
			fmt.Fprintf(w, "%s\t%d\n", ui.RenderStatus(s), n)
		}
	}
	w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCOUNT")
	tools := make([]string, 0, len(stats.ByTool))
	for tool := range stats.ByTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		fmt.Fprintf(w, "%s\t%d\n", tool, stats.ByTool[tool])
	}
	w.Flush()

	fmt.Printf("\n%d requests total, %d in the last hour\n", stats.Total, stats.RecentHour)
}
