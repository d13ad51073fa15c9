package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the orchestrator status snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initWatchdog(ctx, "monitor")
		if err != nil {
			return err
		}
		defer env.Close()

		status := env.Orchestrator.Status(ctx)

		if statusJSON {
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal status")
			}
			fmt.Println(string(out))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "State:\t%s\n", status.State)
		fmt.Fprintf(w, "Connector:\t%s\n", status.Connector.Health)
		if status.Connector.ConnectorID != "" {
			fmt.Fprintf(w, "Connector ID:\t%s\n", status.Connector.ConnectorID)
			fmt.Fprintf(w, "Sync state:\t%s\n", status.Connector.SyncState)
		}
		fmt.Fprintf(w, "Last schema check:\t%s\n", formatCheck(status.LastSchemaCheck))
		fmt.Fprintf(w, "Last anomaly check:\t%s\n", formatCheck(status.LastAnomalyCheck))
		fmt.Fprintf(w, "Runs:\t%d\n", status.Totals.Runs)
		fmt.Fprintf(w, "Decisions:\t%d\n", status.Totals.Decisions)
		fmt.Fprintf(w, "Actions:\t%d\n", status.Totals.Actions)
		if status.LastRun != nil {
			fmt.Fprintf(w, "Last run:\t%s (%s, %s)\n",
				status.LastRun.FinishedAt.Format(time.RFC3339),
				status.LastRun.Action, status.LastRun.Priority)
		}
		return w.Flush()
	},
}

func formatCheck(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print raw JSON")
	rootCmd.AddCommand(statusCmd)
}
