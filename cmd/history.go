package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipewarden/internal/history"
)

var (
	historyLimit int
	historyJSON  bool
)

// openStore validates history-mode config and opens the persisted store.
func openStore(cmd *cobra.Command) (history.Store, error) {
	if err := cfg.Validate("history"); err != nil {
		return nil, err
	}

	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal history")
	}
	fmt.Println(string(out))
	return nil
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List persisted decisions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		decisions, err := st.RecentDecisions(cmd.Context(), historyLimit)
		if err != nil {
			return eris.Wrap(err, "list decisions")
		}

		if historyJSON {
			return printJSON(decisions)
		}
		if len(decisions) == 0 {
			fmt.Fprintln(os.Stderr, "No decisions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tACTION\tPRIORITY\tCONFIDENCE\tRULE")
		for _, d := range decisions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
				d.CreatedAt.Format(time.RFC3339), d.Action, d.Priority, d.Confidence, d.Rule)
		}
		return w.Flush()
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List persisted action executions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actions, err := st.RecentActions(cmd.Context(), historyLimit)
		if err != nil {
			return eris.Wrap(err, "list actions")
		}

		if historyJSON {
			return printJSON(actions)
		}
		if len(actions) == 0 {
			fmt.Fprintln(os.Stderr, "No actions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tACTION\tSTEPS\tSUCCESS")
		for _, a := range actions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\n",
				a.CreatedAt.Format(time.RFC3339), a.Action, len(a.StepsTaken), a.Success)
		}
		return w.Flush()
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted orchestration runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.RecentRuns(cmd.Context(), historyLimit)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if historyJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tTOOK\tACTION\tPRIORITY\tSUCCESS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
				r.StartedAt.Format(time.RFC3339),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
				r.Decision.Action, r.Decision.Priority, r.Success)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{decisionsCmd, actionsCmd, runsCmd} {
		c.Flags().IntVar(&historyLimit, "limit", 10, "max records to list")
		c.Flags().BoolVar(&historyJSON, "json", false, "print raw JSON")
		rootCmd.AddCommand(c)
	}
}
