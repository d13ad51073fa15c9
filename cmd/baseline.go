package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/history"
	"github.com/sells-group/pipewarden/internal/schema"
	"github.com/sells-group/pipewarden/internal/warehouse"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage the schema drift baseline",
}

// initGuardian wires just enough for baseline commands: warehouse plus
// history store, no connector or LLM.
func initGuardian(cmd *cobra.Command) (*schema.Guardian, history.Store, func(), error) {
	if err := cfg.Validate("baseline"); err != nil {
		return nil, nil, nil, err
	}

	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	pool, err := initWarehousePool(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		if err := st.Close(); err != nil {
			zap.L().Warn("close history store", zap.Error(err))
		}
	}

	wh := warehouse.New(pool, cfg.Warehouse)
	return schema.NewGuardian(wh, st, cfg.Warehouse), st, cleanup, nil
}

var baselineCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Snapshot the monitored table's structure as the new baseline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		guardian, _, cleanup, err := initGuardian(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		baseline, err := guardian.CaptureBaseline(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Captured baseline for %s: %d columns\n", baseline.Table, len(baseline.Columns))
		return nil
	},
}

var baselineShowJSON bool

var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted baseline",
	RunE: func(cmd *cobra.Command, _ []string) error {
		guardian, _, cleanup, err := initGuardian(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		baseline, err := guardian.Baseline(cmd.Context())
		if err != nil {
			return err
		}
		if baseline == nil {
			return eris.New("no baseline captured; run `pipewarden baseline capture` first")
		}

		if baselineShowJSON {
			out, err := json.MarshalIndent(baseline, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal baseline")
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Baseline for %s (captured %s)\n", baseline.Table, baseline.CapturedAt.Format("2006-01-02 15:04:05"))
		if baseline.PartitionKey != "" {
			fmt.Printf("Partitioned by %s\n", baseline.PartitionKey)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COLUMN\tTYPE\tNULLABLE")
		for _, c := range baseline.Columns {
			fmt.Fprintf(w, "%s\t%s\t%t\n", c.Name, c.DataType, c.Nullable)
		}
		return w.Flush()
	},
}

func init() {
	baselineShowCmd.Flags().BoolVar(&baselineShowJSON, "json", false, "print raw JSON")
	baselineCmd.AddCommand(baselineCaptureCmd, baselineShowCmd)
	rootCmd.AddCommand(baselineCmd)
}
