package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one monitoring cycle and print the run record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initWatchdog(ctx, "monitor")
		if err != nil {
			return err
		}
		defer env.Close()

		run := env.Orchestrator.Cycle(ctx)

		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal run")
		}
		fmt.Println(string(out))

		if !run.Success {
			return eris.Errorf("cycle failed: %s", run.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
