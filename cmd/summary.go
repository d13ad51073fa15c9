package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a human-readable watchdog report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initWatchdog(ctx, "monitor")
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Print(env.Orchestrator.Summary(ctx))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
