package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pipewarden/internal/orchestrator"
)

var (
	watchInterval      time.Duration
	watchMaxIterations int
	watchQuick         bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the monitoring loop until interrupted",
	Long:  "Runs a cycle immediately, then on each interval tick. Ctrl-C aborts the wait between cycles, never an in-flight cycle.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWatchdog(ctx, "monitor")
		if err != nil {
			return err
		}
		defer env.Close()

		loopCfg := orchestrator.LoopConfig{
			Interval:      watchInterval,
			MaxIterations: watchMaxIterations,
		}
		if loopCfg.Interval == 0 {
			loopCfg.Interval = time.Duration(cfg.Monitor.IntervalSecs) * time.Second
		}
		if loopCfg.MaxIterations == 0 {
			loopCfg.MaxIterations = cfg.Monitor.MaxIterations
		}
		if watchQuick {
			loopCfg.Interval = 10 * time.Second
			loopCfg.MaxIterations = 3
		}

		err = env.Orchestrator.Loop(ctx, loopCfg)
		fmt.Print(env.Orchestrator.Summary(cmd.Context()))

		if err != nil && !eris.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between cycles (default from config)")
	watchCmd.Flags().IntVar(&watchMaxIterations, "max-iterations", 0, "stop after N cycles (0 = unbounded)")
	watchCmd.Flags().BoolVar(&watchQuick, "quick", false, "short demo run: 3 cycles, 10s apart")
	rootCmd.AddCommand(watchCmd)
}
