package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pipewarden/internal/config"
)

var cfg *config.Config

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pipewarden",
	Short: "Pipeline watchdog for the financial news warehouse",
	Long:  "Watches a Fivetran-fed warehouse table for schema drift and content anomalies, decides on a response via an ordered rule table, and executes it: pausing the connector, quarantining rows, generating rollback SQL, and alerting reviewers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			cfg.Log.Format = flagLogFormat
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "override log format (json|console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
