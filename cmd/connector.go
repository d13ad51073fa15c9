package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/pipewarden/pkg/fivetran"
)

var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "Manually control the ingestion connector",
}

func connectorClient() (fivetran.Client, error) {
	if err := cfg.Validate("connector"); err != nil {
		return nil, err
	}
	return initConnector(), nil
}

var connectorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connector health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connectorClient()
		if err != nil {
			return err
		}

		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Connector %s\n", status.ConnectorID)
		fmt.Printf("  Health:      %s\n", status.Health)
		fmt.Printf("  Paused:      %t\n", status.Paused)
		fmt.Printf("  Setup state: %s\n", status.SetupState)
		fmt.Printf("  Sync state:  %s\n", status.SyncState)
		return nil
	},
}

var connectorPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause ingestion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connectorClient()
		if err != nil {
			return err
		}

		conn, err := client.Pause(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Connector %s paused\n", conn.ID)
		return nil
	},
}

var connectorResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume ingestion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connectorClient()
		if err != nil {
			return err
		}

		conn, err := client.Resume(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Connector %s resumed\n", conn.ID)
		return nil
	},
}

var connectorSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a manual sync",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connectorClient()
		if err != nil {
			return err
		}

		if err := client.TriggerSync(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Sync triggered")
		return nil
	},
}

func init() {
	connectorCmd.AddCommand(connectorStatusCmd, connectorPauseCmd, connectorResumeCmd, connectorSyncCmd)
	rootCmd.AddCommand(connectorCmd)
}
