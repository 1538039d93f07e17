// Package cmd contains the CLI commands of the notification backend.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gearup-backend",
	Short: "GearUp business-management backend",
	Long:  "Backend service for GearUp: real-time notification delivery over SSE, backed by SQLite.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanupCmd)
}
