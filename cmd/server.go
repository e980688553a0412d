package cmd

import (
	"TrackForge/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the TrackForge server",
	Long:  `Start the TrackForge HTTP server: upload tracks, request extended mixes and poll their status.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
