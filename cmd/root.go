package cmd

import (
	"fmt"
	"log"
	"os"

	"TrackForge/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackforge",
	Short: "TrackForge generates extended DJ mixes of uploaded tracks.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting TrackForge server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
