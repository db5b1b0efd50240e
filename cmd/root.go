package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"soundscape/server"
)

var rootCmd = &cobra.Command{
	Use:   "soundscape",
	Short: "Soundscape is a seeded ambient mix generator and export service.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
