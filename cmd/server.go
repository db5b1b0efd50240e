package cmd

import (
	"github.com/spf13/cobra"

	"soundscape/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API server",
	Long:  `Runs the soundscape HTTP server: composition, credits, exports and asset serving.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
