package cmd

import (
	"fmt"
	"log"
	"os"

	"soundbridge/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "soundbridge",
	Short: "SoundBridge is a social music sharing service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting SoundBridge server...")
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
