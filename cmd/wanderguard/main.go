package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "wanderguard",
	Short:        "wanderguard - wandering risk scoring for dementia care",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE:  runServe,
}

var scoreCmd = &cobra.Command{
	Use:   "score [file]",
	Short: "Score one observation from a JSON document (stdin when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScore,
}

func init() {
	rootCmd.AddCommand(serveCmd, scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
