package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fs-coalescer",
	Short: "Coalescing filesystem event queue",
	Long: `Watches directory trees, folds bursts of filesystem events into a minimal
equivalent sequence and streams the result over gRPC, SSE and WebSocket.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $WATCHER_CONFIG)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
