package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stoker",
		Short: "Threaded HTTP connection-dispatch engine",
		Long: `Stoker is a threaded HTTP/1.x serving core: a blocking accept loop,
a bounded worker pool with backpressure, per-connection keep-alive
state machines, and a publish/subscribe lifecycle bus.

The serve command runs a demonstration application on the engine;
embedders normally import the app and gateway packages instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stoker %s (%s)\n", version, commit)
		},
	}
}
