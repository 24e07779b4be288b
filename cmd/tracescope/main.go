// Package main provides the entry point for the tracescope CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracescope/tracescope/cmd/tracescope/commands"
	"github.com/tracescope/tracescope/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "tracescope",
		Short: "Recover RTIC task identities and trace a running target",
		Long: `Tracescope recovers hardware and software task identities from an RTIC
application's source and PAC, then records or replays the instrumented
trace stream those identities decode.

Commands:
  trace   Build, recover task maps, and record a live trace
  replay  List or replay a previously recorded or raw trace`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// verbose and quiet are parsed but no command reads them; logging
	// stays at the info level of observability.DefaultConfig.
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (not read by any command)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output (not read by any command)")

	rootCmd.AddCommand(commands.NewTraceCommand())
	rootCmd.AddCommand(commands.NewReplayCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "tracescope %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
