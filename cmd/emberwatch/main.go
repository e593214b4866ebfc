// Package main はemberwatch CLIのエントリポイントです。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root emberwatch command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "emberwatch",
		Short:         "Terminal dashboard for a Pokémon-playing agent backend",
		Long:          "emberwatch mirrors the game and agent state of a Pokémon-playing\nagent backend into a terminal dashboard, and drives the agent loop.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newWatchCmd(),
		newSimulateCmd(),
	)

	return cmd
}
