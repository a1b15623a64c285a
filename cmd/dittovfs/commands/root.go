// Package commands implements the dittovfs CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	outputFormat string
)

// NewRootCmd builds the command tree. Each call returns independent
// commands, so tests can run them in isolation.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dittovfs",
		Short: "DittoVFS - Virtual filesystem over pluggable storage backends",
		Long: `DittoVFS assembles local disks, in-memory stores and S3 buckets into
one virtual directory tree. Every mount attaches a backend to a mount point;
paths resolve to the deepest mount covering them.

Use "dittovfs [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittovfs/config.yaml)")
	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newServeCmd(),
		newMountsCmd(),
		newResolveCmd(),
		newScanCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dittovfs %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}
