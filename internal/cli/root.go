// Package cli implements the tasteid command line.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "tasteid",
		Short: "Compute taste profiles from rating histories",
		Long: `tasteid computes listening signatures, behavioral patterns, episodes and
drift alerts from a user's album ratings.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")

	logger := func() zerolog.Logger {
		if !verbose {
			return zerolog.Nop()
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: rootCmd.ErrOrStderr()}).With().Timestamp().Logger()
	}

	rootCmd.AddCommand(newComputeCmd(logger))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
