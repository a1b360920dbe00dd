// Package cli provides CLI commands for the s3check conformance checker.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "s3check",
		Short: "s3check - S3 API conformance checker",
		Long:  "s3check runs a scripted battery of bucket and object operations against an S3-compatible endpoint and reports per-case results.",
	}

	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
