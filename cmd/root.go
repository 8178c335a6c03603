// Package cmd implements the causes command line.
package cmd

import (
	"github.com/grovetools/causes/cli"
	"github.com/grovetools/causes/pkg/profiling"
	"github.com/grovetools/causes/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the causes command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := cli.NewStandardCommand(
		"causes",
		"Browse live collections of organizations and events",
	)
	rootCmd.Long = `causes keeps a local, filtered view of remote collections in sync.

Collections come from the causes daemon (SSE or WebSocket) or from a
directory of collection files. Run 'causes serve' to start the daemon.`

	profiling.NewCobraProfiler().AddFlags(rootCmd)

	info := version.GetInfo()
	cli.SetVersionTemplate(rootCmd, info)

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewBrowseCmd())
	rootCmd.AddCommand(NewPutCmd())
	rootCmd.AddCommand(NewDeleteCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("causes", info))

	return rootCmd
}
