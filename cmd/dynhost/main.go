// dynhost keeps the address records of a host current. Routers and scripts
// report a new address over HTTP; dynhost replaces the host's A and AAAA
// records in one atomic change and, for a new IPv4 address, moves the
// tunnel endpoint through the ISP members portal.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dynhost",
		Short:   "Dynamic DNS updater",
		Long:    "dynhost updates host address records and the tunnel endpoint when an address changes.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file, .yaml or .toml (env DYNHOST_CONFIG)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error), overrides configuration")
	cmd.PersistentFlags().String("log-format", "", "Log format (json|text), overrides configuration")

	cmd.AddCommand(newCmdServe())
	cmd.AddCommand(newCmdUpdate())
	cmd.AddCommand(newCmdPortal())
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
