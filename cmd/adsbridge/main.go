// Package main provides the adsbridge command-line interface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "time/tzdata"
)

var version = "dev"

func main() {
	if err := newRootCmd(runSync).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(run syncRunner) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:           "adsbridge",
		Short:         "Replicate Twitter Ads resources and analytics reports",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	cmd.PersistentFlags().String(flagConfig, "", "path to the config file (default ~/.adsbridge/config.yaml)")
	addSyncFlags(cmd, &opts)

	cmd.AddCommand(newSyncCmd(run))
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}
