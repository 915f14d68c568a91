package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peteski22/adsbridge/internal/app"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify credentials and access to the configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := newApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := a.Check(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access OK")
			return nil
		},
	}
}
