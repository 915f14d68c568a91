package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/peteski22/adsbridge/internal/app"
	"github.com/peteski22/adsbridge/internal/catalog"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Print the catalog of available streams as JSON",
		Long: "Print the catalog of every resource and configured report. Nothing is selected;\n" +
			"save the output, mark streams selected and pass it to sync with --catalog.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := newApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalog.Discover(a.ReportNames()))
		},
	}
}
