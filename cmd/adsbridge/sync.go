package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/app"
)

// syncRunner runs a sync for a command with its parsed flags.
type syncRunner func(cmd *cobra.Command, opts syncOptions) error

type syncOptions struct {
	catalogPath string
	dryRun      bool
	statePath   string
}

func addSyncFlags(cmd *cobra.Command, opts *syncOptions) {
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "path to the selection catalog (JSON or YAML)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log what would be written without emitting records or saving state")
	cmd.Flags().StringVar(&opts.statePath, "state", "", "path to the state file of the file backend")
}

func (o syncOptions) appOptions() app.Options {
	return app.Options{
		CatalogPath: o.catalogPath,
		DryRun:      o.dryRun,
		StatePath:   o.statePath,
	}
}

func newSyncCmd(run syncRunner) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync of the selected streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	addSyncFlags(cmd, &opts)

	return cmd
}

func runSync(cmd *cobra.Command, opts syncOptions) error {
	a, logger, err := newApp(cmd, opts.appOptions())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if _, err := a.Run(cmd.Context()); err != nil {
		logger.Error("sync failed", zap.Error(err))
		return err
	}
	return nil
}
