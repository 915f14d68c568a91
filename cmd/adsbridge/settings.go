package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/app"
	"github.com/peteski22/adsbridge/internal/config"
)

const flagConfig = "config"

// loadSettings reads the config file named by --config, falling back to the
// local config file when it exists, then applies the environment.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	if path == "" && config.LocalConfigExists() {
		if path, err = config.ConfigFilePath(); err != nil {
			return nil, err
		}
	}

	settings, err := config.Load(config.NewViper(), path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return settings, nil
}

// newApp loads settings and builds the logger and App for a command.
func newApp(cmd *cobra.Command, opts app.Options) (*app.App, *zap.Logger, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger, err := app.NewLogger(settings.LogFormat, settings.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if opts.Stdout == nil {
		opts.Stdout = cmd.OutOrStdout()
	}
	a, err := app.New(settings, logger, opts)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}
